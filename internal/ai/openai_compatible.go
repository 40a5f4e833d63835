package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gopherai-assistant/internal/backoff"
	"gopherai-assistant/internal/metrics"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// OpenAI-style errors carry a string code such as "rate_limit_exceeded".
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// OpenAICompatibleClient serves the same requests as GeminiClient against a
// /chat/completions endpoint.
type OpenAICompatibleClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      backoff.Options
	logger     *zap.Logger
}

func NewOpenAICompatibleClient(cfg ClientConfig, logger *zap.Logger) *OpenAICompatibleClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatibleClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    newLimiter(cfg),
		retry:      defaultRetry(cfg, logger),
		logger:     logger,
	}
}

func (c *OpenAICompatibleClient) WithRetryOptions(opts backoff.Options) *OpenAICompatibleClient {
	if opts.OnRetry == nil {
		opts.OnRetry = c.retry.OnRetry
	}
	c.retry = opts
	return c
}

func (c *OpenAICompatibleClient) Model() string {
	return c.cfg.Model
}

// GenerateContent converts req to chat messages and returns the first choice.
func (c *OpenAICompatibleClient) GenerateContent(ctx context.Context, req GenerateContentRequest) (string, error) {
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("llm base url is not configured")
	}
	if c.cfg.Model == "" {
		return "", fmt.Errorf("llm model is not configured")
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: toChatMessages(req),
	})
	if err != nil {
		return "", fmt.Errorf("marshal llm request failed: %w", err)
	}

	started := time.Now()
	defer func() {
		metrics.GatewayLatency.Observe(time.Since(started).Seconds())
	}()

	raw, err := backoff.Do(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return "", err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.GatewayAttempts.WithLabelValues("invalid_response").Inc()
		return "", fmt.Errorf("%w: %v", ErrNoValidResponse, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == nil {
		metrics.GatewayAttempts.WithLabelValues("invalid_response").Inc()
		return "", ErrNoValidResponse
	}
	metrics.GatewayAttempts.WithLabelValues("ok").Inc()
	return *parsed.Choices[0].Message.Content, nil
}

func (c *OpenAICompatibleClient) post(ctx context.Context, body []byte) ([]byte, error) {
	if err := waitLimiter(ctx, c.limiter); err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayAttempts.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.GatewayAttempts.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newChatAPIError(resp.StatusCode, raw)
		countFailure(apiErr)
		return nil, apiErr
	}
	return raw, nil
}

func newChatAPIError(statusCode int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	var parsed chatErrorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		apiErr.Message = parsed.Error.Message
		if code, ok := parsed.Error.Code.(string); ok && code != "" {
			apiErr.Status = code
		} else {
			apiErr.Status = parsed.Error.Type
		}
	}
	if statusCode == http.StatusTooManyRequests {
		apiErr.Status = statusResourceExhausted
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

func toChatMessages(req GenerateContentRequest) []ChatMessage {
	messages := make([]ChatMessage, 0, len(req.Contents))
	for _, content := range req.Contents {
		role := content.Role
		switch role {
		case "", "user":
			role = "user"
		case "model":
			role = "assistant"
		}
		var text strings.Builder
		for _, part := range content.Parts {
			text.WriteString(part.Text)
		}
		messages = append(messages, ChatMessage{Role: role, Content: text.String()})
	}
	return messages
}
