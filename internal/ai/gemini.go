package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gopherai-assistant/internal/backoff"
	"gopherai-assistant/internal/metrics"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash-preview-05-20"

	maxResponseBytes = 8 << 20
)

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxAttempts    int
	BaseDelay      time.Duration
	// RateLimit caps outbound attempts per second; zero disables the limiter.
	RateLimit float64
	RateBurst int
}

// GeminiClient calls the generateContent endpoint through the backoff caller.
type GeminiClient struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      backoff.Options
	logger     *zap.Logger
}

func NewGeminiClient(cfg ClientConfig, logger *zap.Logger) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GeminiClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    newLimiter(cfg),
		retry:      defaultRetry(cfg, logger),
		logger:     logger,
	}
}

// newLimiter returns nil when rate limiting is off.
func newLimiter(cfg ClientConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
}

func defaultRetry(cfg ClientConfig, logger *zap.Logger) backoff.Options {
	return backoff.Options{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.GatewayRetries.Inc()
			logger.Warn("provider rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
}

func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for provider rate limiter failed: %w", err)
	}
	return nil
}

// countFailure records a non-2xx attempt by whether it is worth retrying.
func countFailure(apiErr *APIError) {
	if apiErr.ResourceExhausted() {
		metrics.GatewayAttempts.WithLabelValues("rate_limited").Inc()
	} else {
		metrics.GatewayAttempts.WithLabelValues("provider_error").Inc()
	}
}

// WithRetryOptions replaces the retry policy; the sleep hook lets tests skip waits.
func (c *GeminiClient) WithRetryOptions(opts backoff.Options) *GeminiClient {
	if opts.OnRetry == nil {
		opts.OnRetry = c.retry.OnRetry
	}
	c.retry = opts
	return c
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.cfg.Model
}

// GenerateContent sends req and returns the first candidate's first text part.
func (c *GeminiClient) GenerateContent(ctx context.Context, req GenerateContentRequest) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("gemini api key is not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal generate request failed: %w", err)
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

	var parsed generateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		metrics.GatewayAttempts.WithLabelValues("invalid_response").Inc()
		return "", fmt.Errorf("%w: %v", ErrNoValidResponse, err)
	}
	text, ok := parsed.firstText()
	if !ok {
		metrics.GatewayAttempts.WithLabelValues("invalid_response").Inc()
		return "", ErrNoValidResponse
	}
	metrics.GatewayAttempts.WithLabelValues("ok").Inc()
	return text, nil
}

func (c *GeminiClient) endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))
}

func (c *GeminiClient) post(ctx context.Context, body []byte) ([]byte, error) {
	if err := waitLimiter(ctx, c.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GatewayAttempts.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("generate request failed: %w", redactKey(err, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.GatewayAttempts.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("read generate response failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(resp.StatusCode, raw)
		countFailure(apiErr)
		return nil, apiErr
	}
	return raw, nil
}

func newAPIError(statusCode int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		apiErr.Message = parsed.Error.Message
		apiErr.Status = parsed.Error.Status
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// redactKey strips the api key from url errors, which embed the full request URL.
func redactKey(err error, key string) error {
	var urlErr *url.Error
	if key == "" || !errors.As(err, &urlErr) {
		return err
	}
	urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(key), "REDACTED")
	return err
}
