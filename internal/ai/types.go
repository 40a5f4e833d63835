package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoValidResponse means the provider answered 2xx but the payload carries no
// candidate text.
var ErrNoValidResponse = errors.New("no valid response from AI")

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateContentRequest is the body of a generateContent call.
type GenerateContentRequest struct {
	Contents []Content `json:"contents"`
}

// NewTextRequest wraps a single user prompt.
func NewTextRequest(text string) GenerateContentRequest {
	return GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: text}}}},
	}
}

// PromptText returns the first user text of the request.
func (r GenerateContentRequest) PromptText() string {
	for _, c := range r.Contents {
		for _, p := range c.Parts {
			if p.Text != "" {
				return p.Text
			}
		}
	}
	return ""
}

type generateContentResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r generateContentResponse) firstText() (string, bool) {
	if len(r.Candidates) == 0 {
		return "", false
	}
	content := r.Candidates[0].Content
	if content == nil || len(content.Parts) == 0 || content.Parts[0].Text == nil {
		return "", false
	}
	return *content.Parts[0].Text, true
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

const statusResourceExhausted = "RESOURCE_EXHAUSTED"

// APIError is a non-success answer from the provider.
type APIError struct {
	StatusCode int
	Status     string // provider status, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Message)
}

// ResourceExhausted reports a rate-limit or quota condition.
func (e *APIError) ResourceExhausted() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.Status == statusResourceExhausted {
		return true
	}
	return strings.Contains(e.Message, "Resource exhausted")
}
