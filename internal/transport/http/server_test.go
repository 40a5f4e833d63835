package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"gopherai-assistant/internal/bootstrap"
	"gopherai-assistant/internal/config"
	"gopherai-assistant/internal/transport/http/response"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t        *testing.T
	router   http.Handler
	provider *atomic.Value
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	provider := &atomic.Value{}
	provider.Store(`{"candidates":[{"content":{"parts":[{"text":"Paris"}]}}]}`)
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, provider.Load().(string))
	}))
	t.Cleanup(llm.Close)

	cfg := &config.Config{
		App: config.AppConfig{
			Name: "test", Env: "test", GinMode: "test", ID: "test-app",
			AssistantIdleTTLMinutes: 5, MaxUploadMB: 1, MaxPDFChars: 1000,
		},
		Auth:    config.AuthConfig{JWTSecret: "secret", JWTExpireMinute: 10},
		LLM:     config.LLMConfig{BaseURL: llm.URL, APIKey: "k", Model: "m", MaxAttempts: 1},
		Storage: config.StorageConfig{Driver: config.DriverMemory, HistoryLimit: 50},
	}
	app, err := bootstrap.New(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	return &testServer{t: t, router: NewRouter(app), provider: provider}
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func (s *testServer) session() string {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/v1/session", "", nil)
	if status != http.StatusOK {
		s.t.Fatalf("session status = %d, body = %+v", status, env)
	}
	var data struct {
		Token     string `json:"token"`
		UserID    string `json:"user_id"`
		Anonymous bool   `json:"anonymous"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if data.Token == "" || data.UserID == "" || !data.Anonymous {
		s.t.Fatalf("session data = %+v", data)
	}
	return data.Token
}

type stateData struct {
	Mode     string `json:"mode"`
	Response string `json:"response"`
	Label    string `json:"label"`
	Error    string `json:"error"`
	InFlight bool   `json:"in_flight"`
	Feedback string `json:"feedback"`
	History  []struct {
		ID            string `json:"id"`
		Function      string `json:"function"`
		Prompt        string `json:"prompt"`
		AIResponse    string `json:"aiResponse"`
		FeedbackValue *bool  `json:"feedbackValue"`
	} `json:"history"`
}

func decodeState(t *testing.T, env envelope) stateData {
	t.Helper()
	var s stateData
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode state %s: %v", env.Data, err)
	}
	return s
}

func TestRouter_RequiresSession(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(http.MethodGet, "/api/v1/assistant/state", "", nil)
	if status != http.StatusUnauthorized || env.Code != response.CodeUnauthorized {
		t.Errorf("no token: status = %d code = %d", status, env.Code)
	}
	status, _ = srv.do(http.MethodGet, "/api/v1/assistant/state", "garbage", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", status)
	}
	status, env = srv.do(http.MethodPost, "/api/v1/session", "", map[string]string{"custom_token": "forged"})
	if status != http.StatusUnauthorized || env.Code != response.CodeSessionFailed {
		t.Errorf("forged custom token: status = %d code = %d", status, env.Code)
	}
}

func TestRouter_SubmitFeedbackHistory(t *testing.T) {
	srv := newTestServer(t)
	token := srv.session()

	status, env := srv.do(http.MethodGet, "/api/v1/assistant/modes", token, nil)
	if status != http.StatusOK || !strings.Contains(string(env.Data), `"summarize"`) {
		t.Fatalf("modes: status = %d data = %s", status, env.Data)
	}

	status, env = srv.do(http.MethodPost, "/api/v1/assistant/submit", token, map[string]string{"mode": "answer", "text": "capital of France?"})
	if status != http.StatusOK {
		t.Fatalf("submit: status = %d body = %+v", status, env)
	}
	state := decodeState(t, env)
	if state.Response != "Paris" || state.Label != "Question Answer" || state.InFlight {
		t.Errorf("state = %+v", state)
	}

	status, env = srv.do(http.MethodPost, "/api/v1/assistant/feedback", token, map[string]bool{"helpful": true})
	if status != http.StatusOK || decodeState(t, env).Feedback != "yes" {
		t.Fatalf("feedback: status = %d body = %+v", status, env)
	}
	status, env = srv.do(http.MethodPost, "/api/v1/assistant/feedback", token, map[string]bool{"helpful": false})
	if status != http.StatusConflict || env.Code != response.CodeFeedbackNotAllowed {
		t.Errorf("second feedback: status = %d code = %d", status, env.Code)
	}

	status, env = srv.do(http.MethodGet, "/api/v1/assistant/history", token, nil)
	if status != http.StatusOK {
		t.Fatalf("history: status = %d", status)
	}
	history := decodeState(t, env).History
	if len(history) != 1 {
		t.Fatalf("history = %+v", history)
	}
	if h := history[0]; h.Function != "answer" || h.Prompt != "capital of France?" || h.AIResponse != "Paris" ||
		h.FeedbackValue == nil || !*h.FeedbackValue {
		t.Errorf("entry = %+v", h)
	}
}

func TestRouter_SubmitErrors(t *testing.T) {
	srv := newTestServer(t)
	token := srv.session()

	status, env := srv.do(http.MethodPost, "/api/v1/assistant/submit", token, map[string]string{"text": "  "})
	if status != http.StatusBadRequest || env.Message != "Please enter your query." {
		t.Errorf("empty: status = %d message = %q", status, env.Message)
	}

	status, env = srv.do(http.MethodPost, "/api/v1/assistant/mode", token, map[string]string{"mode": "translate"})
	if status != http.StatusBadRequest {
		t.Errorf("unknown mode: status = %d body = %+v", status, env)
	}

	srv.provider.Store(`{"candidates":[]}`)
	status, env = srv.do(http.MethodPost, "/api/v1/assistant/submit", token, map[string]string{"mode": "generate", "text": "a poem"})
	if status != http.StatusBadGateway || env.Code != response.CodeNoValidResponse {
		t.Errorf("no valid response: status = %d code = %d", status, env.Code)
	}
	if !strings.HasPrefix(env.Message, "No valid response from AI.") {
		t.Errorf("message = %q", env.Message)
	}

	status, env = srv.do(http.MethodGet, "/api/v1/assistant/history", token, nil)
	if status != http.StatusOK || len(decodeState(t, env).History) != 0 {
		t.Errorf("history after failures = %s", env.Data)
	}
}

func TestRouter_SummarizePDFRejectsNonPDF(t *testing.T) {
	srv := newTestServer(t)
	token := srv.session()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "notes.pdf")
	_, _ = part.Write([]byte("plain text, not a pdf"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/assistant/summarize/pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"storage":{"ok":true}`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_HistoryStream(t *testing.T) {
	srv := newTestServer(t)
	token := srv.session()
	if status, _ := srv.do(http.MethodPost, "/api/v1/assistant/submit", token, map[string]string{"mode": "answer", "text": "q"}); status != http.StatusOK {
		t.Fatalf("submit status = %d", status)
	}

	ts := httptest.NewServer(srv.router)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/assistant/history/stream?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	sawEvent := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event:history" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data:") {
			if !strings.Contains(line, `"prompt":"q"`) {
				t.Errorf("data = %s", line)
			}
			return
		}
	}
	t.Fatalf("no history event received (err = %v)", scanner.Err())
}
