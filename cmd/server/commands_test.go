package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/app"
	"gopherai-assistant/internal/config"
)

type recordedRequest struct {
	Path string
	Key  string
	Body ai.GenerateContentRequest
}

type providerServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newProviderServer(t *testing.T, reply string) *providerServer {
	t.Helper()
	ps := &providerServer{}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ai.GenerateContentRequest
		_ = json.NewDecoder(r.Body).Decode(&body)

		ps.mu.Lock()
		ps.requests = append(ps.requests, recordedRequest{
			Path: r.URL.Path,
			Key:  r.URL.Query().Get("key"),
			Body: body,
		})
		ps.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

// setTestEnv points config.Load at defaults plus the given overrides.
func setTestEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	t.Setenv("APP_ENV", "test")
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("STORAGE_DRIVER", config.DriverMemory)
	for k, v := range overrides {
		t.Setenv(k, v)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		_ = askCmd.Flags().Set("mode", "answer")
		_ = tokenCmd.Flags().Set("ttl", "1h")
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAskCommand_Summarize(t *testing.T) {
	ps := newProviderServer(t, `{"candidates":[{"content":{"parts":[{"text":"Gophers dig."}]}}]}`)
	setTestEnv(t, map[string]string{
		"LLM_BASE_URL":     ps.server.URL,
		"LLM_API_KEY":      "cli-key",
		"LLM_MODEL":        "gemini-test",
		"LLM_MAX_ATTEMPTS": "1",
	})

	out, err := execute(t, "ask", "--mode", "summarize", "gophers", "dig", "burrows")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Text Summary:\nGophers dig.\n" {
		t.Errorf("output = %q", out)
	}

	if len(ps.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ps.requests))
	}
	r := ps.requests[0]
	if r.Path != "/models/gemini-test:generateContent" {
		t.Errorf("path = %q", r.Path)
	}
	if r.Key != "cli-key" {
		t.Errorf("key = %q, want cli-key", r.Key)
	}
	if got := r.Body.PromptText(); got != `Summarize the following text: "gophers dig burrows"` {
		t.Errorf("prompt = %q", got)
	}
}

func TestAskCommand_UnknownMode(t *testing.T) {
	ps := newProviderServer(t, `{}`)
	setTestEnv(t, map[string]string{"LLM_BASE_URL": ps.server.URL, "LLM_API_KEY": "k"})

	_, err := execute(t, "ask", "--mode", "bogus", "hello")
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if !strings.Contains(err.Error(), `unknown mode "bogus"`) {
		t.Errorf("error = %q", err.Error())
	}
	if len(ps.requests) != 0 {
		t.Errorf("provider called %d times", len(ps.requests))
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	setTestEnv(t, nil)
	if _, err := execute(t, "ask"); err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestTokenCommand_OpensSession(t *testing.T) {
	setTestEnv(t, nil)

	out, err := execute(t, "token", "user-42", "--ttl", "10m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := strings.TrimSpace(out)
	if token == "" {
		t.Fatal("no token printed")
	}

	sessions := app.NewSessionService("cli-secret", 0)
	result, err := sessions.Begin(context.Background(), app.BeginInput{CustomToken: token})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if result.UserID != "user-42" || result.Anonymous {
		t.Errorf("session = %+v", result)
	}

	other := app.NewSessionService("other-secret", 0)
	if _, err := other.Begin(context.Background(), app.BeginInput{CustomToken: token}); err == nil {
		t.Error("token accepted under a different secret")
	}
}

func TestMigrateCommand_CreatesSQLiteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "assistant.db")
	setTestEnv(t, map[string]string{
		"STORAGE_DRIVER": config.DriverSQLite,
		"SQLITE_PATH":    path,
	})

	if _, err := execute(t, "migrate"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file: %v", err)
	}
}
