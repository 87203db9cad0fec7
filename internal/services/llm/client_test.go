package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"episodegen/internal/ports"
	"episodegen/internal/services"
)

func writeCompletion(t *testing.T, w http.ResponseWriter, message map[string]any, usage map[string]any) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{"message": message, "finish_reason": "stop"},
		},
	}
	if usage != nil {
		payload["usage"] = usage
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	_, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateSendsHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "episodegen" {
			t.Errorf("unexpected title header %q", got)
		}
		writeCompletion(t, w, map[string]any{"content": "ok"}, nil)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo", Title: "episodegen"})
	if _, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestUnauthorizedIsConfigurationError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, WithSleep(noSleep))
	_, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	if !errors.Is(err, services.ErrConfiguration) || services.Kind(err) != "configuration" {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no retries on 401, got %d calls", calls)
	}
}

func TestGenerateSendsSchemaAndReturnsUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" || req.ResponseFormat.JSONSchema.Name != "episode" {
			t.Errorf("expected json_schema response format, got %v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		writeCompletion(t, w,
			map[string]any{"content": `{"title":"t","summary":"s","script":"x"}`},
			map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	resp, err := client.Generate(context.Background(), ports.LLMRequest{
		System: "system",
		User:   "user",
		Schema: &ports.Schema{Name: "episode", Definition: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(resp.Text, `"title":"t"`) {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected derived total of 15 tokens, got %+v", resp.Usage)
	}
}

func TestGenerateRunsToolLoop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		usage := map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		if n == 1 {
			if len(req.Tools) != 1 || req.Tools[0].Function.Name != "web_search" {
				t.Errorf("expected web_search tool, got %+v", req.Tools)
			}
			writeCompletion(t, w, map[string]any{
				"content": "",
				"tool_calls": []any{map[string]any{
					"id":       "call-1",
					"type":     "function",
					"function": map[string]any{"name": "web_search", "arguments": `{"query":"deep sea"}`},
				}},
			}, usage)
			return
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "tool" || last.ToolCallID != "call-1" || last.Content != "RESULTS" {
			t.Errorf("expected tool result message, got %+v", last)
		}
		writeCompletion(t, w, map[string]any{"content": "research notes"}, usage)
	}))
	defer server.Close()

	var gotArgs string
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	resp, err := client.Generate(context.Background(), ports.LLMRequest{
		System: "system",
		User:   "user",
		Tools: []ports.Tool{{
			Name: "web_search",
			Handler: func(_ context.Context, args json.RawMessage) (string, error) {
				gotArgs = string(args)
				return "RESULTS", nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "research notes" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if gotArgs != `{"query":"deep sea"}` {
		t.Fatalf("unexpected tool args %q", gotArgs)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Fatalf("expected usage summed across rounds, got %+v", resp.Usage)
	}
}

func TestGenerateCapsToolRounds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ToolChoice == "none" {
			writeCompletion(t, w, map[string]any{"content": "final"}, nil)
			return
		}
		writeCompletion(t, w, map[string]any{
			"tool_calls": []any{map[string]any{
				"id":       "call",
				"type":     "function",
				"function": map[string]any{"name": "web_search", "arguments": `{}`},
			}},
		}, nil)
	}))
	defer server.Close()

	var toolCalls int
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo", MaxToolRounds: 2})
	resp, err := client.Generate(context.Background(), ports.LLMRequest{
		System: "system",
		User:   "user",
		Tools: []ports.Tool{{
			Name: "web_search",
			Handler: func(context.Context, json.RawMessage) (string, error) {
				toolCalls++
				return "x", nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "final" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if toolCalls != 2 || calls.Load() != 3 {
		t.Fatalf("expected 2 tool calls over 3 requests, got %d over %d", toolCalls, calls.Load())
	}
}

func TestGenerateToolErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, map[string]any{
			"tool_calls": []any{map[string]any{
				"id":       "call",
				"type":     "function",
				"function": map[string]any{"name": "web_search", "arguments": `{}`},
			}},
		}, nil)
	}))
	defer server.Close()

	boom := errors.New("search down")
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.Generate(context.Background(), ports.LLMRequest{
		System: "system",
		User:   "user",
		Tools: []ports.Tool{{
			Name:    "web_search",
			Handler: func(context.Context, json.RawMessage) (string, error) { return "", boom },
		}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected tool error, got %v", err)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeCompletion(t, w, map[string]any{"content": "hello"}, nil)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
		WithRetry(5, 0, 10*time.Second),
	)
	resp, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "hello" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = "finally"
		}
		writeCompletion(t, w, map[string]any{"content": content}, nil)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetry(5, 0, 0),
		WithSleep(noSleep),
	)
	resp, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Text != "finally" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleep(noSleep),
	)
	_, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("expected http 400 error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestClientGivesUpOnPersistent5xx(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithRetry(3, time.Second, 10*time.Second),
		WithSleep(func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}),
	)
	_, err := client.Generate(context.Background(), ports.LLMRequest{System: "s", User: "u"})
	if !errors.Is(err, services.ErrTransient) || !strings.Contains(err.Error(), "giving up after 3 attempts") {
		t.Fatalf("expected transient give-up error, got %v", err)
	}
	if calls != 3 || len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("expected 3 calls with 1s,2s backoff, got %d calls and %v", calls, slept)
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	b := backoff{base: time.Second, max: 5 * time.Second}
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second, 9: 5 * time.Second} {
		if got := b.delay(attempt, 0); got != want {
			t.Fatalf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}
	if got := b.delay(1, time.Minute); got != 5*time.Second {
		t.Fatalf("expected Retry-After to be capped, got %v", got)
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	inputs := []string{
		`{"title":"Abyss"}`,
		"Here you go:\n{\"title\":\"Abyss\"}\nEnjoy",
		"```json\n{\"title\":\"Abyss\"}\n```",
		"Sure!\n```JSON\n{\"title\":\"Abyss\"}\n```\nAnything else?",
	}
	for _, in := range inputs {
		out.Title = ""
		if err := DecodeJSON(in, &out); err != nil {
			t.Fatalf("DecodeJSON(%q): %v", in, err)
		}
		if out.Title != "Abyss" {
			t.Fatalf("DecodeJSON(%q) title = %q", in, out.Title)
		}
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
	if err := DecodeJSON("no json here", &out); err == nil || !strings.Contains(err.Error(), "no json here") {
		t.Fatalf("expected error with payload snippet, got %v", err)
	}
}

func noSleep(context.Context, time.Duration) error { return nil }
