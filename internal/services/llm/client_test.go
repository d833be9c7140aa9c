package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func replyWith(t *testing.T, w http.ResponseWriter, choice map[string]any) {
	t.Helper()
	payload := map[string]any{"choices": []any{choice}}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientCompleteSendsPDFAttachment(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake")
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer per-request" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Paper to Notebook" {
			t.Errorf("X-Title = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		replyWith(t, w, map[string]any{
			"finish_reason": "stop",
			"message": map[string]any{
				"content":   `{"ok":true}`,
				"reasoning": "looked at the abstract",
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, Model: "default-model", Title: "Paper to Notebook"})
	completion, err := client.Complete(context.Background(), Request{
		System:     "system",
		User:       "outline",
		Attachment: &Attachment{Filename: "paper.pdf", Data: pdf},
		APIKey:     "per-request",
		Model:      "override-model",
		Reasoning:  true,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if completion.Content != `{"ok":true}` || completion.Reasoning != "looked at the abstract" || completion.FinishReason != "stop" {
		t.Fatalf("unexpected completion %+v", completion)
	}

	if captured["model"] != "override-model" {
		t.Fatalf("model = %v, want override-model", captured["model"])
	}
	if _, ok := captured["reasoning"]; !ok {
		t.Fatal("expected reasoning to be requested")
	}
	if _, ok := captured["response_format"]; ok {
		t.Fatal("plain completion must not force json response_format")
	}
	messages := captured["messages"].([]any)
	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("expected two content parts, got %v", user["content"])
	}
	file := parts[1].(map[string]any)["file"].(map[string]any)
	want := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)
	if file["file_data"] != want || file["filename"] != "paper.pdf" {
		t.Fatalf("unexpected file part %v", file)
	}
}

func TestClientCompleteRequiresKeyAndModel(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := client.Complete(context.Background(), Request{System: "s", User: "u", Model: "m"}); err == nil || !strings.Contains(err.Error(), "api key") {
		t.Fatalf("expected api key error, got %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{System: "s", User: "u", APIKey: "k"}); err == nil || !strings.Contains(err.Error(), "model") {
		t.Fatalf("expected model error, got %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{User: "u", APIKey: "k", Model: "m"}); err == nil {
		t.Fatal("expected system prompt error")
	}
}

func TestClientCompleteJSONCodeFence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if format, _ := body["response_format"].(map[string]any); format["type"] != "json_object" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		replyWith(t, w, map[string]any{
			"message": map[string]any{"content": "```json\n{\"title\":\"Transformers\",\"sections\":[{\"heading\":\"Attention\"}]}\n```"},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	var outline Outline
	completion, err := client.CompleteJSON(context.Background(), Request{System: "s", User: "u"}, &outline)
	if err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if outline.Title != "Transformers" || len(outline.Sections) != 1 {
		t.Fatalf("unexpected outline %+v", outline)
	}
	if !strings.Contains(completion.Content, "```") {
		t.Fatalf("expected raw content to retain code fence, got %q", completion.Content)
	}
}

func TestClientCompleteToolCallsArguments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		replyWith(t, w, map[string]any{
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"content": "",
				"tool_calls": []any{
					map[string]any{
						"type": "function",
						"id":   "call_1",
						"function": map[string]any{
							"name":      "emit_cells",
							"arguments": `{"cells":[{"cell_type":"code","source":"print(1)"}]}`,
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	var cells generatedCells
	if _, err := client.CompleteJSON(context.Background(), Request{System: "s", User: "u"}, &cells); err != nil {
		t.Fatalf("CompleteJSON returned error: %v", err)
	}
	if len(cells.Cells) != 1 || cells.Cells[0].Source != "print(1)" {
		t.Fatalf("unexpected cells %+v", cells)
	}
}

func TestClientCompleteDeltaAndLegacyText(t *testing.T) {
	choices := []map[string]any{
		{"delta": map[string]any{"content": "from delta"}},
		{"finish_reason": "stop", "text": "from text"},
	}
	for _, choice := range choices {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			replyWith(t, w, choice)
		}))
		client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
		completion, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
		server.Close()
		if err != nil {
			t.Fatalf("Complete returned error: %v", err)
		}
		if !strings.HasPrefix(completion.Content, "from ") {
			t.Fatalf("unexpected content %q", completion.Content)
		}
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		replyWith(t, w, map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": ""},
		})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientUnauthorizedIsNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"}, WithSleeper(func(time.Duration) {}))
	_, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if err == nil {
		t.Fatal("expected request to fail")
	}
	if StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("StatusCode = %d, want 401", StatusCode(err))
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
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
		replyWith(t, w, map[string]any{"message": map[string]any{"content": "done"}})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	completion, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if completion.Content != "done" {
		t.Fatalf("unexpected content %q", completion.Content)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientBreakerOpensOnServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
		WithBreaker(BreakerSettings{FailureThreshold: 2, Cooldown: time.Hour}),
	)
	_, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected breaker to short-circuit retries, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 upstream calls before the breaker opened, got %d", calls)
	}
	if got := client.BreakerState(); got != "open" {
		t.Fatalf("BreakerState = %q, want open", got)
	}

	if _, err := client.Complete(context.Background(), Request{System: "s", User: "u"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected open breaker error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("open breaker should not reach the provider, got %d calls", calls)
	}
}

func TestClientBreakerIgnoresRejectedKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"},
		WithBreaker(BreakerSettings{FailureThreshold: 1, Cooldown: time.Hour}),
	)
	for range 3 {
		_, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
		if StatusCode(err) != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %v", err)
		}
	}
	if got := client.BreakerState(); got != "closed" {
		t.Fatalf("BreakerState = %q, want closed", got)
	}
}

func TestClientBreakerDisabled(t *testing.T) {
	client := NewClient(Config{Model: "demo"}, WithBreaker(BreakerSettings{}))
	if got := client.BreakerState(); got != "disabled" {
		t.Fatalf("BreakerState = %q, want disabled", got)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = "third time"
		}
		replyWith(t, w, map[string]any{
			"finish_reason": "stop",
			"message":       map[string]any{"content": content},
		})
	}))
	defer server.Close()

	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"},
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	completion, err := client.Complete(context.Background(), Request{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if completion.Content != "third time" {
		t.Fatalf("unexpected content %q", completion.Content)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDecodeLLMJSONExtractsObject(t *testing.T) {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("Sure! Here you go: {\"ok\": true} Hope that helps.", &out); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !out.OK {
		t.Fatal("expected ok=true")
	}
	if err := DecodeLLMJSON("   ", &out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
