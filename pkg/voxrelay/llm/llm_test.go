package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func TestEmbeddingClient_Embed(t *testing.T) {
	t.Parallel()

	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q, want /embeddings", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "embed" {
			t.Errorf("model = %v, want embed", body["model"])
		}
		if body["input"] != "hello" {
			t.Errorf("input = %v, want hello", body["input"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0}},
		})
	})
	defer srv.Close()

	c := NewEmbeddingClient(Config{BaseURL: srv.URL, EmbeddingModel: "embed"})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("Embed() = %v, want [0.1 0.2 0.3]", vec)
	}
}

func TestEmbeddingClient_RemoteError(t *testing.T) {
	t.Parallel()

	srv := newBackend(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	})
	defer srv.Close()

	c := NewEmbeddingClient(Config{BaseURL: srv.URL, EmbeddingModel: "embed"})
	_, err := c.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("Embed() expected error for non-2xx status")
	}
	if !IsRemoteError(err) {
		t.Errorf("error %v is not a RemoteError", err)
	}
}

func TestCompletionClient_Complete(t *testing.T) {
	t.Parallel()

	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		var body struct {
			Model    string        `json:"model"`
			Messages []ChatMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Messages) != 2 {
			t.Errorf("got %d messages, want 2", len(body.Messages))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  hi there  "}},
			},
		})
	})
	defer srv.Close()

	c := NewCompletionClient(Config{BaseURL: srv.URL, ChatModel: "chat"})
	reply, err := c.Complete(context.Background(), []ChatMessage{
		{Role: ChatRoleSystem, Content: "framing"},
		{Role: ChatRoleSystem, Content: "task"},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("Complete() = %q, want %q", reply, "hi there")
	}
}

func TestCompletionClient_Unreachable(t *testing.T) {
	t.Parallel()

	c := NewCompletionClient(Config{BaseURL: "http://127.0.0.1:1", ChatModel: "chat"})
	_, err := c.Complete(context.Background(), []ChatMessage{{Role: ChatRoleUser, Content: "x"}})
	if err == nil {
		t.Fatal("Complete() expected error for unreachable backend")
	}
	if !IsRemoteError(err) {
		t.Errorf("error %v is not a RemoteError", err)
	}
}

func TestExtractReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"framed", "Speaker: bot\nMessage: the actual reply", "the actual reply"},
		{"whitespace", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractReply(tt.in); got != tt.want {
				t.Errorf("extractReply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
