// Package llm wraps the OpenAI-compatible HTTP backend that produces
// embeddings and chat completions. Works with LM Studio, Ollama, vLLM, or any
// endpoint speaking the same format.
//
// Both clients are thin: one attempt per call, no retry, no implicit timeout
// beyond the transport's. Failures surface as *RemoteError so callers can
// recover locally without ever crossing an untyped error into the dispatcher.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteError reports a failed call to the language-model backend: the
// endpoint was unreachable, or it answered with a non-2xx status.
type RemoteError struct {
	Endpoint string
	Status   int // 0 when the request never completed
	Err      error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm: %s returned status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("llm: %s: %v", e.Endpoint, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemoteError reports whether err wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// ChatMessage is one framed entry of a chat-completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by OpenAI-compatible backends.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// Config configures the LLM backend clients.
type Config struct {
	// BaseURL is the backend base URL (e.g. "http://localhost:1234/v1").
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token, empty for local backends.
	APIKey string `yaml:"api_key"`

	// ChatModel is the model id for completions.
	ChatModel string `yaml:"chat_model"`

	// EmbeddingModel is the model id for embeddings.
	EmbeddingModel string `yaml:"embedding_model"`

	// Temperature for completions (default 0.7).
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the completion length (default 500).
	MaxTokens int `yaml:"max_tokens"`
}

// DefaultConfig returns defaults matching a local LM Studio backend.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:1234/v1",
		ChatModel:      "default",
		EmbeddingModel: "embed",
		Temperature:    0.7,
		MaxTokens:      500,
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// post sends a JSON body and returns the response bytes, wrapping every
// failure mode in *RemoteError.
func post(ctx context.Context, client *http.Client, endpoint, apiKey string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s", strings.TrimSpace(string(respBody))),
		}
	}
	return respBody, nil
}

// ---------- Embedding Client ----------

// EmbeddingClient produces vector embeddings from text.
type EmbeddingClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewEmbeddingClient creates an embedding client from config.
func NewEmbeddingClient(cfg Config) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.EmbeddingModel,
		client:  newHTTPClient(),
	}
}

// Model returns the embedding model id.
func (c *EmbeddingClient) Model() string { return c.model }

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates the embedding vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	endpoint := c.baseURL + "/embeddings"
	respBody, err := post(ctx, c.client, endpoint, c.apiKey, map[string]any{
		"model": c.model,
		"input": text,
	})
	if err != nil {
		return nil, err
	}

	var result embedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if result.Error != nil {
		return nil, &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("%s", result.Error.Message)}
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("response contains no embedding")}
	}
	return result.Data[0].Embedding, nil
}

// ---------- Completion Client ----------

// CompletionClient requests chat completions.
type CompletionClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      *http.Client
}

// NewCompletionClient creates a completion client from config.
func NewCompletionClient(cfg Config) *CompletionClient {
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &CompletionClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.ChatModel,
		temperature: temperature,
		maxTokens:   maxTokens,
		client:      newHTTPClient(),
	}
}

// Model returns the chat model id.
func (c *CompletionClient) Model() string { return c.model }

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the framed entries and returns the reply text.
func (c *CompletionClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	endpoint := c.baseURL + "/chat/completions"
	respBody, err := post(ctx, c.client, endpoint, c.apiKey, map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	var result completionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if result.Error != nil {
		return "", &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("%s", result.Error.Message)}
	}
	if len(result.Choices) == 0 {
		return "", &RemoteError{Endpoint: endpoint, Err: fmt.Errorf("response contains no choices")}
	}
	return extractReply(result.Choices[0].Message.Content), nil
}

// extractReply strips the structured "Message:" framing some models echo back
// from the prompt, returning only the actual reply text.
func extractReply(full string) string {
	full = strings.TrimSpace(full)
	if idx := strings.Index(full, "Message:"); idx >= 0 {
		return strings.TrimSpace(full[idx+len("Message:"):])
	}
	return full
}
