package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPClient implements Store against a remote store service. Used when the
// relay daemon and the store run as separate processes.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the store service at baseURL.
func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "store-client"),
	}
}

// Append posts the message to /add_message. The service embeds internally, so
// the soft embedding condition is not observable here; any transport or
// service failure is a StorageError.
func (c *HTTPClient) Append(ctx context.Context, msg *Message) (int64, error) {
	body, err := json.Marshal(addMessageRequest{
		ChannelID:  msg.ChannelID,
		UserID:     msg.AuthorID,
		Content:    msg.Content,
		ReplyingTo: msg.ReplyTo,
		Role:       string(msg.Role),
	})
	if err != nil {
		return 0, storageErr("append: marshal", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/add_message", bytes.NewReader(body))
	if err != nil {
		return 0, storageErr("append", err)
	}

	var resp addMessageResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, storageErr("append: unmarshal", err)
	}
	msg.ID = resp.MessageID
	return resp.MessageID, nil
}

// Recent fetches the chronological window from /get_conversation_history.
func (c *HTTPClient) Recent(ctx context.Context, channelID string, limit int) ([]Message, error) {
	path := "/get_conversation_history/" + url.PathEscape(channelID) + "?limit=" + strconv.Itoa(limit)
	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, storageErr("recent", err)
	}
	return fromWire(respBody)
}

// Relevant fetches the similarity window from /get_relevant_context.
func (c *HTTPClient) Relevant(ctx context.Context, channelID, query string, limit int) ([]Message, error) {
	path := "/get_relevant_context/" + url.PathEscape(channelID) +
		"?query=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, storageErr("relevant", err)
	}
	return fromWire(respBody)
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("store service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func fromWire(body []byte) ([]Message, error) {
	var wire []wireMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, storageErr("unmarshal messages", err)
	}
	msgs := make([]Message, 0, len(wire))
	for _, wm := range wire {
		ts, _ := time.Parse(time.RFC3339, wm.Timestamp)
		msgs = append(msgs, Message{
			ID:        wm.ID,
			AuthorID:  wm.User,
			Role:      ParseRole(wm.Role),
			Content:   wm.Content,
			ReplyTo:   wm.ReplyingTo,
			Timestamp: ts,
		})
	}
	return msgs, nil
}
