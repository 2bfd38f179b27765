package store

import (
	"context"
	"net/http/httptest"
	"testing"
)

// newServiceFixture wires a throwaway store behind the HTTP service and
// returns a client pointed at it.
func newServiceFixture(t *testing.T, embedder Embedder) *HTTPClient {
	t.Helper()
	st := newTestStore(t, embedder)
	svc := NewService(st, nil)
	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, nil)
}

func TestService_AddAndHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	client := newServiceFixture(t, &stubEmbedder{})
	ctx := context.Background()

	first := &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: "hello"}
	id, err := client.Append(ctx, first)
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if id == 0 {
		t.Fatal("Append() returned zero id")
	}

	second := &Message{ChannelID: "c1", AuthorID: "<@bot>", Role: RoleAssistant, Content: "hi!", ReplyTo: "<@u1>"}
	if _, err := client.Append(ctx, second); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	msgs, err := client.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Recent() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi!" {
		t.Errorf("history order = [%s %s], want [hello hi!]", msgs[0].Content, msgs[1].Content)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("role = %q, want assistant", msgs[1].Role)
	}
	if msgs[1].ReplyTo != "<@u1>" {
		t.Errorf("reply_to = %q, want <@u1>", msgs[1].ReplyTo)
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("timestamp did not survive the wire round trip")
	}
}

func TestService_RelevantContext(t *testing.T) {
	t.Parallel()

	e := &stubEmbedder{vectors: map[string][]float32{
		"the deploy broke":  {1, 0, 0},
		"lunch plans":       {0, 1, 0},
		"what broke today?": {1, 0, 0},
	}}
	client := newServiceFixture(t, e)
	ctx := context.Background()

	for _, content := range []string{"the deploy broke", "lunch plans"} {
		if _, err := client.Append(ctx, &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: content}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	msgs, err := client.Relevant(ctx, "c1", "what broke today?", 1)
	if err != nil {
		t.Fatalf("Relevant() error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "the deploy broke" {
		t.Errorf("Relevant() = %v, want the deploy message", msgs)
	}
}

func TestService_AddMessageToleratesEmbeddingFailure(t *testing.T) {
	t.Parallel()

	client := newServiceFixture(t, &stubEmbedder{broken: true})
	ctx := context.Background()

	id, err := client.Append(ctx, &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: "still stored"})
	if err != nil {
		t.Fatalf("Append() error: %v (embedding failure must not block the insert)", err)
	}
	if id == 0 {
		t.Fatal("Append() returned zero id")
	}

	msgs, err := client.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("Recent() returned %d messages, want 1", len(msgs))
	}
}

func TestService_BadRequests(t *testing.T) {
	t.Parallel()

	client := newServiceFixture(t, &stubEmbedder{})
	ctx := context.Background()

	if _, err := client.Append(ctx, &Message{ChannelID: "", AuthorID: "", Content: "x"}); err == nil {
		t.Error("Append() with missing identifiers should fail")
	}
	if _, err := client.Relevant(ctx, "c1", "", 5); err == nil {
		t.Error("Relevant() with empty query should fail")
	}
}
