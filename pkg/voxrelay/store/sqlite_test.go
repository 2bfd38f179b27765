package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
)

// stubEmbedder returns canned vectors keyed by text, or fails when broken.
type stubEmbedder struct {
	vectors map[string][]float32
	broken  bool
	calls   int
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.broken {
		return nil, errors.New("embedding backend unreachable")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

// newTestStore opens a throwaway on-disk database. A plain ":memory:" DSN
// gives each pooled connection its own empty database, so the schema would
// vanish between queries.
func newTestStore(t *testing.T, embedder Embedder) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"), embedder, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_AppendAssignsOrderedIDs(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &stubEmbedder{})
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.Append(ctx, &Message{
			ChannelID: "c1",
			AuthorID:  "<@u1>",
			Role:      RoleHuman,
			Content:   fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("Append() error: %v", err)
		}
		if id <= last {
			t.Errorf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestSQLiteStore_RecentChronological(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &stubEmbedder{})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := s.Append(ctx, &Message{
			ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman,
			Content: fmt.Sprintf("m%d", i),
		}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "c1", 4)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("Recent() returned %d messages, want 4", len(msgs))
	}
	// Truncation keeps the newest 4, returned oldest-first.
	if msgs[0].Content != "m2" || msgs[3].Content != "m5" {
		t.Errorf("Recent() window = [%s..%s], want [m2..m5]", msgs[0].Content, msgs[3].Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", msgs[i].ID, msgs[i-1].ID)
		}
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("timestamps not non-decreasing at index %d", i)
		}
	}
}

func TestSQLiteStore_RecentUnknownChannel(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &stubEmbedder{})
	msgs, err := s.Recent(context.Background(), "nope", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Recent() on unknown channel returned %d messages, want 0", len(msgs))
	}
}

func TestSQLiteStore_SimilarScopingAndRanking(t *testing.T) {
	t.Parallel()

	e := &stubEmbedder{vectors: map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
		"elsewhere":  {1, 0, 0},
	}}
	s := newTestStore(t, e)
	ctx := context.Background()

	for _, m := range []Message{
		{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: "exact"},
		{ChannelID: "c1", AuthorID: "<@u2>", Role: RoleHuman, Content: "close"},
		{ChannelID: "c1", AuthorID: "<@u3>", Role: RoleHuman, Content: "orthogonal"},
		{ChannelID: "c2", AuthorID: "<@u4>", Role: RoleHuman, Content: "elsewhere"},
	} {
		m := m
		if _, err := s.Append(ctx, &m); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	got, err := s.Similar(ctx, "c1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Similar() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Similar() returned %d messages, want 2", len(got))
	}
	if got[0].Content != "exact" || got[1].Content != "close" {
		t.Errorf("ranking = [%s %s], want [exact close]", got[0].Content, got[1].Content)
	}
	for _, m := range got {
		if m.ChannelID != "c1" {
			t.Errorf("Similar() leaked message from channel %q", m.ChannelID)
		}
	}

	// Idempotence: an unchanged store returns the same ordered result.
	again, err := s.Similar(ctx, "c1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Similar() error: %v", err)
	}
	for i := range got {
		if again[i].ID != got[i].ID {
			t.Errorf("repeated query diverged at %d: %d != %d", i, again[i].ID, got[i].ID)
		}
	}
}

func TestSQLiteStore_SimilarSelfRoundTrip(t *testing.T) {
	t.Parallel()

	vec := []float32{0.3, 0.5, 0.8}
	e := &stubEmbedder{vectors: map[string][]float32{"target": vec}}
	s := newTestStore(t, e)
	ctx := context.Background()

	if _, err := s.Append(ctx, &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: "target"}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := s.Similar(ctx, "c1", vec, 1)
	if err != nil {
		t.Fatalf("Similar() error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "target" {
		t.Fatalf("Similar() = %v, want the appended message at the top", got)
	}
	if sim := cosineSimilarity(vec, got[0].Embedding); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("self similarity = %v, want 1.0", sim)
	}
}

func TestSQLiteStore_SimilarTieBreakMostRecent(t *testing.T) {
	t.Parallel()

	e := &stubEmbedder{vectors: map[string][]float32{
		"dup one": {0, 1, 0},
		"dup two": {0, 1, 0},
	}}
	s := newTestStore(t, e)
	ctx := context.Background()

	for _, content := range []string{"dup one", "dup two"} {
		if _, err := s.Append(ctx, &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: content}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	got, err := s.Similar(ctx, "c1", []float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("Similar() error: %v", err)
	}
	if got[0].Content != "dup two" {
		t.Errorf("tie broke to %q, want the more recent %q", got[0].Content, "dup two")
	}
}

func TestSQLiteStore_EmbeddingFailureIsSoft(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &stubEmbedder{broken: true})
	ctx := context.Background()

	id, err := s.Append(ctx, &Message{ChannelID: "c1", AuthorID: "<@u1>", Role: RoleHuman, Content: "no vector"})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("Append() error = %v, want ErrEmbeddingUnavailable", err)
	}
	if id == 0 {
		t.Fatal("Append() did not store the message despite the soft condition")
	}

	// Stored and visible in history.
	msgs, err := s.Recent(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Recent() returned %d messages, want 1", len(msgs))
	}

	// Excluded from similarity candidates.
	sims, err := s.Similar(ctx, "c1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Similar() error: %v", err)
	}
	if len(sims) != 0 {
		t.Errorf("Similar() returned %d unembedded messages, want 0", len(sims))
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := cosineSimilarity(tt.a, tt.b)
			if math.IsNaN(got) {
				t.Fatal("cosineSimilarity returned NaN")
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Role
	}{
		{"human", RoleHuman},
		{"assistant", RoleAssistant},
		{"peer", RolePeer},
		{"user", RoleHuman},
		{"", RoleHuman},
	}
	for _, tt := range tests {
		if got := ParseRole(tt.in); got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteStore_Count(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, &stubEmbedder{})
	ctx := context.Background()

	if got := s.Count(ctx); got != 0 {
		t.Errorf("Count() = %d on empty store, want 0", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, &Message{
			ChannelID: fmt.Sprintf("c%d", i),
			AuthorID:  "<@u1>",
			Role:      RoleHuman,
			Content:   "hello",
		}); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	// Counts span all channels.
	if got := s.Count(ctx); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}
