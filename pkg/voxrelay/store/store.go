// Package store implements the durable message log backing VoxRelay's
// context retrieval. Every message is persisted with a semantic embedding;
// the store answers chronological history queries and exact brute-force
// cosine-similarity queries scoped to one channel.
//
// Messages are immutable once written: Append is the only mutator, and writes
// are serialized through a single writer per store instance so id order,
// insertion order, and timestamp order always agree.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Role classifies who authored a message. Closed set; the mapping happens
// once at ingestion and is never re-derived.
type Role string

const (
	// RoleHuman marks messages authored by people.
	RoleHuman Role = "human"

	// RoleAssistant marks messages authored by this assistant.
	RoleAssistant Role = "assistant"

	// RolePeer marks messages authored by other automated assistants in the
	// same conversation. Framed like assistant messages in prompts but kept
	// distinguishable in storage.
	RolePeer Role = "peer"
)

// ParseRole maps a wire-format role string to a Role, defaulting unknown
// values to RoleHuman.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAssistant:
		return RoleAssistant
	case RolePeer:
		return RolePeer
	default:
		return RoleHuman
	}
}

// Message is one stored chat message. Author and reply-target identifiers are
// platform mention tokens, opaque to the store.
type Message struct {
	ID        int64
	ChannelID string
	AuthorID  string
	Role      Role
	Content   string
	ReplyTo   string // mention token of the replied-to author, empty if none
	Timestamp time.Time

	// Embedding is the content's semantic vector, nil when the embedding
	// call failed at insert time. Rows without embeddings never appear in
	// similarity results.
	Embedding []float32
}

// Store is the message log contract consumed by the relay. Implemented
// in-process by SQLiteStore and PostgresStore, and remotely by HTTPClient.
type Store interface {
	// Append inserts a message, assigning its id and timestamp. The content
	// is embedded before insert; when embedding fails the message is stored
	// anyway and the returned error wraps ErrEmbeddingUnavailable.
	Append(ctx context.Context, msg *Message) (int64, error)

	// Recent returns up to limit most-recent messages of a channel in
	// chronological (oldest-first) order. Unknown channels yield an empty
	// result, not an error.
	Recent(ctx context.Context, channelID string, limit int) ([]Message, error)

	// Relevant returns up to limit messages of a channel ordered by
	// descending cosine similarity to the query text. Channels with no
	// embedded messages yield an empty result, not an error.
	Relevant(ctx context.Context, channelID, query string, limit int) ([]Message, error)

	// Close releases the underlying resources.
	Close() error
}

// Embedder produces the vector stored alongside each message. Satisfied by
// *llm.EmbeddingClient.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrEmbeddingUnavailable marks the soft condition where a message was stored
// but its embedding could not be generated.
var ErrEmbeddingUnavailable = errors.New("store: embedding unavailable")

// StorageError reports a failed persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// storageErr wraps err in a *StorageError unless it is nil.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths or a zero-magnitude vector yield 0, never NaN.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
