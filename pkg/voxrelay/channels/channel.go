// Package channels defines the interface and message types for VoxRelay
// messaging channels. A channel delivers inbound group-chat events and sends
// outbound text; everything else (filtering, context, completion) lives in
// the relay.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel is the boundary to a messaging platform.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send sends a message to the given conversation. Long content is split
	// into size-bounded chunks before sending.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns a Go channel that emits incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// SelfID returns the platform mention token for the bot's own identity
	// (opaque to callers; used only for equality checks).
	SelfID() string

	// Health returns the channel health status.
	Health() HealthStatus
}

// IncomingMessage represents a message received from a channel.
//
// AuthorID and ReplyToAuthor carry platform-native mention tokens. The relay
// treats them as opaque strings and only compares them for equality.
type IncomingMessage struct {
	// ID is the platform message identifier.
	ID string

	// ChannelID identifies the conversation scope (guild channel, group chat).
	ChannelID string

	// AuthorID is the sender's mention token (e.g. "<@1234>").
	AuthorID string

	// AuthorName is the sender's display name.
	AuthorName string

	// AuthorIsBot reports whether the platform flags the sender as a bot.
	AuthorIsBot bool

	// Content is the message text.
	Content string

	// Timestamp is when the platform recorded the message.
	Timestamp time.Time

	// MentionsSelf reports whether the bot was directly addressed
	// (platform mention, not a name substring).
	MentionsSelf bool

	// ReplyToAuthor is the mention token of the author of the message this
	// one replies to, empty when not a reply or the target is unresolved.
	ReplyToAuthor string
}

// OutgoingMessage represents a message to be sent through a channel.
type OutgoingMessage struct {
	// Content is the text to send. Split into chunks when over the budget.
	Content string

	// ReplyTo is the platform message ID to reply to (first chunk only).
	ReplyTo string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
)

// SplitMessage splits text into chunks of at most maxLen bytes, cutting at
// the last whitespace at or before the limit. When a chunk has no whitespace
// it is cut hard at maxLen. Leading whitespace of the remainder is dropped
// so the split point is not resent.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLen {
		cut := lastWhitespace(text[:maxLen])
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, text[:cut])
		text = trimLeadingWhitespace(text[cut:])
	}
	return append(chunks, text)
}

// lastWhitespace returns the index of the last ASCII whitespace byte in s,
// or -1 when there is none.
func lastWhitespace(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ' ', '\n', '\t', '\r':
			return i
		}
	}
	return -1
}

func trimLeadingWhitespace(s string) string {
	for len(s) > 0 {
		switch s[0] {
		case ' ', '\n', '\t', '\r':
			s = s[1:]
		default:
			return s
		}
	}
	return s
}
