package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// ContextSource is the slice of the store contract the assembler reads.
type ContextSource interface {
	Recent(ctx context.Context, channelID string, limit int) ([]store.Message, error)
	Relevant(ctx context.Context, channelID, query string, limit int) ([]store.Message, error)
}

// Assembler builds the ordered prompt for a completion request: system
// framing, a delimited block of semantically related past messages, a
// delimited block of recent history, and the triggering message itself.
//
// The per-message framing is part of the prompt contract: for the same stored
// data the same prompt is produced, so completions are reproducible.
type Assembler struct {
	source        ContextSource
	name          string
	relevantLimit int
	historyLimit  int
	logger        *slog.Logger
}

// NewAssembler creates an Assembler over a context source.
func NewAssembler(source ContextSource, cfg *Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	relevantLimit := cfg.Context.RelevantLimit
	if relevantLimit <= 0 {
		relevantLimit = 5
	}
	historyLimit := cfg.Context.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Assembler{
		source:        source,
		name:          cfg.Name,
		relevantLimit: relevantLimit,
		historyLimit:  historyLimit,
		logger:        logger.With("component", "assembler"),
	}
}

// Assemble produces the framed entries for the triggering message. Retrieval
// failures degrade to empty blocks; assembly itself never fails.
func (a *Assembler) Assemble(ctx context.Context, channelID string, incoming *channels.IncomingMessage) []llm.ChatMessage {
	relevant, err := a.source.Relevant(ctx, channelID, incoming.Content, a.relevantLimit)
	if err != nil {
		a.logger.Warn("context retrieval failed, continuing without it", "channel", channelID, "error", err)
		relevant = nil
	}

	history, err := a.source.Recent(ctx, channelID, a.historyLimit)
	if err != nil {
		a.logger.Warn("history retrieval failed, continuing without it", "channel", channelID, "error", err)
		history = nil
	}

	prompt := make([]llm.ChatMessage, 0, len(relevant)+len(history)+7)
	prompt = append(prompt, llm.ChatMessage{
		Role: llm.ChatRoleSystem,
		Content: fmt.Sprintf(
			"You are %s, an AI assistant in a conversation with multiple humans and other AI assistants. Respond naturally to messages.",
			a.name,
		),
	})

	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: "--- Retrieved Context Start ---"})
	for _, msg := range relevant {
		prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: frameStored(msg)})
	}
	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: "--- Retrieved Context End ---"})

	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: "--- Recent Messages Start ---"})
	for _, msg := range history {
		prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: frameStored(msg)})
	}
	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: "--- Recent Messages End ---"})

	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: "--- Task ---"})
	prompt = append(prompt, llm.ChatMessage{Role: llm.ChatRoleSystem, Content: frameTask(incoming)})

	return prompt
}

// frameStored renders one stored message as a prompt entry. Every field is
// encoded explicitly, with "None" marking an absent reply target.
func frameStored(m store.Message) string {
	return fmt.Sprintf("[Message %d]\nSpeaker: %s (Type: %s)\nTime: %s\nReplying To: %s\nMessage: %s",
		m.ID,
		m.AuthorID,
		speakerType(m.Role),
		m.Timestamp.UTC().Format(time.RFC3339),
		orNone(m.ReplyTo),
		m.Content,
	)
}

// frameTask renders the triggering message as the final prompt entry.
func frameTask(in *channels.IncomingMessage) string {
	speaker := "Human"
	if in.AuthorIsBot {
		speaker = "AI Assistant"
	}
	return fmt.Sprintf("Respond to: [Message %s]\nSpeaker: %s (Type: %s)\nTime: %s\nReplying To: %s\nMessage: %s",
		in.ID,
		in.AuthorID,
		speaker,
		in.Timestamp.UTC().Format(time.RFC3339),
		orNone(in.ReplyToAuthor),
		in.Content,
	)
}

// speakerType maps storage roles to the prompt's two speaker categories.
// Peer assistants read as AI assistants, like our own messages.
func speakerType(r store.Role) string {
	if r == store.RoleHuman {
		return "Human"
	}
	return "AI Assistant"
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}
