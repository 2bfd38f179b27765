// Package discord implements the Discord channel for VoxRelay using
// discordgo.
//
// Every non-self message in an allowed guild channel is forwarded to the
// relay, including messages from other bots: peer assistants converse
// through the same channels and their messages must reach the relevance
// filter like anyone else's.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels"
)

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guild (server) IDs the bot listens in.
	// Empty means all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot listens in.
	// Empty means all channels.
	AllowedChannels []string `yaml:"allowed_channels"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`

	// MaxMessageLength is the per-message character budget before chunking.
	// Kept under Discord's 2000 hard limit (default 1900).
	MaxMessageLength int `yaml:"max_message_length"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendTyping:       true,
		MaxMessageLength: 1900,
	}
}

// Discord implements channels.Channel over the Discord gateway.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages is the channel for incoming messages forwarded to the relay.
	messages chan *channels.IncomingMessage

	// connected tracks connection state.
	connected atomic.Bool

	// lastMsg tracks the last message timestamp for health.
	lastMsg atomic.Value // time.Time

	// errorCount tracks consecutive errors.
	errorCount atomic.Int64

	// selfMention is the bot's own mention token, set on connect.
	selfMention atomic.Value // string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 1900
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.selfMention.Store(mentionToken(user.ID))
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)

	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Send sends a text message to the specified channel, splitting content over
// the configured budget into ordered chunks. Only the first chunk carries
// the reply reference.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	if d.cfg.SendTyping {
		if err := d.session.ChannelTyping(to); err != nil {
			d.logger.Debug("discord: typing indicator failed", "channel", to, "error", err)
		}
	}

	chunks := channels.SplitMessage(message.Content, d.cfg.MaxMessageLength)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgSend := &discordgo.MessageSend{Content: chunk}
		if i == 0 && message.ReplyTo != "" {
			msgSend.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo}
		}
		if _, err := d.session.ChannelMessageSendComplex(to, msgSend); err != nil {
			d.errorCount.Add(1)
			return fmt.Errorf("%w: chunk %d/%d: %v", channels.ErrSendFailed, i+1, len(chunks), err)
		}
	}
	d.errorCount.Store(0)
	return nil
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// SelfID returns the bot's own mention token, empty before Connect.
func (d *Discord) SelfID() string {
	if v := d.selfMention.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Health returns the channel health status.
func (d *Discord) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := d.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// onMessageCreate forwards incoming Discord messages to the relay.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Only the bot's own messages are dropped. Other bots stay in the flow.
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	if len(d.cfg.AllowedGuilds) > 0 && m.GuildID != "" && !contains(d.cfg.AllowedGuilds, m.GuildID) {
		return
	}
	if len(d.cfg.AllowedChannels) > 0 && !contains(d.cfg.AllowedChannels, m.ChannelID) {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:           m.ID,
		ChannelID:    m.ChannelID,
		AuthorID:     mentionToken(m.Author.ID),
		AuthorName:   m.Author.Username,
		AuthorIsBot:  m.Author.Bot,
		Content:      m.Content,
		Timestamp:    m.Timestamp,
		MentionsSelf: mentionsUser(m.Mentions, s.State.User.ID),
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		incoming.ReplyToAuthor = mentionToken(m.ReferencedMessage.Author.ID)
	}

	d.lastMsg.Store(time.Now())

	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("discord: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// mentionToken formats a user ID as a Discord mention.
func mentionToken(userID string) string {
	return "<@" + userID + ">"
}

func mentionsUser(mentions []*discordgo.User, userID string) bool {
	for _, u := range mentions {
		if u != nil && u.ID == userID {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Compile-time interface verification.
var _ channels.Channel = (*Discord)(nil)
