package relay

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/llm"
	"github.com/voxrelay/voxrelay/pkg/voxrelay/store"
)

// Completer is the completion contract consumed by the relay. Satisfied by
// *llm.CompletionClient.
type Completer interface {
	Complete(ctx context.Context, messages []llm.ChatMessage) (string, error)
}

// Recorder is the store surface the relay writes through.
type Recorder interface {
	ContextSource
	Append(ctx context.Context, msg *store.Message) (int64, error)
}

// Relay ties a messaging channel, the message store, and the LLM backend
// together. Message flow: receive → record → enqueue → (worker) filter →
// assemble context → complete → record reply → send chunked.
type Relay struct {
	cfg        *Config
	channel    channels.Channel
	recorder   Recorder
	completer  Completer
	assembler  *Assembler
	dispatcher *Dispatcher
	heartbeat  *Heartbeat
	logger     *slog.Logger

	// runID identifies this daemon instance in logs.
	runID string
}

// Option customizes a Relay, mainly for tests.
type Option func(*Relay)

// WithSampler injects the participation sampler used by the relevance filter.
func WithSampler(s Sampler) Option {
	return func(r *Relay) {
		r.dispatcher.filter.sampler = s
	}
}

// New wires a Relay from its collaborators.
func New(cfg *Config, ch channels.Channel, recorder Recorder, completer Completer, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Relay{
		cfg:       cfg,
		channel:   ch,
		recorder:  recorder,
		completer: completer,
		assembler: NewAssembler(recorder, cfg, logger),
		logger:    logger.With("component", "relay"),
		runID:     uuid.NewString(),
	}

	// SelfID is passed as a function: the channel only knows its identity
	// after Connect, which happens inside Run.
	filter := NewFilter(ch.SelfID, cfg.Name, cfg.Peers, cfg.ParticipationRate, nil)
	r.dispatcher = NewDispatcher(filter, r.handleMessage, logger)
	r.heartbeat = NewHeartbeat(cfg.Heartbeat, r, logger)

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns this instance's identifier.
func (r *Relay) RunID() string { return r.runID }

// Run connects the channel and processes inbound messages until ctx is
// cancelled. Blocking; returns after a graceful drain.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.channel.Connect(ctx); err != nil {
		return err
	}
	defer r.channel.Disconnect()

	r.heartbeat.Start()
	defer r.heartbeat.Stop()

	r.logger.Info("relay started", "run_id", r.runID, "channel", r.channel.Name(), "name", r.cfg.Name)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopping", "run_id", r.runID)
			r.dispatcher.Drain()
			return nil
		case msg, ok := <-r.channel.Receive():
			if !ok {
				r.dispatcher.Drain()
				return channels.ErrChannelDisconnected
			}
			r.handleInbound(ctx, msg)
		}
	}
}

// handleInbound records every message into the ambient conversation log, then
// hands it to the dispatcher. The relevance decision happens in the worker;
// recording is unconditional.
func (r *Relay) handleInbound(ctx context.Context, msg *channels.IncomingMessage) {
	stored := &store.Message{
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Role:      ingestRole(msg),
		Content:   msg.Content,
		ReplyTo:   msg.ReplyToAuthor,
	}
	if _, err := r.recorder.Append(ctx, stored); err != nil {
		if errors.Is(err, store.ErrEmbeddingUnavailable) {
			r.logger.Debug("message stored without embedding", "channel", msg.ChannelID)
		} else {
			// Storage failure: log and move on. The message still gets a
			// chance at a reply; it just won't appear in future context.
			r.logger.Error("failed to record message", "channel", msg.ChannelID, "error", err)
		}
	}

	r.dispatcher.Enqueue(ctx, msg)
}

// ingestRole maps a platform message to a storage role. This bot's messages
// never arrive here (the channel drops self-authored events), so a bot author
// is always a peer assistant.
func ingestRole(msg *channels.IncomingMessage) store.Role {
	if msg.AuthorIsBot {
		return store.RolePeer
	}
	return store.RoleHuman
}

// handleMessage processes one relevant message: assemble → complete →
// record → send. Called sequentially per channel by the dispatcher; at most
// one completion request is in flight for a channel at any instant.
func (r *Relay) handleMessage(ctx context.Context, channelID string, msg *channels.IncomingMessage) {
	prompt := r.assembler.Assemble(ctx, channelID, msg)

	reply, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("completion failed", "channel", channelID, "error", err)
		r.sendApology(ctx, channelID, msg)
		return
	}

	// Record our own reply before sending so it is part of the context for
	// whatever comes next in this channel.
	botMsg := &store.Message{
		ChannelID: channelID,
		AuthorID:  r.channel.SelfID(),
		Role:      store.RoleAssistant,
		Content:   reply,
		ReplyTo:   msg.AuthorID,
	}
	if _, err := r.recorder.Append(ctx, botMsg); err != nil && !errors.Is(err, store.ErrEmbeddingUnavailable) {
		r.logger.Error("failed to record reply", "channel", channelID, "error", err)
	}

	if err := r.channel.Send(ctx, channelID, &channels.OutgoingMessage{
		Content: reply,
		ReplyTo: msg.ID,
	}); err != nil {
		r.logger.Error("failed to send reply", "channel", channelID, "error", err)
	}
}

// sendApology emits the single user-visible failure notice. No synthetic
// reply is recorded in the store.
func (r *Relay) sendApology(ctx context.Context, channelID string, msg *channels.IncomingMessage) {
	apology := r.cfg.Reply.Apology
	if apology == "" {
		apology = "I apologize, but I'm having trouble formulating a complete response at the moment. Please try again later."
	}
	if err := r.channel.Send(ctx, channelID, &channels.OutgoingMessage{
		Content: r.cfg.Name + ": " + apology,
		ReplyTo: msg.ID,
	}); err != nil {
		r.logger.Error("failed to send failure notice", "channel", channelID, "error", err)
	}
}
