package relay

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Heartbeat periodically logs a liveness line with channel and dispatcher
// state. Disabled heartbeats are inert; Start and Stop are no-ops.
type Heartbeat struct {
	cron   *cron.Cron
	relay  *Relay
	logger *slog.Logger
}

// NewHeartbeat builds a heartbeat from config. An invalid interval falls
// back to every five minutes.
func NewHeartbeat(cfg HeartbeatConfig, r *Relay, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Heartbeat{
		relay:  r,
		logger: logger.With("component", "heartbeat"),
	}
	if !cfg.Enabled {
		return h
	}

	interval := cfg.Interval
	if interval == "" {
		interval = "5m"
	}

	h.cron = cron.New()
	if _, err := h.cron.AddFunc("@every "+interval, h.beat); err != nil {
		h.logger.Warn("invalid heartbeat interval, using 5m", "interval", interval, "error", err)
		h.cron = cron.New()
		if _, err := h.cron.AddFunc("@every 5m", h.beat); err != nil {
			h.logger.Error("heartbeat disabled", "error", err)
			h.cron = nil
		}
	}
	return h
}

func (h *Heartbeat) beat() {
	health := h.relay.channel.Health()
	h.logger.Info("heartbeat",
		"run_id", h.relay.runID,
		"channel", h.relay.channel.Name(),
		"connected", health.Connected,
		"last_message_at", health.LastMessageAt,
		"error_count", health.ErrorCount,
		"active_channels", h.relay.dispatcher.ActiveChannels(),
	)
}

// Start begins emitting heartbeats.
func (h *Heartbeat) Start() {
	if h.cron != nil {
		h.cron.Start()
	}
}

// Stop halts the heartbeat. Safe to call on a disabled heartbeat.
func (h *Heartbeat) Stop() {
	if h.cron != nil {
		h.cron.Stop()
	}
}
