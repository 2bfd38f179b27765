package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service exposes the store over HTTP so the relay daemon can run in a
// separate process from the database. The wire shape mirrors the store
// contract: one append endpoint and two query endpoints.
type Service struct {
	store  Store
	server *http.Server
	logger *slog.Logger
}

// wireMessage is the JSON shape shared by both query endpoints.
type wireMessage struct {
	ID         int64  `json:"id"`
	User       string `json:"user"`
	Timestamp  string `json:"timestamp"`
	ReplyingTo string `json:"replying_to,omitempty"`
	Content    string `json:"content"`
	Role       string `json:"role"`
}

// addMessageRequest is the POST /add_message body.
type addMessageRequest struct {
	ChannelID  string `json:"channel_id"`
	UserID     string `json:"user_id"`
	Content    string `json:"content"`
	ReplyingTo string `json:"replying_to,omitempty"`
	Role       string `json:"role"`
}

// addMessageResponse is the POST /add_message reply.
type addMessageResponse struct {
	Status    string `json:"status"`
	MessageID int64  `json:"message_id"`
}

// NewService creates the HTTP service around a store backend.
func NewService(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "store-service"),
	}
}

// Router builds the chi router with the middleware stack.
func (s *Service) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)
	r.Post("/add_message", s.handleAddMessage)
	r.Get("/get_conversation_history/{channelID}", s.handleHistory)
	r.Get("/get_relevant_context/{channelID}", s.handleRelevant)

	return r
}

// Start binds the listener and serves in the background.
func (s *Service) Start(addr string) error {
	if addr == "" {
		addr = ":8090"
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("store service error", "error", err)
		}
	}()
	s.logger.Info("store service started", "address", addr)
	return nil
}

// Stop gracefully shuts the service down.
func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("store service stopping")
	return s.server.Shutdown(ctx)
}

// ---------- Handlers ----------

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAddMessage appends a message. Embedding happens inside Append and its
// failure never blocks the insert.
func (s *Service) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChannelID == "" || req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "channel_id and user_id are required")
		return
	}

	msg := &Message{
		ChannelID: req.ChannelID,
		AuthorID:  req.UserID,
		Role:      ParseRole(req.Role),
		Content:   req.Content,
		ReplyTo:   req.ReplyingTo,
	}
	id, err := s.store.Append(r.Context(), msg)
	if err != nil && !errors.Is(err, ErrEmbeddingUnavailable) {
		s.logger.Error("append failed", "channel", req.ChannelID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if errors.Is(err, ErrEmbeddingUnavailable) {
		embeddingsMissing.Inc()
	}
	messagesRecorded.WithLabelValues(string(msg.Role)).Inc()

	s.writeJSON(w, http.StatusOK, addMessageResponse{Status: "success", MessageID: id})
}

// handleHistory serves the chronological (oldest-first) window.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	limit := queryLimit(r, 10)

	msgs, err := s.store.Recent(r.Context(), channelID, limit)
	if err != nil {
		s.logger.Error("history query failed", "channel", channelID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	historyQueries.Inc()
	s.writeJSON(w, http.StatusOK, toWire(msgs))
}

// handleRelevant serves the similarity window for a text query.
func (s *Service) handleRelevant(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	query := r.URL.Query().Get("query")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	limit := queryLimit(r, 5)

	msgs, err := s.store.Relevant(r.Context(), channelID, query, limit)
	if err != nil {
		s.logger.Error("similarity query failed", "channel", channelID, "error", err)
		s.writeError(w, http.StatusBadGateway, "context retrieval unavailable")
		return
	}
	similarityQueries.Inc()
	s.writeJSON(w, http.StatusOK, toWire(msgs))
}

// ---------- Middleware and helpers ----------

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern to keep metric cardinality low.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func (s *Service) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"request_id", chimw.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func toWire(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{
			ID:         m.ID,
			User:       m.AuthorID,
			Timestamp:  m.Timestamp.UTC().Format(time.RFC3339),
			ReplyingTo: m.ReplyTo,
			Content:    m.Content,
			Role:       string(m.Role),
		})
	}
	return out
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
