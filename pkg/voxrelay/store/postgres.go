package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver.
)

// PostgresStore is the PostgreSQL message log backend, for deployments where
// the store service outlives a single host. Same contract and the same
// JSON-encoded embedding representation as SQLiteStore.
type PostgresStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger

	writeMu sync.Mutex
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id         BIGSERIAL PRIMARY KEY,
		channel_id TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		reply_to   TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		embedding  TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages(channel_id, id);
`

// OpenPostgres connects to PostgreSQL and ensures the schema exists.
func OpenPostgres(dsn string, embedder Embedder, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, storageErr("open postgres", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("ping postgres", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, storageErr("init schema", err)
	}

	return &PostgresStore{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "store"),
	}, nil
}

// Append inserts a message with the same soft embedding semantics as the
// SQLite backend.
func (s *PostgresStore) Append(ctx context.Context, msg *Message) (int64, error) {
	var (
		embedding sql.NullString
		embedErr  error
	)
	vec, err := s.embedder.Embed(ctx, msg.Content)
	switch {
	case err != nil, len(vec) == 0:
		if err != nil {
			s.logger.Warn("embedding failed, storing message without vector", "error", err)
		}
		embedErr = ErrEmbeddingUnavailable
	default:
		data, jerr := json.Marshal(vec)
		if jerr != nil {
			embedErr = ErrEmbeddingUnavailable
		} else {
			embedding = sql.NullString{String: string(data), Valid: true}
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (channel_id, author_id, role, content, reply_to, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, msg.ChannelID, msg.AuthorID, string(msg.Role), msg.Content, nullString(msg.ReplyTo), now, embedding).Scan(&id)
	if err != nil {
		return 0, storageErr("append", err)
	}

	msg.ID = id
	msg.Timestamp = now
	return id, embedErr
}

// Recent returns the channel's newest limit messages, oldest-first.
func (s *PostgresStore) Recent(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, role, content, reply_to, created_at, embedding
		FROM messages WHERE channel_id = $1
		ORDER BY id DESC LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, storageErr("recent", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, storageErr("recent: scan", err)
	}
	reverse(msgs)
	return msgs, nil
}

// Similar returns the channel's top limit messages by descending cosine
// similarity to the query vector.
func (s *PostgresStore) Similar(ctx context.Context, channelID string, query []float32, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, role, content, reply_to, created_at, embedding
		FROM messages WHERE channel_id = $1 AND embedding IS NOT NULL
	`, channelID)
	if err != nil {
		return nil, storageErr("similar", err)
	}
	defer rows.Close()

	candidates, err := scanMessages(rows)
	if err != nil {
		return nil, storageErr("similar: scan", err)
	}
	return rankBySimilarity(candidates, query, limit), nil
}

// Relevant embeds the query text and delegates to Similar.
func (s *PostgresStore) Relevant(ctx context.Context, channelID, query string, limit int) ([]Message, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Similar(ctx, channelID, vec, limit)
}

// Count returns the total number of stored messages.
func (s *PostgresStore) Count(ctx context.Context) int {
	var count int
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
