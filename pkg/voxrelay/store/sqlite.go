package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// SQLiteStore is the default message log backend. Embeddings are stored as
// JSON-encoded float32 arrays in a nullable TEXT column, which keeps the
// schema portable and avoids a vector extension; similarity search is an
// in-process brute-force scan over the channel's embedded rows.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger

	// writeMu serializes Append: one writer at a time keeps id, insertion,
	// and timestamp order identical. Readers go through the pool.
	writeMu sync.Mutex
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		author_id  TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		reply_to   TEXT,
		created_at DATETIME NOT NULL,
		embedding  TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages(channel_id, id);
`

// OpenSQLite opens or creates a SQLite message database.
func OpenSQLite(dbPath string, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, storageErr("init schema", err)
	}

	return &SQLiteStore{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "store"),
	}, nil
}

// Append inserts a message, embedding its content first. Embedding failure is
// soft: the row is stored without a vector and the returned error wraps
// ErrEmbeddingUnavailable.
func (s *SQLiteStore) Append(ctx context.Context, msg *Message) (int64, error) {
	embedding, embedErr := s.embed(ctx, msg.Content)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, author_id, role, content, reply_to, created_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ChannelID, msg.AuthorID, string(msg.Role), msg.Content, nullString(msg.ReplyTo), now, embedding)
	if err != nil {
		return 0, storageErr("append", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("append: last insert id", err)
	}

	msg.ID = id
	msg.Timestamp = now
	return id, embedErr
}

// embed produces the JSON-encoded embedding column value, nil on failure.
func (s *SQLiteStore) embed(ctx context.Context, content string) (sql.NullString, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil || len(vec) == 0 {
		if err != nil {
			s.logger.Warn("embedding failed, storing message without vector", "error", err)
		}
		return sql.NullString{}, ErrEmbeddingUnavailable
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return sql.NullString{}, ErrEmbeddingUnavailable
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Recent returns the channel's newest limit messages, oldest-first.
func (s *SQLiteStore) Recent(ctx context.Context, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, role, content, reply_to, created_at, embedding
		FROM messages WHERE channel_id = ?
		ORDER BY id DESC LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, storageErr("recent", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, storageErr("recent: scan", err)
	}

	// Rows come newest-first; prompts want chronological order.
	reverse(msgs)
	return msgs, nil
}

// Similar returns the channel's top limit messages by descending cosine
// similarity to the query vector, ties broken most-recent first. Rows without
// embeddings are excluded.
func (s *SQLiteStore) Similar(ctx context.Context, channelID string, query []float32, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_id, role, content, reply_to, created_at, embedding
		FROM messages WHERE channel_id = ? AND embedding IS NOT NULL
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
func (s *SQLiteStore) Relevant(ctx context.Context, channelID, query string, limit int) ([]Message, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.Similar(ctx, channelID, vec, limit)
}

// Count returns the total number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var count int
	_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count)
	return count
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------- Shared row helpers ----------

// scanMessages reads messages from a query over the standard column set.
func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var (
			m       Message
			role    string
			replyTo sql.NullString
			embJSON sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.AuthorID, &role, &m.Content, &replyTo, &m.Timestamp, &embJSON); err != nil {
			return nil, err
		}
		m.Role = ParseRole(role)
		if replyTo.Valid {
			m.ReplyTo = replyTo.String
		}
		if embJSON.Valid {
			// Undecodable vectors are treated the same as absent ones.
			_ = json.Unmarshal([]byte(embJSON.String), &m.Embedding)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// rankBySimilarity orders candidates by descending cosine similarity to the
// query, ties broken by higher id (more recent), truncated to limit.
func rankBySimilarity(candidates []Message, query []float32, limit int) []Message {
	type scored struct {
		msg   Message
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		if len(m.Embedding) == 0 {
			continue
		}
		ranked = append(ranked, scored{msg: m, score: cosineSimilarity(query, m.Embedding)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].msg.ID > ranked[j].msg.ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result := make([]Message, len(ranked))
	for i, r := range ranked {
		result[i] = r.msg
	}
	return result
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
