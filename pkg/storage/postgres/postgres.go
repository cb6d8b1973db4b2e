// Package postgres is a thread.Storer backed by PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_threads (
	thread_id  TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	thread_id  TEXT NOT NULL REFERENCES chat_threads(thread_id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_thread ON chat_messages(thread_id, id);
`

// Config holds pool settings.
type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Driver stores threads in two tables. Appends lock the thread row, so
// concurrent appends to one thread are serialized by the database.
type Driver struct {
	pool *pgxpool.Pool
}

// NewDriver connects, pings and applies the schema.
func NewDriver(ctx context.Context, cfg Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Driver{pool: pool}, nil
}

// Get loads a thread and its messages.
func (d *Driver) Get(ctx context.Context, id string) (*thread.Thread, error) {
	t := &thread.Thread{ThreadID: id}
	err := d.pool.QueryRow(ctx,
		`SELECT title, created_at, updated_at FROM chat_threads WHERE thread_id = $1`, id,
	).Scan(&t.Title, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, thread.ErrNotFound{ThreadID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	rows, err := d.pool.Query(ctx,
		`SELECT role, content, image, created_at FROM chat_messages WHERE thread_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	t.Messages = []thread.Message{}
	for rows.Next() {
		var (
			m    thread.Message
			role string
		)
		if err := rows.Scan(&role, &m.Content, &m.Image, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = thread.Role(role)
		m.Timestamp = m.Timestamp.UTC()
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return t, nil
}

// Insert writes the thread and its initial messages in a transaction.
func (d *Driver) Insert(ctx context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("cannot insert nil thread")
	}

	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO chat_threads (thread_id, title, created_at, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (thread_id) DO NOTHING`,
			t.ThreadID, t.Title, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return thread.ErrAlreadyExists{ThreadID: t.ThreadID}
		}

		for _, m := range t.Messages {
			if err := insertMessage(ctx, tx, t.ThreadID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// Append bumps updated_at (taking the row lock) and inserts the message.
func (d *Driver) Append(ctx context.Context, id string, msg thread.Message) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE chat_threads SET updated_at = GREATEST(updated_at, $2) WHERE thread_id = $1`,
			id, msg.Timestamp)
		if err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return thread.ErrNotFound{ThreadID: id}
		}
		return insertMessage(ctx, tx, id, msg)
	})
}

// List returns summaries, most recently updated first.
func (d *Driver) List(ctx context.Context) ([]thread.Summary, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT t.thread_id, t.title, t.created_at, t.updated_at, COUNT(m.id)
		FROM chat_threads t LEFT JOIN chat_messages m ON m.thread_id = t.thread_id
		GROUP BY t.thread_id
		ORDER BY t.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	summaries := []thread.Summary{}
	for rows.Next() {
		var (
			s     thread.Summary
			count int64
		)
		if err := rows.Scan(&s.ThreadID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &count); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		s.MessageCount = int(count)
		s.CreatedAt = s.CreatedAt.UTC()
		s.UpdatedAt = s.UpdatedAt.UTC()
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes the thread; messages go with it through the cascade.
func (d *Driver) Delete(ctx context.Context, id string) (int, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM chat_threads WHERE thread_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete thread: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Truncate empties both tables. Used to reset shared test databases.
func (d *Driver) Truncate(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `TRUNCATE chat_messages, chat_threads`)
	return err
}

// Close closes the pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, id string, m thread.Message) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO chat_messages (thread_id, role, content, image, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(m.Role), m.Content, m.Image, m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
