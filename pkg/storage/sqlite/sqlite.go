// Package sqlite is a thread.Storer backed by a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

const schema = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id  TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	image      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, id);
`

// Driver persists threads in two tables: one row per thread and one row per
// message, ordered by an autoincrement id.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (or creates) the database at dbPath and applies the schema.
// Use ":memory:" for a throwaway database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive for the life of the driver.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Driver{db: db}, nil
}

// Get loads a thread and all of its messages.
func (d *Driver) Get(ctx context.Context, id string) (*thread.Thread, error) {
	t := &thread.Thread{ThreadID: id}
	var created, updated int64
	err := d.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM threads WHERE thread_id = ?`, id,
	).Scan(&t.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, thread.ErrNotFound{ThreadID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)

	rows, err := d.db.QueryContext(ctx,
		`SELECT role, content, image, created_at FROM messages WHERE thread_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	t.Messages = []thread.Message{}
	for rows.Next() {
		var (
			m    thread.Message
			role string
			ts   int64
		)
		if err := rows.Scan(&role, &m.Content, &m.Image, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = thread.Role(role)
		m.Timestamp = fromNanos(ts)
		t.Messages = append(t.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return t, nil
}

// Insert writes the thread row and its initial messages in one transaction.
func (d *Driver) Insert(ctx context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("cannot insert nil thread")
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO threads (thread_id, title, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(thread_id) DO NOTHING`,
			t.ThreadID, t.Title, t.CreatedAt.UnixNano(), t.UpdatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
		if n == 0 {
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

// Append bumps updated_at and inserts the message in one transaction.
func (d *Driver) Append(ctx context.Context, id string, msg thread.Message) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE threads SET updated_at = MAX(updated_at, ?) WHERE thread_id = ?`,
			msg.Timestamp.UnixNano(), id)
		if err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		if n == 0 {
			return thread.ErrNotFound{ThreadID: id}
		}

		return insertMessage(ctx, tx, id, msg)
	})
}

// List returns thread summaries, most recently updated first.
func (d *Driver) List(ctx context.Context) ([]thread.Summary, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT t.thread_id, t.title, t.created_at, t.updated_at, COUNT(m.id)
		FROM threads t LEFT JOIN messages m ON m.thread_id = t.thread_id
		GROUP BY t.thread_id
		ORDER BY t.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	summaries := []thread.Summary{}
	for rows.Next() {
		var (
			s                thread.Summary
			created, updated int64
		)
		if err := rows.Scan(&s.ThreadID, &s.Title, &created, &updated, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		s.CreatedAt = fromNanos(created)
		s.UpdatedAt = fromNanos(updated)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes the thread and its messages.
func (d *Driver) Delete(ctx context.Context, id string) (int, error) {
	var deleted int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete thread: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return int(deleted), err
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, id string, m thread.Message) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO messages (thread_id, role, content, image, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(m.Role), m.Content, m.Image, m.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
