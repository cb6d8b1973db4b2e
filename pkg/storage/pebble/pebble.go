// Package pebble is a thread.Storer backed by an embedded Pebble key-value
// store.
//
// Key layout (thread ids are hex encoded so arbitrary ids cannot collide on
// a shared prefix):
//
//	meta/<hex id>             -> JSON thread metadata, including the message count
//	msg/<hex id>/<%010d seq>  -> JSON message
package pebble

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

const (
	metaPrefix = "meta/"
	msgPrefix  = "msg/"
)

type meta struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Driver stores threads in Pebble. Writes that read the metadata first
// (Insert, Append, Delete) are serialized by a mutex.
type Driver struct {
	mu sync.RWMutex
	db *pebble.DB
}

// NewDriver opens (or creates) a Pebble database in dir.
func NewDriver(dir string) (*Driver, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	return &Driver{db: db}, nil
}

// Get loads the thread metadata and every message in sequence order.
func (d *Driver) Get(ctx context.Context, id string) (*thread.Thread, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	m, err := d.readMeta(id)
	if err != nil {
		return nil, err
	}

	t := &thread.Thread{
		ThreadID:  m.ThreadID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Messages:  make([]thread.Message, 0, m.Count),
	}

	prefix := msgKeyPrefix(id)
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var msg thread.Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", iter.Key(), err)
		}
		t.Messages = append(t.Messages, msg)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return t, nil
}

// Insert writes the metadata and initial messages in one batch.
func (d *Driver) Insert(ctx context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("cannot insert nil thread")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readMeta(t.ThreadID); err == nil {
		return thread.ErrAlreadyExists{ThreadID: t.ThreadID}
	} else if !thread.IsNotFound(err) {
		return err
	}

	b := d.db.NewBatch()
	defer b.Close()

	for i, msg := range t.Messages {
		if err := setJSON(b, msgKey(t.ThreadID, i), msg); err != nil {
			return err
		}
	}
	m := meta{
		ThreadID:  t.ThreadID,
		Title:     t.Title,
		Count:     len(t.Messages),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if err := setJSON(b, metaKey(t.ThreadID), m); err != nil {
		return err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit thread: %w", err)
	}
	return nil
}

// Append writes the message at the next sequence number and updates the
// metadata in one batch.
func (d *Driver) Append(ctx context.Context, id string, msg thread.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.readMeta(id)
	if err != nil {
		return err
	}

	b := d.db.NewBatch()
	defer b.Close()

	if err := setJSON(b, msgKey(id, m.Count), msg); err != nil {
		return err
	}
	m.Count++
	if msg.Timestamp.After(m.UpdatedAt) {
		m.UpdatedAt = msg.Timestamp
	}
	if err := setJSON(b, metaKey(id), m); err != nil {
		return err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

// List scans the metadata keys and sorts by UpdatedAt descending.
func (d *Driver) List(ctx context.Context) ([]thread.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	prefix := []byte(metaPrefix)
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	summaries := []thread.Summary{}
	for iter.First(); iter.Valid(); iter.Next() {
		var m meta
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode thread %s: %w", iter.Key(), err)
		}
		summaries = append(summaries, thread.Summary{
			ThreadID:     m.ThreadID,
			Title:        m.Title,
			MessageCount: m.Count,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	thread.SortByUpdated(summaries)
	return summaries, nil
}

// Delete removes the metadata and the whole message range.
func (d *Driver) Delete(ctx context.Context, id string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.readMeta(id); thread.IsNotFound(err) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	b := d.db.NewBatch()
	defer b.Close()

	prefix := msgKeyPrefix(id)
	if err := b.DeleteRange(prefix, upperBound(prefix), nil); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	if err := b.Delete(metaKey(id), nil); err != nil {
		return 0, fmt.Errorf("delete thread: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return 1, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) readMeta(id string) (meta, error) {
	var m meta
	v, closer, err := d.db.Get(metaKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return m, thread.ErrNotFound{ThreadID: id}
	}
	if err != nil {
		return m, fmt.Errorf("read thread: %w", err)
	}
	defer closer.Close()

	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("decode thread: %w", err)
	}
	return m, nil
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Set(key, data, nil)
}

func metaKey(id string) []byte {
	return []byte(metaPrefix + hex.EncodeToString([]byte(id)))
}

func msgKeyPrefix(id string) []byte {
	return []byte(msgPrefix + hex.EncodeToString([]byte(id)) + "/")
}

func msgKey(id string, seq int) []byte {
	return append(msgKeyPrefix(id), fmt.Sprintf("%010d", seq)...)
}

// upperBound returns the smallest key greater than every key with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
