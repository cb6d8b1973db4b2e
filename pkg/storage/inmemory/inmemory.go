// Package inmemory is a thread.Storer kept entirely in process memory.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/chatgate/pkg/thread"
)

// Driver stores threads in a map guarded by a mutex. Threads are copied on
// the way in and out so callers never share state with the store.
type Driver struct {
	mu      sync.RWMutex
	threads map[string]*thread.Thread
}

// NewDriver creates an empty in-memory store.
func NewDriver() *Driver {
	return &Driver{
		threads: make(map[string]*thread.Thread),
	}
}

// Get returns a copy of the stored thread.
func (d *Driver) Get(ctx context.Context, id string) (*thread.Thread, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	t, ok := d.threads[id]
	if !ok {
		return nil, thread.ErrNotFound{ThreadID: id}
	}
	return clone(t), nil
}

// Insert stores a copy of t.
func (d *Driver) Insert(ctx context.Context, t *thread.Thread) error {
	if t == nil {
		return fmt.Errorf("cannot insert nil thread")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.threads[t.ThreadID]; ok {
		return thread.ErrAlreadyExists{ThreadID: t.ThreadID}
	}
	d.threads[t.ThreadID] = clone(t)
	return nil
}

// Append adds msg to the thread under the write lock.
func (d *Driver) Append(ctx context.Context, id string, msg thread.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.threads[id]
	if !ok {
		return thread.ErrNotFound{ThreadID: id}
	}
	t.Messages = append(t.Messages, msg)
	if msg.Timestamp.After(t.UpdatedAt) {
		t.UpdatedAt = msg.Timestamp
	}
	return nil
}

// List returns summaries sorted by UpdatedAt descending.
func (d *Driver) List(ctx context.Context) ([]thread.Summary, error) {
	d.mu.RLock()
	summaries := make([]thread.Summary, 0, len(d.threads))
	for _, t := range d.threads {
		summaries = append(summaries, t.Summarize())
	}
	d.mu.RUnlock()

	thread.SortByUpdated(summaries)
	return summaries, nil
}

// Delete removes the thread if present.
func (d *Driver) Delete(ctx context.Context, id string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.threads[id]; !ok {
		return 0, nil
	}
	delete(d.threads, id)
	return 1, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func clone(t *thread.Thread) *thread.Thread {
	c := *t
	c.Messages = make([]thread.Message, len(t.Messages))
	copy(c.Messages, t.Messages)
	return &c
}
