package thread

import (
	"context"
	"errors"
	"sort"
)

// Storer defines the interface for persisting conversation threads.
// Implementations must be safe for concurrent use: a single Append is atomic
// with respect to other appends on the same thread, so concurrent writers
// never lose a message. No ordering is promised between writers.
type Storer interface {
	// Get returns the thread with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Thread, error)

	// Insert stores a new thread. It returns ErrAlreadyExists if a thread with
	// the same id is already stored.
	Insert(ctx context.Context, t *Thread) error

	// Append adds msg to the end of the thread and advances UpdatedAt.
	// It returns ErrNotFound if the thread does not exist.
	Append(ctx context.Context, id string, msg Message) error

	// List returns summaries of every thread, most recently updated first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes the thread and returns the number of threads deleted.
	Delete(ctx context.Context, id string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when a thread doesn't exist in the store.
type ErrNotFound struct {
	ThreadID string
}

func (e ErrNotFound) Error() string {
	if e.ThreadID == "" {
		return "thread not found"
	}

	return "thread not found: " + e.ThreadID
}

// ErrAlreadyExists is returned by Insert when the thread id is taken.
type ErrAlreadyExists struct {
	ThreadID string
}

func (e ErrAlreadyExists) Error() string {
	return "thread already exists: " + e.ThreadID
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is or wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	var ae ErrAlreadyExists
	return errors.As(err, &ae)
}

// SortByUpdated orders summaries most recently updated first. Ties keep
// their relative order.
func SortByUpdated(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
}
