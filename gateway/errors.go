package gateway

import (
	"errors"
	"fmt"
	"net"

	"github.com/fasthttp/websocket"
)

// ProtocolError is a frame the gateway could not accept. The connection
// stays open; the frame is skipped or answered with an error envelope.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// StorageError is a failed store call. It is logged and never ends a cycle.
type StorageError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// TransportError is a failed read or write on the connection. Disconnect is
// set when the peer is gone, which ends the receive loop.
type TransportError struct {
	Op         string
	Disconnect bool
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Disconnect: isDisconnect(err), Err: err}
}

func isDisconnect(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) ||
		errors.Is(err, websocket.ErrCloseSent) ||
		errors.Is(err, net.ErrClosed)
}
