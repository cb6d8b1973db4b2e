// Package inference defines the language-model collaborator used to generate
// replies, along with the error type its backends return.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// DefaultImageInstruction replaces an empty prompt on the image path.
const DefaultImageInstruction = "Describe this image in detail."

var (
	// ErrNotConfigured is returned by backends missing credentials or a model.
	ErrNotConfigured = errors.New("inference backend not configured")
	// ErrEmptyResponse is returned when the model answered without any text.
	ErrEmptyResponse = errors.New("invalid response from model: no text")
)

// Client generates text from a prompt, optionally conditioned on an image.
// Each call is a single attempt; failures are returned as *Error.
type Client interface {
	GenerateText(ctx context.Context, prompt, language string) (string, error)
	GenerateFromImage(ctx context.Context, prompt string, image []byte, language string) (string, error)
}

// Op names the Client call that failed.
type Op string

const (
	OpText  Op = "text"
	OpImage Op = "image"
)

// Error is the failure returned by every backend.
type Error struct {
	Backend string
	Op      Op
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s generation failed: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TextPrompt builds the prompt sent on the text path.
func TextPrompt(message, language string) string {
	return fmt.Sprintf("Respond in %s. User query: %s", language, message)
}

// ImagePrompt builds the prompt sent alongside an image.
func ImagePrompt(message, language string) string {
	if message == "" {
		message = DefaultImageInstruction
	}
	return fmt.Sprintf("Respond in %s. %s", language, message)
}

// Unconfigured is a Client whose every call fails with ErrNotConfigured.
// It stands in when no backend is set up so the gateway can still serve
// phrase-table replies.
type Unconfigured struct {
	Reason string
}

func (u Unconfigured) GenerateText(ctx context.Context, prompt, language string) (string, error) {
	return "", u.err(OpText)
}

func (u Unconfigured) GenerateFromImage(ctx context.Context, prompt string, image []byte, language string) (string, error) {
	return "", u.err(OpImage)
}

func (u Unconfigured) err(op Op) error {
	err := ErrNotConfigured
	if u.Reason != "" {
		err = fmt.Errorf("%w: %s", ErrNotConfigured, u.Reason)
	}
	return &Error{Backend: "none", Op: op, Err: err}
}
