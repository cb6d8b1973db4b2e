// Package reply decides what the assistant says back to a chat message:
// a canned phrase when one matches, otherwise a generated answer.
package reply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
)

const (
	// EmptyMessageReply answers a message with neither text nor a usable image.
	EmptyMessageReply = "I didn't receive any message. Please try again."

	textApology  = "Sorry, I encountered an error contacting the AI service. Error: %v"
	imageApology = "Sorry, I encountered an error processing your image. Error: %v"
)

// Source records which branch produced a Reply.
type Source string

const (
	SourcePhrase    Source = "phrase"
	SourceInference Source = "inference"
	SourceApology   Source = "apology"
	SourceEmpty     Source = "empty"
)

// Request is the input to Resolve.
type Request struct {
	Content string
	// ImagePath is a local file path, or empty for text-only messages.
	ImagePath string
	Language  string
}

// Reply is always usable as the assistant's answer.
type Reply struct {
	Text   string
	Source Source
	// Err is the inference failure behind an apology, for logging only.
	Err error
}

// Resolver chooses between the phrase table and the inference backend.
type Resolver struct {
	phrases Phrases
	client  inference.Client
	logger  *zap.Logger
}

func NewResolver(phrases Phrases, client inference.Client, logger *zap.Logger) *Resolver {
	return &Resolver{
		phrases: phrases,
		client:  client,
		logger:  logger,
	}
}

// Resolve never fails: inference errors are turned into an apology that
// embeds the error text.
func (r *Resolver) Resolve(ctx context.Context, req Request) Reply {
	if text, ok := r.phrases.Lookup(req.Content); ok {
		r.logger.Debug("matched phrase", zap.String("content", truncate(req.Content)))
		return Reply{Text: text, Source: SourcePhrase}
	}

	if req.ImagePath != "" {
		image, err := os.ReadFile(req.ImagePath)
		if err == nil {
			return r.fromImage(ctx, req, image)
		}
		r.logger.Warn("image unavailable, replying to text only",
			zap.String("image_path", req.ImagePath),
			zap.Error(err),
		)
	}

	if strings.TrimSpace(req.Content) == "" {
		return Reply{Text: EmptyMessageReply, Source: SourceEmpty}
	}

	text, err := r.client.GenerateText(ctx, req.Content, req.Language)
	if err != nil {
		return r.apologize(textApology, err)
	}
	return Reply{Text: text, Source: SourceInference}
}

func (r *Resolver) fromImage(ctx context.Context, req Request, image []byte) Reply {
	text, err := r.client.GenerateFromImage(ctx, req.Content, image, req.Language)
	if err != nil {
		return r.apologize(imageApology, err)
	}
	return Reply{Text: text, Source: SourceInference}
}

func (r *Resolver) apologize(format string, err error) Reply {
	var ierr *inference.Error
	if errors.As(err, &ierr) {
		r.logger.Error("inference failed",
			zap.String("backend", ierr.Backend),
			zap.String("op", string(ierr.Op)),
			zap.Error(ierr.Err),
		)
	} else {
		r.logger.Error("inference failed", zap.Error(err))
	}
	return Reply{Text: fmt.Sprintf(format, err), Source: SourceApology, Err: err}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > 30 {
		return string(r[:30])
	}
	return s
}
