// Package thread defines conversation threads, their messages, and the
// Storer interface that persists them.
package thread

import (
	"time"
)

// TitleLength is the number of characters of the first message used as a
// thread title.
const TitleLength = 30

// ImageTitle is the title of a thread whose first message carries no text.
const ImageTitle = "Image message"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single entry in a thread's history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"` // "/uploads/<name>", user messages only
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage builds a user message stamped with now.
func NewUserMessage(content, image string, now time.Time) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Image:     image,
		Timestamp: now.UTC(),
	}
}

// NewAssistantMessage builds an assistant message stamped with now.
func NewAssistantMessage(content string, now time.Time) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now.UTC(),
	}
}

// Thread is a named conversation. Messages are kept in append order.
type Thread struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a thread whose only entry is first. The title is derived from
// first's content.
func New(id string, first Message) *Thread {
	ts := first.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Thread{
		ThreadID:  id,
		Title:     Title(first.Content),
		Messages:  []Message{first},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

// Title returns the first TitleLength characters of content, or ImageTitle
// when content is empty.
func Title(content string) string {
	if content == "" {
		return ImageTitle
	}
	runes := []rune(content)
	if len(runes) <= TitleLength {
		return content
	}
	return string(runes[:TitleLength])
}

// Summary is the listing view of a thread.
type Summary struct {
	ThreadID     string    `json:"threadId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summarize returns the listing view of t.
func (t *Thread) Summarize() Summary {
	return Summary{
		ThreadID:     t.ThreadID,
		Title:        t.Title,
		MessageCount: len(t.Messages),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
