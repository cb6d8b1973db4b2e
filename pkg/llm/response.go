package llm

import "time"

// ChatResponse is a non-streaming reply from POST /api/chat.
type ChatResponse struct {
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Message   Message   `json:"message"`
	Done      bool      `json:"done"`

	TotalDuration int64 `json:"total_duration,omitempty"` // nanoseconds
	EvalCount     int   `json:"eval_count,omitempty"`     // generated tokens
}
