package llm

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   *bool     `json:"stream,omitempty"` // Ollama streams unless this is false
	Options  *Options  `json:"options,omitempty"`

	KeepAlive string `json:"keep_alive,omitempty"`
}
