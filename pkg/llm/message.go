package llm

// Message is one chat turn sent to or received from Ollama.
type Message struct {
	Role    string   `json:"role"`             // "user" or "assistant"
	Content string   `json:"content"`          // prompt text or generated reply
	Images  []string `json:"images,omitempty"` // base64-encoded image bytes, user turns only
}
