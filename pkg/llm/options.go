package llm

// Options are the generation parameters the gateway forwards to Ollama.
// Nil fields fall back to the model's defaults.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"` // max tokens to generate
	NumCtx      *int     `json:"num_ctx,omitempty"`     // context window size
}
