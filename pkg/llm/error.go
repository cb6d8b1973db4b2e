// Package llm holds the Ollama-compatible chat wire types spoken by the
// ollama inference backend, plus the JSON error body shared by HTTP handlers.
package llm

// ErrorResponse is the JSON body of a failed request, both from Ollama and
// from the gateway's own REST endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
