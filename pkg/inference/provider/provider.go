// Package provider builds the inference.Client selected by configuration.
package provider

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
	"github.com/papercomputeco/chatgate/pkg/inference/ollama"
	"github.com/papercomputeco/chatgate/pkg/inference/openai"
	"github.com/papercomputeco/chatgate/pkg/llm"
)

const (
	Ollama = "ollama"
	OpenAI = "openai"
	None   = "none"
)

// Config selects a backend. Empty fields fall back to the backend defaults.
type Config struct {
	Provider    string        `toml:"provider"`
	Model       string        `toml:"model"`
	BaseURL     string        `toml:"base_url"`
	APIKey      string        `toml:"api_key"`
	Timeout     time.Duration `toml:"timeout"`
	Temperature *float64      `toml:"temperature"`
	Seed        *int          `toml:"seed"`
	MaxTokens   *int          `toml:"max_tokens"`

	// ContextWindow is only understood by Ollama.
	ContextWindow *int `toml:"context_window"`
}

// ollamaOptions returns nil when no generation option is set, leaving the
// model's own defaults in place.
func (c Config) ollamaOptions() *llm.Options {
	if c.Temperature == nil && c.Seed == nil && c.MaxTokens == nil && c.ContextWindow == nil {
		return nil
	}
	return &llm.Options{
		Temperature: c.Temperature,
		Seed:        c.Seed,
		NumPredict:  c.MaxTokens,
		NumCtx:      c.ContextWindow,
	}
}

// New returns the configured client. Provider "none" yields a client whose
// calls always fail, so only phrase replies succeed.
func New(cfg Config, logger *zap.Logger) (inference.Client, error) {
	switch cfg.Provider {
	case Ollama, "":
		return ollama.New(ollama.Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Options: cfg.ollamaOptions(),
		}, logger.Named("ollama")), nil

	case OpenAI:
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
			Seed:        cfg.Seed,
			MaxTokens:   cfg.MaxTokens,
		}, logger.Named("openai")), nil

	case None:
		return inference.Unconfigured{Reason: "inference provider is none"}, nil

	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
