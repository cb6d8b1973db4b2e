// Package ollama is an inference.Client that calls a local or remote Ollama
// server through its /api/chat endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
	"github.com/papercomputeco/chatgate/pkg/llm"
)

const backendName = "ollama"

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llava"
	DefaultTimeout = 5 * time.Minute
)

// Config configures the Ollama client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Options *llm.Options
}

// Client sends one non-streaming chat request per call.
type Client struct {
	config     Config
	logger     *zap.Logger
	httpClient *http.Client
}

// New creates a Client, filling unset config fields with defaults.
func New(config Config, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			// vision models can be slow on the first request while loading
			Timeout: config.Timeout,
		},
	}
}

// GenerateText asks the model for a reply in the given language.
func (c *Client) GenerateText(ctx context.Context, prompt, language string) (string, error) {
	msg := llm.Message{Role: "user", Content: inference.TextPrompt(prompt, language)}
	return c.chat(ctx, inference.OpText, msg)
}

// GenerateFromImage attaches the image to the user turn.
func (c *Client) GenerateFromImage(ctx context.Context, prompt string, image []byte, language string) (string, error) {
	msg := llm.Message{
		Role:    "user",
		Content: inference.ImagePrompt(prompt, language),
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	}
	return c.chat(ctx, inference.OpImage, msg)
}

func (c *Client) chat(ctx context.Context, op inference.Op, msg llm.Message) (string, error) {
	start := time.Now()
	resp, err := c.forwardRequest(ctx, msg)
	if err != nil {
		return "", &inference.Error{Backend: backendName, Op: op, Err: err}
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", &inference.Error{Backend: backendName, Op: op, Err: inference.ErrEmptyResponse}
	}

	c.logger.Debug("received response from ollama",
		zap.String("model", resp.Model),
		zap.String("op", string(op)),
		zap.Int("eval_count", resp.EvalCount),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Message.Content, nil
}

func (c *Client) forwardRequest(ctx context.Context, msg llm.Message) (*llm.ChatResponse, error) {
	streaming := false
	req := llm.ChatRequest{
		Model:    c.config.Model,
		Messages: []llm.Message{msg},
		Stream:   &streaming,
		Options:  c.config.Options,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.config.BaseURL + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp llm.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("ollama returned %d: %s", httpResp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("ollama returned %d: %s", httpResp.StatusCode, string(body))
	}

	var resp llm.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
