// Package openai is an inference.Client backed by any OpenAI-compatible chat
// completions API.
package openai

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/inference"
)

const backendName = "openai"

const (
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 5 * time.Minute
)

// Config configures the OpenAI client. BaseURL may point at any compatible
// server.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	Seed        *int
	MaxTokens   *int
}

type Client struct {
	client openai.Client
	config Config
	logger *zap.Logger
}

// New creates a Client. Without an API key it returns an inference.Unconfigured
// so that phrase replies keep working.
func New(config Config, logger *zap.Logger) inference.Client {
	if config.APIKey == "" {
		return inference.Unconfigured{Reason: "openai api key not set"}
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithRequestTimeout(config.Timeout),
		// one attempt per call; the caller turns a failure into an apology
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Client{
		client: openai.NewClient(opts...),
		config: config,
		logger: logger,
	}
}

func (c *Client) GenerateText(ctx context.Context, prompt, language string) (string, error) {
	msg := openai.UserMessage(inference.TextPrompt(prompt, language))
	return c.complete(ctx, inference.OpText, msg)
}

// GenerateFromImage sends the image inline as a data URL.
func (c *Client) GenerateFromImage(ctx context.Context, prompt string, image []byte, language string) (string, error) {
	msg := openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(inference.ImagePrompt(prompt, language)),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(image),
		}),
	})
	return c.complete(ctx, inference.OpImage, msg)
}

func (c *Client) complete(ctx context.Context, op inference.Op, msg openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.config.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{msg},
	}
	if c.config.Temperature != nil {
		params.Temperature = openai.Float(*c.config.Temperature)
	}
	if c.config.Seed != nil {
		params.Seed = openai.Int(int64(*c.config.Seed))
	}
	if c.config.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*c.config.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", &inference.Error{Backend: backendName, Op: op, Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &inference.Error{Backend: backendName, Op: op, Err: inference.ErrEmptyResponse}
	}

	c.logger.Debug("chat completion finished",
		zap.String("model", resp.Model),
		zap.String("op", string(op)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

func dataURL(image []byte) string {
	return "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}
