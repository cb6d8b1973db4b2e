// Package client talks to a running chat gateway over its REST and
// WebSocket endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/papercomputeco/chatgate/gateway"
	"github.com/papercomputeco/chatgate/pkg/llm"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the gateway at baseURL (e.g. http://localhost:8000).
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListThreads returns thread summaries, most recently updated first.
func (c *Client) ListThreads(ctx context.Context) ([]thread.Summary, error) {
	var out []thread.Summary
	if err := c.do(ctx, http.MethodGet, "/api/thread", "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages returns the messages of one thread, or thread.ErrNotFound.
func (c *Client) Messages(ctx context.Context, id string) ([]thread.Message, error) {
	var out []thread.Message
	if err := c.do(ctx, http.MethodGet, "/api/thread/"+url.PathEscape(id), id, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteThread removes a thread, or returns thread.ErrNotFound.
func (c *Client) DeleteThread(ctx context.Context, id string) error {
	var out gateway.DeleteResponse
	return c.do(ctx, http.MethodDelete, "/api/thread/"+url.PathEscape(id), id, &out)
}

// Upload sends an image file and returns the URL to reference in a chat frame.
func (c *Client) Upload(ctx context.Context, path string) (*gateway.UploadResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", http.DetectContentType(data))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("could not build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("could not build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("could not build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out gateway.UploadResponse
	if err := c.send(req, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, threadID string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	return c.send(req, threadID, out)
}

func (c *Client) send(req *http.Request, threadID string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && threadID != "" {
		return thread.ErrNotFound{ThreadID: threadID}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp llm.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
