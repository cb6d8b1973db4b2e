package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/papercomputeco/chatgate/gateway"
)

// Session is one open chat connection. It is not safe for concurrent use.
type Session struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// Dial opens the chat WebSocket. readTimeout bounds each wait for a reply;
// zero waits forever.
func (c *Client) Dial(ctx context.Context, readTimeout time.Duration) (*Session, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/chat"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", u, err)
	}
	return &Session{conn: conn, readTimeout: readTimeout}, nil
}

// Send writes one frame and waits for its answer. An error envelope from the
// server is returned as an error.
func (s *Session) Send(in gateway.Inbound) (*gateway.Outbound, error) {
	if err := s.conn.WriteJSON(in); err != nil {
		return nil, fmt.Errorf("could not send message: %w", err)
	}

	if s.readTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return nil, err
		}
	}
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("could not read reply: %w", err)
	}

	var envelope struct {
		gateway.Outbound
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("could not decode reply: %w", err)
	}
	if envelope.Error != "" {
		return nil, errors.New(envelope.Error)
	}
	return &envelope.Outbound, nil
}

// Close sends a close frame and closes the connection.
func (s *Session) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}
