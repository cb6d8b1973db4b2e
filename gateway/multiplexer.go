package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/reply"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

// Conn is the part of a WebSocket connection the multiplexer uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// Resolver produces the assistant reply for a message.
type Resolver interface {
	Resolve(ctx context.Context, req reply.Request) reply.Reply
}

// outcome tells the receive loop whether to keep reading.
type outcome int

const (
	keepReading outcome = iota
	stopReading
)

// Multiplexer drives one connection: it reads thread-tagged frames, records
// each exchange in the store and writes a reply per frame. Frames are
// handled one at a time in arrival order.
type Multiplexer struct {
	id       string
	clientID string
	conn     Conn
	config   Config
	store    thread.Storer
	resolver Resolver
	registry *Registry
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewMultiplexer wraps conn. The connection is registered under a random
// UUID; its first eight characters tag every log line.
func NewMultiplexer(conn Conn, config Config, store thread.Storer, resolver Resolver, registry *Registry, metrics *Metrics, logger *zap.Logger) *Multiplexer {
	id := uuid.NewString()
	return &Multiplexer{
		id:       id,
		clientID: id[:8],
		conn:     conn,
		config:   config,
		store:    store,
		resolver: resolver,
		registry: registry,
		metrics:  metrics,
		logger:   logger.With(zap.String("client_id", id[:8])),
		now:      time.Now,
	}
}

// ID returns the registry key.
func (m *Multiplexer) ID() string {
	return m.id
}

// ClientID returns the short id used in logs.
func (m *Multiplexer) ClientID() string {
	return m.clientID
}

// Serve runs the receive loop until the peer disconnects or the loop hits a
// fault it cannot recover from. The connection is registered for the
// duration. A clean disconnect returns nil.
func (m *Multiplexer) Serve(ctx context.Context, remoteAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.registry.Add(ConnInfo{ID: m.id, RemoteAddr: remoteAddr, ConnectedAt: m.now()}) {
		defer m.registry.Remove(m.id)
	} else {
		m.logger.Warn("connection id already registered", zap.String("conn_id", m.id))
	}

	m.logger.Info("client connected", zap.String("remote_addr", remoteAddr))

	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			terr := newTransportError("read", err)
			if terr.Disconnect {
				m.logger.Info("client disconnected")
				return nil
			}
			m.logger.Warn("read failed, closing connection", zap.Error(terr))
			return terr
		}

		out, err := m.step(ctx, data)
		if out == stopReading {
			return err
		}
	}
}

// step handles one frame, converting a panic anywhere in the cycle into a
// loop-ending error.
func (m *Multiplexer) step(ctx context.Context, data []byte) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.frame(frameFailed)
			m.logger.Error("panic while handling frame",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out, err = stopReading, fmt.Errorf("panic while handling frame: %v", r)
		}
	}()
	return m.handleFrame(ctx, data)
}

func (m *Multiplexer) handleFrame(ctx context.Context, data []byte) (outcome, error) {
	start := m.now()

	in, perr := decodeInbound(data)
	if perr != nil {
		m.metrics.frame(frameMalformed)
		m.logger.Warn("skipping frame", zap.Error(perr), zap.Int("bytes", len(data)))
		return keepReading, nil
	}

	if in.ThreadID == "" {
		m.metrics.frame(frameInvalid)
		m.logger.Warn("frame without thread id")
		return m.send(ErrorEnvelope{Error: MissingThreadID})
	}

	language := in.Language
	if language == "" {
		language = m.config.DefaultLanguage
	}
	log := m.logger.With(zap.String("thread_id", in.ThreadID))
	log.Debug("received frame",
		zap.Int("content_length", len(in.Content)),
		zap.Bool("has_image", in.Image != ""),
		zap.String("language", language),
	)

	userMsg := thread.NewUserMessage(in.Content, in.Image, m.now())
	if serr := m.persistUser(ctx, in.ThreadID, userMsg); serr != nil {
		m.metrics.storageError(serr.Op)
		log.Error("failed to save user message", zap.Error(serr))
	}

	r := m.resolver.Resolve(ctx, reply.Request{
		Content:   in.Content,
		ImagePath: imagePath(m.config.UploadDir, in.Image),
		Language:  language,
	})

	if err := m.store.Append(ctx, in.ThreadID, thread.NewAssistantMessage(r.Text, m.now())); err != nil {
		serr := &StorageError{Op: "append", ThreadID: in.ThreadID, Err: err}
		m.metrics.storageError(serr.Op)
		log.Error("failed to save assistant message", zap.Error(serr))
	}

	out, err := m.send(Outbound{ThreadID: in.ThreadID, Reply: r.Text})
	if err == nil {
		m.metrics.frame(frameReplied)
		m.metrics.reply(r.Source, m.now().Sub(start).Seconds())
		log.Debug("sent reply", zap.String("source", string(r.Source)))
	}
	return out, err
}

// persistUser appends msg, creating the thread when it does not exist yet.
// Losing a creation race to another connection falls back to an append.
func (m *Multiplexer) persistUser(ctx context.Context, threadID string, msg thread.Message) *StorageError {
	_, err := m.store.Get(ctx, threadID)
	switch {
	case err == nil:
		if err := m.store.Append(ctx, threadID, msg); err != nil {
			return &StorageError{Op: "append", ThreadID: threadID, Err: err}
		}
		return nil

	case thread.IsNotFound(err):
		err := m.store.Insert(ctx, thread.New(threadID, msg))
		if err == nil {
			m.logger.Info("created thread", zap.String("thread_id", threadID))
			return nil
		}
		if !thread.IsAlreadyExists(err) {
			return &StorageError{Op: "insert", ThreadID: threadID, Err: err}
		}
		if err := m.store.Append(ctx, threadID, msg); err != nil {
			return &StorageError{Op: "append", ThreadID: threadID, Err: err}
		}
		return nil

	default:
		return &StorageError{Op: "get", ThreadID: threadID, Err: err}
	}
}

// send writes v as a text frame. Only a disconnect stops the loop.
func (m *Multiplexer) send(v any) (outcome, error) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("failed to encode reply", zap.Error(err))
		return keepReading, nil
	}

	if err := m.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.metrics.sendError()
		terr := newTransportError("write", err)
		if terr.Disconnect {
			m.logger.Info("client gone while sending reply", zap.Error(terr))
			return stopReading, nil
		}
		m.logger.Error("failed to send reply", zap.Error(terr))
	}
	return keepReading, nil
}
