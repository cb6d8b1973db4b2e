// Package gateway serves the chat WebSocket endpoint and its REST companions:
// thread history, image uploads, health and metrics.
package gateway

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/pkg/llm"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

// Server owns the fiber app and the collaborators shared by every connection.
type Server struct {
	config   Config
	store    thread.Storer
	resolver Resolver
	registry *Registry
	metrics  *Metrics
	uploads  *limiterPool
	logger   *zap.Logger
	app      *fiber.App

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the server and its upload directory.
func NewServer(config Config, store thread.Storer, resolver Resolver, logger *zap.Logger) (*Server, error) {
	config = config.withDefaults()

	if err := os.MkdirAll(config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create upload dir %s: %w", config.UploadDir, err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.MaxUploadBytes,
	})

	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()

	s := &Server{
		config:   config,
		store:    store,
		resolver: resolver,
		registry: registry,
		metrics:  NewMetrics(registry.Count),
		uploads:  newLimiterPool(config.UploadRate, config.UploadBurst),
		logger:   logger,
		app:      app,
		ctx:      ctx,
		cancel:   cancel,
	}

	app.Use(cors.New())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(s.handleSocket))

	app.Get("/api/thread", s.handleListThreads)
	app.Get("/api/thread/:id", s.handleGetThread)
	app.Delete("/api/thread/:id", s.handleDeleteThread)
	app.Post("/api/upload", s.handleUpload)
	app.Static("/uploads", config.UploadDir)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]any{"status": "ok", "connections": registry.Count()})
	})
	app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "not found"})
	})

	return s, nil
}

// Run listens on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting chat gateway",
		zap.String("listen", s.config.ListenAddr),
		zap.String("upload_dir", s.config.UploadDir),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting chat gateway", zap.String("listen", listener.Addr().String()))
	return s.app.Listener(listener)
}

// Shutdown stops accepting connections and cancels in-flight cycles.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

// Close releases the store.
func (s *Server) Close() error {
	return s.store.Close()
}

// Registry exposes the live connection set.
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) handleSocket(c *websocket.Conn) {
	m := NewMultiplexer(c, s.config, s.store, s.resolver, s.registry, s.metrics, s.logger)
	if err := m.Serve(s.ctx, c.RemoteAddr().String()); err != nil {
		s.logger.Warn("connection ended with error",
			zap.String("client_id", m.ClientID()),
			zap.Error(err),
		)
	}
}
