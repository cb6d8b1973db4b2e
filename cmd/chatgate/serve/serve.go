package servecmder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/chatgate/gateway"
	"github.com/papercomputeco/chatgate/pkg/config"
	"github.com/papercomputeco/chatgate/pkg/inference/provider"
	"github.com/papercomputeco/chatgate/pkg/logger"
	"github.com/papercomputeco/chatgate/pkg/reply"
	"github.com/papercomputeco/chatgate/pkg/storage"
)

const serveLongDesc string = `Run the chat gateway.

Configuration is read from built-in defaults, then the TOML file given
with --config, then a .env file and CHATGATE_* environment variables,
and finally the flags below.

Examples:
  chatgate serve
  chatgate serve --listen :9000 --storage pebble --pebble-dir ./data
  chatgate serve --provider openai --model gpt-4o-mini
  chatgate serve --config /etc/chatgate.toml --debug`

const serveShortDesc string = "Run the chat gateway"

type serveCommander struct {
	configFile string
	envFile    string

	listen      string
	uploadDir   string
	phrasesFile string
	debug       bool
	jsonLogs    bool

	storageDriver string
	sqlitePath    string
	pebbleDir     string
	postgresDSN   string
	redisURL      string

	provider     string
	model        string
	inferenceURL string

	// ready receives the bound address once the server is listening.
	ready chan<- string
}

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.StringVarP(&cmder.configFile, "config", "c", "", "Path to a TOML config file")
	f.StringVar(&cmder.envFile, "env-file", ".env", "Path to a dotenv file (ignored if missing)")
	f.StringVar(&cmder.listen, "listen", defaults.Server.ListenAddr, "Address to listen on")
	f.StringVar(&cmder.uploadDir, "upload-dir", defaults.Upload.Dir, "Directory for uploaded images")
	f.StringVar(&cmder.phrasesFile, "phrases", "", "TOML phrase table (default: built-in table)")
	f.BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	f.BoolVar(&cmder.jsonLogs, "json-logs", false, "Log JSON lines instead of console output")
	f.StringVar(&cmder.storageDriver, "storage", defaults.Storage.Driver, fmt.Sprintf("Storage driver %v", storage.Drivers))
	f.StringVarP(&cmder.sqlitePath, "sqlite", "s", defaults.Storage.SQLitePath, "Path to the SQLite database")
	f.StringVar(&cmder.pebbleDir, "pebble-dir", "", "Directory of the Pebble database")
	f.StringVar(&cmder.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	f.StringVar(&cmder.redisURL, "redis-url", "", "Redis URL (redis://host:6379/0)")
	f.StringVar(&cmder.provider, "provider", defaults.Inference.Provider, "Inference provider (ollama, openai, none)")
	f.StringVar(&cmder.model, "model", "", "Model name (default depends on provider)")
	f.StringVar(&cmder.inferenceURL, "inference-url", "", "Inference base URL (default depends on provider)")

	return cmd
}

// loadConfig layers changed flags over the file and environment.
func (c *serveCommander) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{File: c.configFile, EnvFile: c.envFile})
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("listen", func() { cfg.Server.ListenAddr = c.listen })
	set("upload-dir", func() { cfg.Upload.Dir = c.uploadDir })
	set("phrases", func() { cfg.Server.PhrasesFile = c.phrasesFile })
	set("debug", func() { cfg.Server.Debug = c.debug })
	set("json-logs", func() { cfg.Server.JSONLogs = c.jsonLogs })
	set("storage", func() { cfg.Storage.Driver = c.storageDriver })
	set("sqlite", func() { cfg.Storage.SQLitePath = c.sqlitePath })
	set("pebble-dir", func() { cfg.Storage.PebbleDir = c.pebbleDir })
	set("postgres-dsn", func() { cfg.Storage.PostgresDSN = c.postgresDSN })
	set("redis-url", func() { cfg.Storage.RedisURL = c.redisURL })
	set("provider", func() { cfg.Inference.Provider = c.provider })
	set("model", func() { cfg.Inference.Model = c.model })
	set("inference-url", func() { cfg.Inference.BaseURL = c.inferenceURL })

	return cfg, cfg.Validate()
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(logger.Options{Debug: cfg.Server.Debug, JSON: cfg.Server.JSONLogs, Output: cmd.OutOrStdout()})
	defer log.Sync()

	log.Info("chatgate starting",
		zap.String("listen", cfg.Server.ListenAddr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("provider", cfg.Inference.Provider),
		zap.Bool("debug", cfg.Server.Debug),
	)

	phrases := reply.DefaultPhrases()
	if cfg.Server.PhrasesFile != "" {
		phrases, err = reply.LoadPhrases(cfg.Server.PhrasesFile)
		if err != nil {
			return err
		}
	}
	log.Info("loaded phrase table", zap.Int("phrases", phrases.Len()))

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("could not open %s storage: %w", cfg.Storage.Driver, err)
	}

	client, err := provider.New(cfg.Inference, log)
	if err != nil {
		store.Close()
		return err
	}

	srv, err := gateway.NewServer(gateway.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		UploadDir:       cfg.Upload.Dir,
		DefaultLanguage: cfg.Server.DefaultLanguage,
		MaxUploadBytes:  cfg.Upload.MaxBytes,
		UploadRate:      cfg.Upload.Rate,
		UploadBurst:     cfg.Upload.Burst,
	}, store, reply.NewResolver(phrases, client, log.Named("reply")), log)
	if err != nil {
		store.Close()
		return err
	}
	defer srv.Close()

	listener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.RunWithListener(listener)
	}()
	if c.ready != nil {
		c.ready <- listener.Addr().String()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("gateway server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}
