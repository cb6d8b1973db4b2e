// Package config loads the gateway configuration.
//
// Values are layered, later layers winning: built-in defaults, an optional
// TOML file, a .env file, process environment variables, and finally the
// command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/papercomputeco/chatgate/pkg/inference/provider"
	"github.com/papercomputeco/chatgate/pkg/storage"
)

// Config is the full gateway configuration.
type Config struct {
	Server    Server          `toml:"server"`
	Upload    Upload          `toml:"upload"`
	Storage   storage.Config  `toml:"storage"`
	Inference provider.Config `toml:"inference"`
}

type Server struct {
	// Address to listen on (e.g., ":8000")
	ListenAddr string `toml:"listen"`

	// PhrasesFile is a TOML phrase table; empty uses the built-in table.
	PhrasesFile string `toml:"phrases_file"`

	// DefaultLanguage is used when a frame omits "language".
	DefaultLanguage string `toml:"default_language"`

	Debug    bool `toml:"debug"`
	JSONLogs bool `toml:"json_logs"`
}

type Upload struct {
	Dir string `toml:"dir"`

	// MaxBytes caps the request body of an upload.
	MaxBytes int `toml:"max_bytes"`

	// Rate is uploads per second allowed per client IP, Burst the bucket size.
	// A zero Rate disables limiting.
	Rate  float64 `toml:"rate"`
	Burst int     `toml:"burst"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: Server{
			ListenAddr:      ":8000",
			DefaultLanguage: "English",
		},
		Upload: Upload{
			Dir:      "uploads",
			MaxBytes: 10 << 20,
			Rate:     2,
			Burst:    10,
		},
		Storage: storage.Config{
			Driver:     storage.DriverSQLite,
			SQLitePath: "chatgate.db",
		},
		Inference: provider.Config{
			Provider: provider.Ollama,
			Timeout:  5 * time.Minute,
		},
	}
}

// LoadOptions says where Load looks for its inputs.
type LoadOptions struct {
	// File is an optional TOML file. A missing file is an error only when
	// set explicitly.
	File string

	// EnvFile is a dotenv file; missing files are ignored.
	EnvFile string

	// Lookup reads environment variables. Defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds a Config from defaults, the TOML file and the environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if _, err := toml.DecodeFile(opts.File, &cfg); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", opts.File, err)
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		if opts.EnvFile != "" {
			// godotenv never overrides variables already set in the process
			if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("reading env file %s: %w", opts.EnvFile, err)
			}
		}
		lookup = os.LookupEnv
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&cfg.Server.ListenAddr, "CHATGATE_LISTEN")
	str(&cfg.Server.PhrasesFile, "CHATGATE_PHRASES_FILE")
	str(&cfg.Server.DefaultLanguage, "CHATGATE_DEFAULT_LANGUAGE")
	str(&cfg.Upload.Dir, "CHATGATE_UPLOAD_DIR", "UPLOAD_DIR")
	str(&cfg.Storage.Driver, "CHATGATE_STORAGE_DRIVER")
	str(&cfg.Storage.SQLitePath, "CHATGATE_SQLITE_PATH")
	str(&cfg.Storage.PebbleDir, "CHATGATE_PEBBLE_DIR")
	str(&cfg.Storage.PostgresDSN, "CHATGATE_POSTGRES_DSN", "DATABASE_URL")
	str(&cfg.Storage.RedisURL, "CHATGATE_REDIS_URL", "REDIS_URL")
	str(&cfg.Storage.RedisPrefix, "CHATGATE_REDIS_PREFIX")
	str(&cfg.Inference.Provider, "CHATGATE_INFERENCE_PROVIDER")
	str(&cfg.Inference.Model, "CHATGATE_INFERENCE_MODEL")
	str(&cfg.Inference.BaseURL, "CHATGATE_INFERENCE_BASE_URL", "OLLAMA_HOST")
	str(&cfg.Inference.APIKey, "CHATGATE_INFERENCE_API_KEY", "OPENAI_API_KEY")

	if v, ok := lookup("CHATGATE_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHATGATE_DEBUG: %w", err)
		}
		cfg.Server.Debug = b
	}
	if v, ok := lookup("CHATGATE_INFERENCE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CHATGATE_INFERENCE_TIMEOUT: %w", err)
		}
		cfg.Inference.Timeout = d
	}
	if v, ok := lookup("CHATGATE_UPLOAD_RATE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CHATGATE_UPLOAD_RATE: %w", err)
		}
		cfg.Upload.Rate = f
	}
	return nil
}

// Validate reports settings that can never work.
func (c Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("listen address is empty")
	}
	if c.Upload.Dir == "" {
		return errors.New("upload dir is empty")
	}
	if c.Upload.Rate < 0 || c.Upload.Burst < 0 {
		return errors.New("upload rate and burst must not be negative")
	}
	if c.Inference.Timeout < 0 {
		return errors.New("inference timeout must not be negative")
	}

	known := false
	for _, d := range storage.Drivers {
		if c.Storage.Driver == d {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown storage driver %q (want one of %v)", c.Storage.Driver, storage.Drivers)
	}

	switch c.Inference.Provider {
	case provider.Ollama, provider.OpenAI, provider.None:
	default:
		return fmt.Errorf("unknown inference provider %q", c.Inference.Provider)
	}
	return nil
}
