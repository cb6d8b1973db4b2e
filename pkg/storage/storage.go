// Package storage opens the thread.Storer selected by configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/papercomputeco/chatgate/pkg/storage/inmemory"
	"github.com/papercomputeco/chatgate/pkg/storage/pebble"
	"github.com/papercomputeco/chatgate/pkg/storage/postgres"
	"github.com/papercomputeco/chatgate/pkg/storage/redis"
	"github.com/papercomputeco/chatgate/pkg/storage/sqlite"
	"github.com/papercomputeco/chatgate/pkg/thread"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Drivers lists the accepted values of Config.Driver.
var Drivers = []string{DriverMemory, DriverSQLite, DriverPebble, DriverPostgres, DriverRedis}

// Config selects and configures a driver. Only the fields of the selected
// driver are read.
type Config struct {
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PebbleDir   string `toml:"pebble_dir"`
	PostgresDSN string `toml:"postgres_dsn"`
	RedisURL    string `toml:"redis_url"`
	RedisPrefix string `toml:"redis_prefix"`
}

// Open connects to the configured driver.
func Open(ctx context.Context, cfg Config) (thread.Storer, error) {
	switch cfg.Driver {
	case DriverMemory:
		return inmemory.NewDriver(), nil

	case DriverSQLite, "":
		path := cfg.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		d, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, err
		}
		return d, nil

	case DriverPebble:
		if cfg.PebbleDir == "" {
			return nil, fmt.Errorf("pebble driver requires a directory")
		}
		d, err := pebble.NewDriver(cfg.PebbleDir)
		if err != nil {
			return nil, err
		}
		return d, nil

	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		d, err := postgres.NewDriver(ctx, postgres.Config{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, err
		}
		return d, nil

	case DriverRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis driver requires a url")
		}
		d, err := redis.NewDriver(ctx, redis.Config{URL: cfg.RedisURL, Prefix: cfg.RedisPrefix})
		if err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (want one of %v)", cfg.Driver, Drivers)
	}
}
