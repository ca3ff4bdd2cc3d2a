// Package config loads task-api settings.
//
// Sources are applied in order, later ones winning: built-in defaults, an
// optional YAML file, TASKAPI_* environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "TASKAPI_"

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
)

var (
	ErrUnknownBackend  = errors.New("unknown snapshot backend")
	ErrUnknownLogLevel = errors.New("unknown log level")
)

// LogLevels lists the accepted log.level values, case-insensitively.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

type Config struct {
	Server   Server   `koanf:"server"`
	Snapshot Snapshot `koanf:"snapshot"`
	Log      Log      `koanf:"log"`
}

type Server struct {
	Address string `koanf:"address"`
}

type Snapshot struct {
	// Backend is one of file, sqlite, postgres, redis, badger.
	Backend string `koanf:"backend"`
	// Path is the JSON file, SQLite database file or Badger directory.
	Path  string `koanf:"path"`
	DSN   string `koanf:"dsn"`
	Redis string `koanf:"redis"`
	Key   string `koanf:"key"`
}

type Log struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.address":   "127.0.0.1:8080",
		"snapshot.backend": BackendFile,
		"snapshot.key":     "task-api:snapshot",
		"log.level":        "info",
		"log.json":         false,
	}
}

// defaultPaths is used when snapshot.path is left empty.
var defaultPaths = map[string]string{
	BackendFile:   "database.json",
	BackendSQLite: "database.db",
	BackendBadger: "database.badger",
}

// mapProvider feeds a flat "a.b" keyed map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty), the environment and overrides. Override keys use the dotted
// form, e.g. "server.address".
func Load(path string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// TASKAPI_SNAPSHOT_BACKEND -> snapshot.backend
	envKey := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Same variables the deployment scripts already export.
	if cfg.Snapshot.DSN == "" {
		cfg.Snapshot.DSN = os.Getenv("DB_SOURCE")
	}
	if cfg.Snapshot.Redis == "" {
		cfg.Snapshot.Redis = os.Getenv("REDIS_ADDR")
	}
	if cfg.Snapshot.Path == "" {
		cfg.Snapshot.Path = defaultPaths[cfg.Snapshot.Backend]
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if !validLogLevel(c.Log.Level) {
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownLogLevel, c.Log.Level, strings.Join(LogLevels, ", "))
	}
	switch c.Snapshot.Backend {
	case BackendFile, BackendSQLite, BackendBadger:
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path is required for the %s backend", c.Snapshot.Backend)
		}
	case BackendPostgres:
		if c.Snapshot.DSN == "" {
			return errors.New("snapshot.dsn (or DB_SOURCE) is required for the postgres backend")
		}
	case BackendRedis:
		if c.Snapshot.Redis == "" {
			return errors.New("snapshot.redis (or REDIS_ADDR) is required for the redis backend")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Snapshot.Backend)
	}
	return nil
}

func validLogLevel(level string) bool {
	level = strings.ToLower(strings.TrimSpace(level))
	for _, l := range LogLevels {
		if level == l {
			return true
		}
	}
	return false
}
