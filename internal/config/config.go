// Package config loads the service configuration from a YAML file with
// sensible defaults, validated before use. CLI flags in cmd/tablehub may
// override individual fields after loading.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted in the config file.
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
	BackendBadger = "badger"
	BackendGCS    = "gcs"
)

// Config is the root configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// UserHeader names the trusted reverse-proxy header carrying the
	// authenticated caller identity.
	UserHeader string    `yaml:"user_header"`
	RateLimit  RateLimit `yaml:"rate_limit"`
	Storage    Storage   `yaml:"storage"`
}

// RateLimit configures the per-client request limiter. A zero RPS disables
// limiting.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Storage selects and parameterizes the object store backend.
type Storage struct {
	Backend string `yaml:"backend"`
	// Dir is the root directory for the dir backend.
	Dir string `yaml:"dir"`
	// BadgerPath is the database directory for the badger backend.
	BadgerPath string `yaml:"badger_path"`
	// GCSBucket is the bucket name for the gcs backend.
	GCSBucket string `yaml:"gcs_bucket"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:     "localhost:8080",
		LogLevel:   "info",
		UserHeader: "X-Tablehub-User",
		RateLimit:  RateLimit{RPS: 20, Burst: 40},
		Storage:    Storage{Backend: BackendMemory},
	}
}

// Load reads path and overlays it on the defaults. Unknown fields are
// rejected to catch typos early.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

var errUnknownBackend = errors.New("unknown storage backend")

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendDir:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the dir backend")
		}
	case BackendBadger:
		if c.Storage.BadgerPath == "" {
			return errors.New("storage.badger_path is required for the badger backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("%q: %w", c.Storage.Backend, errUnknownBackend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.UserHeader == "" {
		return errors.New("user_header must not be empty")
	}
	return nil
}
