package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Fatalf("default backend = %q", cfg.Storage.Backend)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	p := writeConfig(t, `
listen: ":9090"
log_level: debug
storage:
  backend: dir
  dir: /tmp/tables
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Storage.Backend != BackendDir || cfg.Storage.Dir != "/tmp/tables" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	// Untouched fields keep their defaults.
	if cfg.UserHeader != Default().UserHeader {
		t.Fatalf("user_header = %q", cfg.UserHeader)
	}
	if cfg.RateLimit != Default().RateLimit {
		t.Fatalf("rate_limit = %+v", cfg.RateLimit)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("empty file should yield defaults, got %+v", cfg)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	if _, err := Load(writeConfig(t, "listne: \":9090\"\n")); err == nil {
		t.Fatal("typoed field accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":     func(c *Config) { c.Storage.Backend = "s3" },
		"dir without path":    func(c *Config) { c.Storage.Backend = BackendDir },
		"badger without path": func(c *Config) { c.Storage.Backend = BackendBadger },
		"gcs without bucket":  func(c *Config) { c.Storage.Backend = BackendGCS },
		"bad log level":       func(c *Config) { c.LogLevel = "verbose" },
		"empty user header":   func(c *Config) { c.UserHeader = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: validated", name)
		}
	}
}

func TestValidateBackendRequirements(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = BackendDir
	cfg.Storage.Dir = "/var/lib/tablehub"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Storage.Backend = BackendGCS
	cfg.Storage.GCSBucket = "tables"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	_, err := Load(writeConfig(t, "log_level: chatty\n"))
	if err == nil || !strings.Contains(err.Error(), "log level") {
		t.Fatalf("err = %v", err)
	}
}
