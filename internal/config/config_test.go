package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/danmuck/ndwire/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ndwire.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPublisherConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
name = "camera"
shape = [4, 3]
interval = "250ms"
count = 12
`)
	cfg, err := LoadPublisherConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "camera" || cfg.Count != 12 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.Shape, []int{4, 3}) {
		t.Fatalf("shape: %v", cfg.Shape)
	}
	if cfg.Endpoint != DefaultEndpoint || cfg.Kind != "push" || cfg.DType != "float64" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if d, _ := cfg.IntervalDuration(); d != 250*time.Millisecond {
		t.Fatalf("interval: %v", d)
	}
}

func TestLoadSinkConfig(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, `
endpoint = "ws://0.0.0.0:9000/arrays"
kind = "sub"
mode = "connect"
record_dir = "/var/lib/ndwire"
admin = ":9200"
cors_origins = ["http://localhost:3000"]
`)
	cfg, err := LoadSinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Kind != "sub" || cfg.Mode != "connect" || cfg.RecordDir != "/var/lib/ndwire" || cfg.Admin != ":9200" {
		t.Fatalf("unexpected sink config: %+v", cfg)
	}
	if len(cfg.CorsOrigins) != 1 {
		t.Fatalf("cors origins: %v", cfg.CorsOrigins)
	}
}

func TestLoadMissingFile(t *testing.T) {
	testlog.Start(t)

	_, err := LoadPublisherConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestValidatePublisherConfig(t *testing.T) {
	testlog.Start(t)

	cases := []struct {
		name   string
		mutate func(*PublisherConfig)
	}{
		{"empty name", func(c *PublisherConfig) { c.Name = " " }},
		{"bad scheme", func(c *PublisherConfig) { c.Endpoint = "ipc:///tmp/ndwire" }},
		{"receiving kind", func(c *PublisherConfig) { c.Kind = "pull" }},
		{"unknown kind", func(c *PublisherConfig) { c.Kind = "dealer" }},
		{"unknown mode", func(c *PublisherConfig) { c.Mode = "listen" }},
		{"unknown dtype", func(c *PublisherConfig) { c.DType = "float128" }},
		{"negative dim", func(c *PublisherConfig) { c.Shape = []int{2, -1} }},
		{"bad interval", func(c *PublisherConfig) { c.Interval = "soon" }},
		{"negative interval", func(c *PublisherConfig) { c.Interval = "-1s" }},
		{"negative count", func(c *PublisherConfig) { c.Count = -1 }},
	}
	if err := ValidatePublisherConfig(DefaultPublisherConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	for _, tc := range cases {
		cfg := DefaultPublisherConfig()
		tc.mutate(&cfg)
		if err := ValidatePublisherConfig(cfg); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tc.name, err)
		}
	}
}

func TestValidateSinkConfig(t *testing.T) {
	testlog.Start(t)

	if err := ValidateSinkConfig(DefaultSinkConfig()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	cfg := DefaultSinkConfig()
	cfg.Kind = "push"
	if err := ValidateSinkConfig(cfg); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for push sink, got %v", err)
	}
}

func TestParseErrorMentionsPath(t *testing.T) {
	testlog.Start(t)

	path := writeConfig(t, "name = [")
	if _, err := LoadSinkConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
