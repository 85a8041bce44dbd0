package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ndwire/internal/protocol/session"
)

type sessionFile struct {
	ConnectTimeout     string  `toml:"connect_timeout"`
	HandshakeTimeout   string  `toml:"handshake_timeout"`
	ReadTimeout        string  `toml:"read_timeout"`
	WriteTimeout       string  `toml:"write_timeout"`
	MaxConnectAttempts int     `toml:"max_connect_attempts"`
	ReceiveBuffer      int     `toml:"receive_buffer"`
	BackoffInitial     string  `toml:"backoff_initial"`
	BackoffMultiplier  float64 `toml:"backoff_multiplier"`
	BackoffMax         string  `toml:"backoff_max"`
	BackoffJitter      bool    `toml:"backoff_jitter"`
	MaxFrames          uint32  `toml:"max_frames"`
	MaxPayloadBytes    uint64  `toml:"max_payload_bytes"`
}

// loadSessionConfig returns the default session config with every key present
// in path applied on top. An empty path yields the defaults.
func loadSessionConfig(path string) (session.Config, error) {
	cfg := session.DefaultConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw sessionFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return session.Config{}, fmt.Errorf("load session config: %w", err)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"read_timeout", raw.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.WriteTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return session.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("receive_buffer") {
		cfg.ReceiveBuffer = raw.ReceiveBuffer
	}
	if meta.IsDefined("backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if meta.IsDefined("backoff_jitter") {
		cfg.Backoff.Jitter = raw.BackoffJitter
	}
	if meta.IsDefined("max_frames") {
		cfg.Limits.MaxFrames = raw.MaxFrames
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return session.Config{}, fmt.Errorf("unknown session keys: %v", undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}
