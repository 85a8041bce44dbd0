package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ndwire/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport reliability defaults.
//
// A zero ReadTimeout means receivers wait indefinitely for the next message,
// which is the normal state of an idle stream.
type Config struct {
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	ReceiveBuffer      int
	Backoff            BackoffConfig
	Limits             frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		ReadTimeout:        0,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: 5,
		ReceiveBuffer:      64,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxConnectAttempts == 0 {
		c.MaxConnectAttempts = d.MaxConnectAttempts
	}
	if c.ReceiveBuffer <= 0 {
		c.ReceiveBuffer = d.ReceiveBuffer
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = d.Backoff
	}
	if c.Limits.MaxFrames == 0 {
		c.Limits.MaxFrames = d.Limits.MaxFrames
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits.MaxPayloadBytes = d.Limits.MaxPayloadBytes
	}
	return c
}

func (c Config) Validate() error {
	if c.ReadTimeout < 0 {
		return fmt.Errorf("%w: negative read timeout", ErrInvalidConfig)
	}
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: negative max connect attempts", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier < 0 {
		return fmt.Errorf("%w: negative backoff multiplier", ErrInvalidConfig)
	}
	// a streamed message carries two identity frames plus three array frames
	if c.Limits.MaxFrames < 5 {
		return fmt.Errorf("%w: max frames %d below 5", ErrInvalidConfig, c.Limits.MaxFrames)
	}
	return nil
}

// ShouldRetry reports whether another dial attempt is allowed after attempt
// (1-based) failed. MaxConnectAttempts < 0 is rejected by Validate; after
// WithDefaults it is always positive.
func (c Config) ShouldRetry(attempt int) bool {
	return attempt < c.MaxConnectAttempts
}
