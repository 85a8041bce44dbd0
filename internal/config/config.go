package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

const (
	DefaultEndpoint   = "tcp://127.0.0.1:8765"
	DefaultBindpoint  = "tcp://0.0.0.0:8765"
	DefaultStreamName = "ndwire"
	DefaultInterval   = "1s"
)

// PublisherConfig describes one `ndwire publish` run.
type PublisherConfig struct {
	Name     string `toml:"name"`
	Endpoint string `toml:"endpoint"`
	Kind     string `toml:"kind"`
	Mode     string `toml:"mode"`
	DType    string `toml:"dtype"`
	Shape    []int  `toml:"shape"`
	Interval string `toml:"interval"`
	// Count stops after this many emissions. Zero runs until interrupted.
	Count int `toml:"count"`
	// Session is an optional TOML file with transport session overrides.
	Session string `toml:"session"`
}

// SinkConfig describes one `ndwire sink` run.
type SinkConfig struct {
	Endpoint    string   `toml:"endpoint"`
	Kind        string   `toml:"kind"`
	Mode        string   `toml:"mode"`
	RecordDir   string   `toml:"record_dir"`
	Sync        bool     `toml:"sync"`
	Admin       string   `toml:"admin"`
	AdminToken  string   `toml:"admin_token"`
	CorsOrigins []string `toml:"cors_origins"`
	Session     string   `toml:"session"`
	// Count stops the sink after this many decoded messages. Zero runs until
	// interrupted.
	Count int `toml:"count"`
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Name:     DefaultStreamName,
		Endpoint: DefaultEndpoint,
		Kind:     transport.Push.String(),
		Mode:     transport.Connect.String(),
		DType:    string(ndarray.Float64),
		Shape:    []int{10},
		Interval: DefaultInterval,
	}
}

func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Endpoint: DefaultBindpoint,
		Kind:     transport.Pull.String(),
		Mode:     transport.Bind.String(),
	}
}

// LoadPublisherConfig reads path over the defaults. Keys missing from the
// file keep their default values.
func LoadPublisherConfig(path string) (PublisherConfig, error) {
	cfg := DefaultPublisherConfig()
	if err := loadToml(path, &cfg); err != nil {
		return PublisherConfig{}, err
	}
	if err := ValidatePublisherConfig(cfg); err != nil {
		return PublisherConfig{}, err
	}
	return cfg, nil
}

func LoadSinkConfig(path string) (SinkConfig, error) {
	cfg := DefaultSinkConfig()
	if err := loadToml(path, &cfg); err != nil {
		return SinkConfig{}, err
	}
	if err := ValidateSinkConfig(cfg); err != nil {
		return SinkConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidatePublisherConfig(cfg PublisherConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: publisher config missing name", ErrInvalid)
	}
	if err := validateSocket(cfg.Endpoint, cfg.Kind, cfg.Mode); err != nil {
		return err
	}
	kind, _ := transport.ParseKind(cfg.Kind)
	if !kind.CanSend() {
		return fmt.Errorf("%w: publisher kind must be push or pub, got %q", ErrInvalid, cfg.Kind)
	}
	if _, err := ndarray.ParseDType(cfg.DType); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for i, dim := range cfg.Shape {
		if dim < 0 {
			return fmt.Errorf("%w: shape[%d] is negative", ErrInvalid, i)
		}
	}
	if _, err := cfg.IntervalDuration(); err != nil {
		return err
	}
	if cfg.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalid)
	}
	return nil
}

func ValidateSinkConfig(cfg SinkConfig) error {
	if err := validateSocket(cfg.Endpoint, cfg.Kind, cfg.Mode); err != nil {
		return err
	}
	kind, _ := transport.ParseKind(cfg.Kind)
	if !kind.CanReceive() {
		return fmt.Errorf("%w: sink kind must be pull or sub, got %q", ErrInvalid, cfg.Kind)
	}
	if cfg.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", ErrInvalid)
	}
	return nil
}

// IntervalDuration parses Interval. Zero means emit back to back.
func (cfg PublisherConfig) IntervalDuration() (time.Duration, error) {
	if strings.TrimSpace(cfg.Interval) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		return 0, fmt.Errorf("%w: interval: %w", ErrInvalid, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: interval must not be negative", ErrInvalid)
	}
	return d, nil
}

func validateSocket(endpoint, kind, mode string) error {
	if _, err := transport.ParseEndpoint(endpoint); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := transport.ParseKind(kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := transport.ParseMode(mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
