package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/danmuck/ndwire/internal/config"
	"github.com/danmuck/ndwire/internal/ndarray"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/stream"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish uniform random arrays on a stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultPublisherConfig()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				loaded, err := config.LoadPublisherConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				cfg.Name, _ = flags.GetString("name")
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint, _ = flags.GetString("endpoint")
			}
			if flags.Changed("kind") {
				cfg.Kind, _ = flags.GetString("kind")
			}
			if flags.Changed("mode") {
				cfg.Mode, _ = flags.GetString("mode")
			}
			if flags.Changed("dtype") {
				cfg.DType, _ = flags.GetString("dtype")
			}
			if flags.Changed("shape") {
				cfg.Shape, _ = flags.GetIntSlice("shape")
			}
			if flags.Changed("interval") {
				cfg.Interval, _ = flags.GetString("interval")
			}
			if flags.Changed("count") {
				cfg.Count, _ = flags.GetInt("count")
			}
			if flags.Changed("session") {
				cfg.Session, _ = flags.GetString("session")
			}
			if err := config.ValidatePublisherConfig(cfg); err != nil {
				return err
			}
			sess, err := loadSessionConfig(cfg.Session)
			if err != nil {
				return err
			}
			return runPublish(cmd.Context(), cfg, sess)
		},
	}
	defaults := config.DefaultPublisherConfig()
	cmd.Flags().String("config", "", "publisher TOML config file")
	cmd.Flags().String("name", defaults.Name, "stream name")
	cmd.Flags().String("endpoint", defaults.Endpoint, "transport endpoint (tcp://host:port or ws://host:port/path)")
	cmd.Flags().String("kind", defaults.Kind, "socket kind: push|pub")
	cmd.Flags().String("mode", defaults.Mode, "socket mode: connect|bind")
	cmd.Flags().String("dtype", defaults.DType, "element type")
	cmd.Flags().IntSlice("shape", defaults.Shape, "array shape, comma separated")
	cmd.Flags().String("interval", defaults.Interval, "delay between emissions")
	cmd.Flags().Int("count", defaults.Count, "stop after this many emissions (0 = forever)")
	cmd.Flags().String("session", "", "transport session TOML overrides")
	return cmd
}

func runPublish(ctx context.Context, cfg config.PublisherConfig, sess session.Config) error {
	dtype, err := ndarray.ParseDType(cfg.DType)
	if err != nil {
		return err
	}
	produce, err := uniformProducer(dtype, cfg.Shape, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
	if err != nil {
		return err
	}
	interval, err := cfg.IntervalDuration()
	if err != nil {
		return err
	}
	kind, err := transport.ParseKind(cfg.Kind)
	if err != nil {
		return err
	}
	mode, err := transport.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	pub, err := stream.Open(ctx, stream.Config{
		Name:     cfg.Name,
		Endpoint: cfg.Endpoint,
		Kind:     kind,
		Mode:     mode,
		Session:  sess,
	})
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	defer pub.Close()

	emit := pub.Wrap(produce)
	log.Info().
		Str("stream", pub.Name()).
		Str("stream_id", pub.ID().String()).
		Str("endpoint", cfg.Endpoint).
		Str("dtype", cfg.DType).
		Ints("shape", cfg.Shape).
		Dur("interval", interval).
		Msg("publishing")

	ticker := time.NewTicker(max(interval, time.Millisecond))
	defer ticker.Stop()
	for sent := 0; cfg.Count == 0 || sent < cfg.Count; sent++ {
		if sent > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := emit(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	log.Info().Str("stream", pub.Name()).Int("count", cfg.Count).Msg("publish complete")
	return nil
}
