package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/ndwire/internal/admin"
	"github.com/danmuck/ndwire/internal/config"
	"github.com/danmuck/ndwire/internal/protocol/frame"
	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/store"
	"github.com/danmuck/ndwire/internal/stream"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newSinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Receive, decode and optionally record array streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultSinkConfig()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				loaded, err := config.LoadSinkConfig(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			flags := cmd.Flags()
			if flags.Changed("endpoint") {
				cfg.Endpoint, _ = flags.GetString("endpoint")
			}
			if flags.Changed("kind") {
				cfg.Kind, _ = flags.GetString("kind")
			}
			if flags.Changed("mode") {
				cfg.Mode, _ = flags.GetString("mode")
			}
			if flags.Changed("record-dir") {
				cfg.RecordDir, _ = flags.GetString("record-dir")
			}
			if flags.Changed("sync") {
				cfg.Sync, _ = flags.GetBool("sync")
			}
			if flags.Changed("admin") {
				cfg.Admin, _ = flags.GetString("admin")
			}
			if flags.Changed("admin-token") {
				cfg.AdminToken, _ = flags.GetString("admin-token")
			}
			if flags.Changed("count") {
				cfg.Count, _ = flags.GetInt("count")
			}
			if flags.Changed("session") {
				cfg.Session, _ = flags.GetString("session")
			}
			if err := config.ValidateSinkConfig(cfg); err != nil {
				return err
			}
			sess, err := loadSessionConfig(cfg.Session)
			if err != nil {
				return err
			}
			return runSink(cmd.Context(), cfg, sess)
		},
	}
	defaults := config.DefaultSinkConfig()
	cmd.Flags().String("config", "", "sink TOML config file")
	cmd.Flags().String("endpoint", defaults.Endpoint, "transport endpoint")
	cmd.Flags().String("kind", defaults.Kind, "socket kind: pull|sub")
	cmd.Flags().String("mode", defaults.Mode, "socket mode: connect|bind")
	cmd.Flags().String("record-dir", "", "record received messages into this pebble directory")
	cmd.Flags().Bool("sync", false, "fsync the recorder on every append")
	cmd.Flags().String("admin", "", "admin HTTP listen address (disabled when empty)")
	cmd.Flags().String("admin-token", "", "bearer token required on /streams")
	cmd.Flags().Int("count", 0, "stop after this many messages (0 = forever)")
	cmd.Flags().String("session", "", "transport session TOML overrides")
	return cmd
}

func runSink(ctx context.Context, cfg config.SinkConfig, sess session.Config) error {
	kind, err := transport.ParseKind(cfg.Kind)
	if err != nil {
		return err
	}
	mode, err := transport.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	var rec *store.Recorder
	if cfg.RecordDir != "" {
		rec, err = store.Open(store.Options{DataDir: cfg.RecordDir, Sync: cfg.Sync, Limits: sess.Limits})
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer rec.Close()
	}

	cons, err := stream.OpenConsumer(ctx, stream.ConsumerConfig{
		Endpoint: cfg.Endpoint,
		Kind:     kind,
		Mode:     mode,
		Session:  sess,
	})
	if err != nil {
		return fmt.Errorf("open consumer: %w", err)
	}
	defer cons.Close()
	log.Info().Str("endpoint", cfg.Endpoint).Str("kind", kind.String()).Str("mode", mode.String()).Msg("sink ready")

	tracker := admin.NewTracker()
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()

	if cfg.Admin != "" {
		srv := admin.New(admin.Options{
			Name:        "ndwire-sink",
			Addr:        cfg.Admin,
			CorsOrigins: cfg.CorsOrigins,
			Tracker:     tracker,
			Token:       cfg.AdminToken,
		})
		srv.SetReady(true)
		g.Go(func() error {
			return srv.Serve(loopCtx)
		})
	}

	g.Go(func() error {
		defer stop()
		return receiveLoop(loopCtx, cons, rec, tracker, cfg.Count)
	})
	return g.Wait()
}

// receiveLoop decodes messages until ctx ends or limit messages arrive.
// Malformed messages are logged and skipped.
func receiveLoop(ctx context.Context, cons *stream.Consumer, rec *store.Recorder, tracker *admin.Tracker, limit int) error {
	for received := 0; limit == 0 || received < limit; {
		msg, err := cons.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, transport.ErrClosed):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}
		received++

		tracker.Observe(msg)
		log.Info().
			Str("stream", msg.Name).
			Str("stream_id", msg.StreamID.String()).
			Str("dtype", string(msg.Array.DType)).
			Ints("shape", msg.Array.Shape).
			Int("bytes", msg.Array.Nbytes()).
			Msg("array received")

		if rec != nil {
			_, err := rec.Append(msg.Name, msg.Frames)
			switch {
			case errors.Is(err, store.ErrInvalidStream), errors.Is(err, frame.ErrPayloadTooLarge), errors.Is(err, frame.ErrTooManyFrames):
				log.Warn().Err(err).Str("stream", msg.Name).Msg("message cannot be recorded")
			case err != nil:
				return fmt.Errorf("record %s: %w", msg.Name, err)
			}
		}
	}
	log.Info().Int("count", limit).Msg("sink complete")
	return nil
}
