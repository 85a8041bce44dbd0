package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/ndwire/internal/protocol/session"
	"github.com/danmuck/ndwire/internal/store"
	"github.com/danmuck/ndwire/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errStopReplay = errors.New("replay stopped")

type replayOptions struct {
	RecordDir string
	Streams   []string
	Endpoint  string
	Kind      string
	Mode      string
	Interval  time.Duration
}

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-send recorded messages with their original stream identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			opts := replayOptions{}
			opts.RecordDir, _ = flags.GetString("record-dir")
			opts.Streams, _ = flags.GetStringSlice("stream")
			opts.Endpoint, _ = flags.GetString("endpoint")
			opts.Kind, _ = flags.GetString("kind")
			opts.Mode, _ = flags.GetString("mode")
			opts.Interval, _ = flags.GetDuration("interval")
			sessionPath, _ := flags.GetString("session")
			sess, err := loadSessionConfig(sessionPath)
			if err != nil {
				return err
			}
			return runReplay(cmd.Context(), opts, sess)
		},
	}
	cmd.Flags().String("record-dir", "", "pebble directory written by `ndwire sink --record-dir`")
	cmd.Flags().StringSlice("stream", nil, "stream names to replay (default: all)")
	cmd.Flags().String("endpoint", "tcp://127.0.0.1:8765", "transport endpoint")
	cmd.Flags().String("kind", "push", "socket kind: push|pub")
	cmd.Flags().String("mode", "connect", "socket mode: connect|bind")
	cmd.Flags().Duration("interval", 0, "delay between messages")
	cmd.Flags().String("session", "", "transport session TOML overrides")
	_ = cmd.MarkFlagRequired("record-dir")
	return cmd
}

func runReplay(ctx context.Context, opts replayOptions, sess session.Config) error {
	kind, err := transport.ParseKind(opts.Kind)
	if err != nil {
		return err
	}
	if !kind.CanSend() {
		return fmt.Errorf("%w: replay needs push or pub, got %s", transport.ErrKindMismatch, kind)
	}
	mode, err := transport.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	rec, err := store.Open(store.Options{DataDir: opts.RecordDir, Limits: sess.Limits})
	if err != nil {
		return fmt.Errorf("open recorder: %w", err)
	}
	defer rec.Close()

	names := opts.Streams
	if len(names) == 0 {
		names, err = rec.Streams()
		if err != nil {
			return err
		}
	}

	sock, err := transport.Open(ctx, transport.Options{
		Endpoint: opts.Endpoint,
		Kind:     kind,
		Mode:     mode,
		Session:  sess,
	})
	if err != nil {
		return fmt.Errorf("open socket: %w", err)
	}
	defer sock.Close()

	total := 0
	for _, name := range names {
		err := rec.Scan(name, func(seq uint64, frames [][]byte) error {
			if total > 0 && opts.Interval > 0 {
				select {
				case <-ctx.Done():
					return errStopReplay
				case <-time.After(opts.Interval):
				}
			}
			if err := sock.Send(ctx, frames); err != nil {
				if ctx.Err() != nil {
					return errStopReplay
				}
				return fmt.Errorf("send %s/%d: %w", name, seq, err)
			}
			total++
			return nil
		})
		if errors.Is(err, errStopReplay) {
			break
		}
		if err != nil {
			return err
		}
		log.Info().Str("stream", name).Msg("stream replayed")
	}
	log.Info().Int("messages", total).Strs("streams", names).Msg("replay complete")
	return nil
}
