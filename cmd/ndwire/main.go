package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ndwire/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	observability.InitLogger("ndwire")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("ndwire failed")
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ndwire",
		Short:         "Stream n-dimensional arrays over push/pull and pub/sub sockets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newPublishCmd(), newSinkCmd(), newReplayCmd())
	return root
}
