package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wiresync/p2pcore/pkg/facade"
	"github.com/wiresync/p2pcore/pkg/netutil"
)

var hostUsername string

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Start a session as the Host, accepting client connections",
	RunE:  runHost,
}

func init() {
	hostCmd.Flags().StringVar(&hostUsername, "username", "host", "display name advertised to clients")
}

func runHost(c *cobra.Command, args []string) error {
	cfg := resolveConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := facade.NewHostFacade(uuid.NewString(), hostUsername, netutil.LocalIPv4{}, logger)
	if err := f.Start(cfg.DefaultSignalingPort, cfg.PortSearchWidth); err != nil {
		return err
	}
	defer f.Stop(context.Background())

	logger.Info("p2pcore.host.started",
		slog.String("id", f.ID()),
		slog.Int("port", f.Port()),
	)

	go watchRoster(ctx, f.Roster(ctx))
	go watchTexts(ctx, f.Texts())

	<-ctx.Done()
	logger.Info("p2pcore.host.shutting_down")
	return nil
}

func watchRoster[T any](ctx context.Context, ch <-chan []T) {
	for {
		select {
		case <-ctx.Done():
			return
		case roster, ok := <-ch:
			if !ok {
				return
			}
			logger.Info("p2pcore.roster.changed", slog.Int("count", len(roster)))
		}
	}
}

func watchTexts(ctx context.Context, ch <-chan facade.TextEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logger.Info("p2pcore.text.received",
				slog.String("sender_id", ev.SenderID),
				slog.String("text", ev.Text),
			)
		}
	}
}
