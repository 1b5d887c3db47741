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

var (
	clientUsername string
	clientHostIP   string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect to a Host as a Client",
	RunE:  runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientUsername, "username", "client", "display name advertised to the host and other clients")
	clientCmd.Flags().StringVar(&clientHostIP, "host", "127.0.0.1", "IPv4 address of the Host's signaling server")
}

func runClient(c *cobra.Command, args []string) error {
	cfg := resolveConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := facade.NewClientFacade(uuid.NewString(), clientUsername, netutil.LocalIPv4{}, logger)

	if err := f.Connect(ctx, clientHostIP, cfg.DefaultSignalingPort, cfg.PortSearchWidth, cfg.DefaultFilePort, cfg.PortSearchWidth); err != nil {
		return err
	}
	defer f.Disconnect()

	logger.Info("p2pcore.client.connected", slog.String("id", f.ID()), slog.String("host", clientHostIP))

	go watchRoster(ctx, f.Roster(ctx))
	go watchTexts(ctx, f.Texts())

	<-ctx.Done()
	logger.Info("p2pcore.client.shutting_down")
	return nil
}
