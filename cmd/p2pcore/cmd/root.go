package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wiresync/p2pcore/pkg/config"
	"github.com/wiresync/p2pcore/pkg/logging"
)

var (
	v      = viper.New()
	debug  bool
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "p2pcore",
	Short:         "Run a P2P transport core host or client",
	Long:          `p2pcore starts a star-topology signaling session: one "host" and one or more "client" processes exchanging text and files on a local IPv4 network.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		config.Init()
		logger = logging.NewDefault(os.Stdout, debug)
		slog.SetDefault(logger)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Uint16("signaling-port", 0, "first signaling port to try (default 3456)")
	rootCmd.PersistentFlags().Uint16("file-port", 0, "first file-server port to try (default 4567)")
	rootCmd.PersistentFlags().Int("port-search-width", 0, "how many sequential ports to try before giving up (default 10)")
	rootCmd.PersistentFlags().String("download-dir", "", "directory downloads are saved under (default .)")

	flagToKey := map[string]string{
		"signaling-port":    "signaling_port",
		"file-port":         "file_port",
		"port-search-width": "port_search_width",
		"download-dir":      "download_dir",
	}
	for flag, key := range flagToKey {
		_ = v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	rootCmd.AddCommand(hostCmd, clientCmd)
}

// resolveConfig applies config.BindFlags' CLI-flag/env-overridden
// defaults and swaps the result in as the process-wide config.
func resolveConfig() config.Config {
	c := config.BindFlags(v)
	config.Swap(c)
	return c
}
