// Package config holds the tunables shared by the host server, the client
// peer, the file server/downloader, and the session facades: ports, port
// search width, timeouts, and polling intervals. It keeps a single process
// wide config cell behind an atomic.Value, following the same load/update/
// swap discipline regardless of how many sessions a process hosts.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config defines the tunables of one process. Multiple Host/Client
// sessions created in the same process share these values.
type Config struct {
	// DefaultSignalingPort is the first port the Host server tries to
	// bind for WebSocket signaling + co-hosted file serving.
	DefaultSignalingPort uint16

	// DefaultFilePort is the first port a Client's standalone file
	// server tries to bind.
	DefaultFilePort uint16

	// PortSearchWidth bounds how many sequential ports (starting at
	// the default) a bind attempt will try before giving up.
	PortSearchWidth int

	// DefaultDownloadDir is where downloads land when the caller does
	// not specify save_dir explicitly.
	DefaultDownloadDir string

	// WebSocketConnectTimeout bounds a single connect attempt.
	WebSocketConnectTimeout time.Duration

	// WebSocketPingInterval keeps idle WebSocket connections alive
	// through intermediaries.
	WebSocketPingInterval time.Duration

	// ClientMaxRetries is the number of reconnect attempts a Client
	// makes after an unexpected disconnect before going terminal.
	ClientMaxRetries int

	// FacadePollInterval is how often roster/hosted-file/receivable-
	// file observable streams re-project their underlying maps.
	FacadePollInterval time.Duration

	// ProgressUpdateMinInterval throttles fileProgressUpdate control
	// messages sent over the signaling channel during a download.
	ProgressUpdateMinInterval time.Duration

	// ProgressUpdateStepPercent is the minimum percentage-point
	// increase since the last reported sample before another progress
	// update is sent; the ProgressUpdateMinInterval rate limit still
	// applies.
	ProgressUpdateStepPercent float64
}

func defaultConfig() Config {
	return Config{
		DefaultSignalingPort:      3456,
		DefaultFilePort:           4567,
		PortSearchWidth:           10,
		DefaultDownloadDir:        ".",
		WebSocketConnectTimeout:   10 * time.Second,
		WebSocketPingInterval:     5 * time.Second,
		ClientMaxRetries:          3,
		FacadePollInterval:        500 * time.Millisecond,
		ProgressUpdateMinInterval: 1 * time.Second,
		ProgressUpdateStepPercent: 5.0,
	}
}

// BindFlags wires the config's fields to viper-backed flags so a cobra
// command can override any default via flag or environment variable
// (P2PCORE_* prefix), then returns the resolved Config.
func BindFlags(v *viper.Viper) Config {
	d := defaultConfig()

	v.SetEnvPrefix("p2pcore")
	v.AutomaticEnv()

	v.SetDefault("signaling_port", d.DefaultSignalingPort)
	v.SetDefault("file_port", d.DefaultFilePort)
	v.SetDefault("port_search_width", d.PortSearchWidth)
	v.SetDefault("download_dir", d.DefaultDownloadDir)

	return Config{
		DefaultSignalingPort:      uint16(v.GetUint("signaling_port")),
		DefaultFilePort:           uint16(v.GetUint("file_port")),
		PortSearchWidth:           v.GetInt("port_search_width"),
		DefaultDownloadDir:        v.GetString("download_dir"),
		WebSocketConnectTimeout:   d.WebSocketConnectTimeout,
		WebSocketPingInterval:     d.WebSocketPingInterval,
		ClientMaxRetries:          d.ClientMaxRetries,
		FacadePollInterval:        d.FacadePollInterval,
		ProgressUpdateMinInterval: d.ProgressUpdateMinInterval,
		ProgressUpdateStepPercent: d.ProgressUpdateStepPercent,
	}
}
