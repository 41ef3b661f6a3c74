// csync: clipboard sync between devices through a Redis relay.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/csync/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "csync",
		Short: "Clipboard sync through a Redis relay",
		Long: `csync keeps the clipboards of several devices in sync. Each device
publishes its clipboard changes on its own channel of a shared Redis server
and writes changes from the devices it watches into the local clipboard.
Payloads are encrypted with AES-256-GCM when a password is configured.

Run "csync start" on each device to launch the background agent.

Config file search order (first found wins):
  $CSYNC_CONFIG or path supplied via --config
  $HOME/.config/csync/config.yaml
  /etc/csync/config.yaml

All settings can be set via CSYNC_<KEY> env vars (CSYNC_REDIS_HOST, ...).`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newRestartCmd(),
		newLogsCmd(),
		newRunCmd(),
		newSendCmd(),
		newRecvCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("csync %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
