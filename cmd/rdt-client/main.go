// Command rdt-client requests a named file from an rdt-server and writes
// it to received.data over the reliable datagram transport implemented in
// internal/rdt.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/telepresenceio/rdt/internal/client"
	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdtlog"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var logLevel string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:           "rdt-client <server-host> <port> <filename>",
		Short:         "Request a file from an rdt-server and write it to received.data",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			host := args[0]
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[1], err)
			}
			filename := args[2]

			ctx := rdtlog.WithLevel(cmd.Context(), logLevel)

			cfg, err := rdtcfg.FromEnvironment(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if timeout > 0 {
				cfg.Timeout = timeout
			}

			if err := client.Run(ctx, host, port, filename, cfg); err != nil {
				dlog.Errorf(ctx, "%+v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override the retransmission timer (0 keeps the env/default value)")
	return cmd
}
