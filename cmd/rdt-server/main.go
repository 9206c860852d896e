// Command rdt-server serves a single file transfer over the reliable
// datagram transport implemented in internal/rdt.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/telepresenceio/rdt/internal/rdt/rdtcfg"
	"github.com/telepresenceio/rdt/internal/rdtlog"
	"github.com/telepresenceio/rdt/internal/server"
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
		Use:           "rdt-server <port>",
		Short:         "Serve one file transfer over a reliable UDP-based transport",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid port %q: %w", args[0], err)
			}
			ctx := rdtlog.WithLevel(cmd.Context(), logLevel)

			cfg, err := rdtcfg.FromEnvironment(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if timeout > 0 {
				cfg.Timeout = timeout
			}

			if err := server.Run(ctx, port, cfg); err != nil {
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
