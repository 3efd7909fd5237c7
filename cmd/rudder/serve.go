package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kon-rad/rudder-analytics-go/internal/app"
)

func newServeCmd(c *cli) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local relay",
		Long: `Run an HTTP relay that accepts POST /v1/{identify,track,page,screen,group,alias},
validates each event, and forwards them to the data plane in batches.

Examples:
  rudder serve                 # listen on RUDDER_PORT (default 8089)
  rudder serve --port 9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != "" {
				c.cfg.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c.logger.Info("relay starting", "version", version, "data_plane_url", c.cfg.DataPlaneURL)
			return app.New(c.cfg, c.logger, version).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on (overrides RUDDER_PORT)")
	return cmd
}
