// Command rudder sends analytics events to a RudderStack data plane, one at a
// time or batched, and can run a local relay that batches for other
// processes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kon-rad/rudder-analytics-go/internal/config"
	"github.com/kon-rad/rudder-analytics-go/internal/logging"
	"github.com/kon-rad/rudder-analytics-go/push"
	"github.com/kon-rad/rudder-analytics-go/wire"
)

var version = wire.LibraryVersion

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the state shared by every subcommand once the persistent
// flags have been applied over the environment.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger

	writeKey     string
	dataPlaneURL string
	logLevel     string
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "rudder",
		Short: "Send analytics events to a RudderStack data plane",
		Long: `rudder validates analytics events, stamps the library context on them and
posts them to a RudderStack data plane.

Single events are read as JSON from stdin:
  echo '{"userId":"u-1","event":"Signed Up"}' | rudder track

Newline-delimited events carrying a "type" field are batched:
  rudder batch < events.jsonl

Run "rudder env" for the environment variables that configure it.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}
	root.PersistentFlags().StringVar(&c.writeKey, "write-key", "", "source write key (overrides RUDDER_WRITE_KEY)")
	root.PersistentFlags().StringVar(&c.dataPlaneURL, "data-plane-url", "", "data plane URL (overrides RUDDER_DATA_PLANE_URL)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides RUDDER_LOG_LEVEL)")

	root.AddCommand(newEnvCmd())
	root.AddCommand(newKindCmds(c)...)
	root.AddCommand(newBatchCmd(c))
	root.AddCommand(newServeCmd(c))
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if c.writeKey != "" {
		cfg.WriteKey = c.writeKey
	}
	if c.dataPlaneURL != "" {
		cfg.DataPlaneURL = c.dataPlaneURL
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logger, err := logging.Setup(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) pusher() *push.Pusher {
	return push.New(c.cfg.DataPlaneURL, c.cfg.WriteKey,
		push.WithHTTPClient(&http.Client{Timeout: c.cfg.RequestTimeout}),
		push.WithGzip(c.cfg.Gzip),
		push.WithRetries(c.cfg.MaxRetries, 500*time.Millisecond),
		push.WithLogger(c.logger),
	)
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the environment variables rudder reads",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			config.WriteHelp(cmd.OutOrStdout(), version)
		},
	}
}
