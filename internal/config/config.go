package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kon-rad/rudder-analytics-go/document"
)

type Config struct {
	WriteKey          string        `env:"RUDDER_WRITE_KEY"`
	DataPlaneURL      string        `env:"RUDDER_DATA_PLANE_URL,default=https://hosted.rudderlabs.com"`
	LogLevel          string        `env:"RUDDER_LOG_LEVEL,default=info"`
	Port              string        `env:"RUDDER_PORT,default=8089"`
	DBPath            string        `env:"RUDDER_DB_PATH,default=/data/rudder-relay.db"`
	FlushInterval     time.Duration `env:"RUDDER_FLUSH_INTERVAL,default=10s"`
	FlushMaxEvents    int           `env:"RUDDER_FLUSH_MAX_EVENTS,default=10"`
	Gzip              bool          `env:"RUDDER_GZIP,default=true"`
	MaxRetries        int           `env:"RUDDER_MAX_RETRIES,default=5"`
	RequestTimeout    time.Duration `env:"RUDDER_REQUEST_TIMEOUT,default=30s"`
	RetentionDays     int           `env:"RUDDER_RETENTION_DAYS,default=7"`
	CleanupInterval   time.Duration `env:"RUDDER_CLEANUP_INTERVAL,default=1h"`
	SharedContextFile string        `env:"RUDDER_SHARED_CONTEXT_FILE"`
}

func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if cfg.FlushMaxEvents <= 0 {
		return nil, fmt.Errorf("RUDDER_FLUSH_MAX_EVENTS must be positive, got %d", cfg.FlushMaxEvents)
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("RUDDER_FLUSH_INTERVAL must be positive, got %s", cfg.FlushInterval)
	}
	return &cfg, nil
}

// SharedContext reads the YAML file named by SharedContextFile. It returns
// nil when no file is configured.
func (c *Config) SharedContext() (document.Document, error) {
	if c.SharedContextFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.SharedContextFile)
	if err != nil {
		return nil, fmt.Errorf("read shared context: %w", err)
	}
	return ParseSharedContext(raw)
}

// ParseSharedContext decodes a YAML mapping into a context document.
func ParseSharedContext(raw []byte) (document.Document, error) {
	var doc document.Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse shared context: %w", err)
	}
	return doc, nil
}

func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "rudder %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  RUDDER_WRITE_KEY=")
	fmt.Fprintln(w, "  RUDDER_DATA_PLANE_URL=https://hosted.rudderlabs.com")
	fmt.Fprintln(w, "  RUDDER_LOG_LEVEL=info")
	fmt.Fprintln(w, "  RUDDER_PORT=8089")
	fmt.Fprintln(w, "  RUDDER_DB_PATH=/data/rudder-relay.db")
	fmt.Fprintln(w, "  RUDDER_FLUSH_INTERVAL=10s")
	fmt.Fprintln(w, "  RUDDER_FLUSH_MAX_EVENTS=10")
	fmt.Fprintln(w, "  RUDDER_GZIP=true")
	fmt.Fprintln(w, "  RUDDER_MAX_RETRIES=5")
	fmt.Fprintln(w, "  RUDDER_REQUEST_TIMEOUT=30s")
	fmt.Fprintln(w, "  RUDDER_RETENTION_DAYS=7")
	fmt.Fprintln(w, "  RUDDER_CLEANUP_INTERVAL=1h")
	fmt.Fprintln(w, "  RUDDER_SHARED_CONTEXT_FILE=")
}
