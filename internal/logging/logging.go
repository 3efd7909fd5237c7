package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var levelVar = new(slog.LevelVar)

// Setup installs a JSON logger writing to out as the slog default. The CLI
// passes stderr so stdout stays free for command output.
func Setup(level string, out io.Writer) (*slog.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "":
		normalized = "info"
	case "warning":
		normalized = "warn"
	}
	if err := levelVar.UnmarshalText([]byte(normalized)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: levelVar,
	})).With("component", "rudder")
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
