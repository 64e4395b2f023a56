package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. Production emits JSON for the log
// pipeline; elsewhere the text handler keeps output readable. Every record
// carries the service name so aggregated logs stay attributable.
func NewLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	}
	return slog.New(handler).With(slog.String("service", "shepherd"))
}
