package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process logger. JSON output is for shipped
// environments; text is the local default. Every record carries the
// service attribute so log pipelines can split iam from its neighbours.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "iam"))
}
