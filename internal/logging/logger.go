// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

// Setup installs a default slog logger. When logFile is not empty, records
// are written to stdout and appended to that file. The returned close func
// releases the file.
func Setup(level, format, logFile string) (func() error, error) {
	var (
		out     io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return closeFn, errors.Wrap(err, "create log dir")
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return closeFn, errors.Wrap(err, "open log file")
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}

	slog.SetDefault(slog.New(NewHandler(out, level, format)))
	return closeFn, nil
}

// NewHandler builds a text or json handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromContext returns the default logger with the chi request id attached when present.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	return logger
}
