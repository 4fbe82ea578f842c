package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers use the empty Attr pattern for nil safety, so calls
// like log.Info("msg", logger.Error(err)) need no explicit nil checks.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component creates an attribute for component names.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Domain creates an attribute for a domain name.
func Domain(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("domain", name)
}

// Path creates an attribute for filesystem paths.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// Elapsed calculates and logs the duration since the start time.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
