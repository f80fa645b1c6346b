// Package debug builds the client's logger. The terminal belongs to the UI,
// so records only go anywhere when debug mode is on.
package debug

import (
	"io"
	"log/slog"
	"os"
)

// Logger returns a logger writing to path when enabled and discarding
// otherwise. The returned closer releases the log file.
func Logger(enabled bool, path string) (*slog.Logger, io.Closer) {
	if !enabled {
		return Discard(), io.NopCloser(nil)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return Discard(), io.NopCloser(nil)
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})), f
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
