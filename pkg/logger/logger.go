// Package logger provides structured logging using slog with hostname tracking
// and short source file paths.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// hostname is cached on init.
var hostname string

func init() {
	var err error
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
}

// New creates a text logger writing to w at level, tagging every record with
// the host name and a basename:line source.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
					source.Function = ""
				}
			}
			return a
		},
	}

	return slog.New(slog.NewTextHandler(w, opts)).With("instance", hostname)
}

// Hostname returns the cached hostname.
func Hostname() string {
	return hostname
}
