// Package logging configures the process-wide structured logger.
// Log records go to stderr as JSON so crawl results on stdout stay
// machine-readable; an optional size-rotated file mirrors the stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options controls the process logger.
type Options struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty disables file output
	MaxSizeMB  int64
	MaxBackups int
	Quiet      bool // suppress stderr output
}

// DefaultOptions returns console-only info logging with a 100 MB file
// rotation budget when a file is configured.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 5,
	}
}

// Setup installs the default slog logger per the options. The returned
// closer closes the log file; it is a no-op for console-only logging.
func Setup(opts Options) (io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0o755); err != nil {
			return nil, err
		}
		rolling, err := NewRollingFile(opts.FilePath, opts.MaxSizeMB<<20, opts.MaxBackups)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rolling)
		closer = rolling
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(opts.Level),
	})
	slog.SetDefault(slog.New(handler))
	return closer, nil
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
