// Package logging builds the process-wide slog logger from the log section of the crawl configuration.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/masahif/webcorpus/internal/config"
)

// ErrUnknownFormat is returned for a log format other than json or text
var ErrUnknownFormat = errors.New("unknown log format")

// ParseLevel converts a string log level to slog.Level. Unknown levels fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Logger is a configured slog.Logger plus the file it may own.
type Logger struct {
	*slog.Logger
	file *RotatingFileWriter
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// New creates a logger writing to console and, when cfg.File is set, to a size-rotated file.
func New(cfg config.LogConfig, console io.Writer) (*Logger, error) {
	l := &Logger{}

	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		maxSize := cfg.MaxSizeMB * humanize.MiByte
		fileWriter, err := NewRotatingFileWriter(cfg.File, maxSize, cfg.MaxBackups)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = fileWriter
		writers = append(writers, fileWriter)
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		l.Logger = slog.New(slog.NewJSONHandler(writer, opts))
	case "text":
		l.Logger = slog.New(slog.NewTextHandler(writer, opts))
	default:
		_ = l.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
	}

	return l, nil
}

// SetDefault creates a logger and installs it as the slog default.
// The caller closes the returned logger on exit.
func SetDefault(cfg config.LogConfig, console io.Writer) (*Logger, error) {
	l, err := New(cfg, console)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)
	return l, nil
}
