// Package logging configures log/slog for the host tools and routes the
// firmware-side debug hook into it.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"avrbus/core"
)

// teeWriter writes to the console target and, when configured, a log file.
type teeWriter struct {
	mu     sync.Mutex
	target io.Writer
	file   *os.File
}

func (w *teeWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	if w.target != nil {
		if _, err := w.target.Write(p); err != nil {
			firstErr = err
		}
	}
	if w.file != nil {
		if _, err := w.file.Write(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(p), firstErr
}

var writer = &teeWriter{target: os.Stderr}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the default slog logger. format is "text" or "json"; a
// non-empty logFile is appended to in addition to stderr.
func Init(levelStr, formatStr, logFile string) error {
	next := &teeWriter{target: os.Stderr}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		next.file = file
	}
	if err := Close(); err != nil {
		slog.Warn("Closing previous log file failed", "error", err)
	}
	writer = next

	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}
	var handler slog.Handler
	if strings.ToLower(formatStr) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// SetOutput replaces the console target.
func SetOutput(target io.Writer) {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	writer.target = target
}

// RouteDebug sends core debug output and bus trace dumps to slog at debug
// level. Used when the drivers run in-process against the simulator.
func RouteDebug(enabled bool) {
	core.SetDebugWriter(func(msg string) {
		slog.Debug(msg, "source", "core")
	})
	core.SetDebugEnabled(enabled)
}

// Close closes the log file, if any.
func Close() error {
	writer.mu.Lock()
	defer writer.mu.Unlock()

	if writer.file == nil {
		return nil
	}
	err := writer.file.Close()
	writer.file = nil
	return err
}
