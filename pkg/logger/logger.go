package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
	// AddSource annotates records with the caller's file and line.
	AddSource bool        `yaml:"add_source"`
	Audit     AuditConfig `yaml:"audit"`
}

// AuditConfig controls where per-request audit records go. When disabled the
// audit logger is the application logger.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	auditLogger   *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger instances. Calling it again replaces the
// previous configuration and closes the files it opened.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var opened []io.Closer
	writer, err := buildWriter(cfg.OutputPaths, &opened)
	if err != nil {
		closeAll(opened)
		return err
	}
	base := slog.New(buildHandler(cfg.Format, writer, handlerOpts))

	audit := base
	if cfg.Audit.Enabled {
		if strings.TrimSpace(cfg.Audit.Path) == "" {
			closeAll(opened)
			return errors.New("audit log path cannot be empty when enabled")
		}
		auditWriter, closer, err := openWriter(cfg.Audit.Path)
		if err != nil {
			closeAll(opened)
			return err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		audit = slog.New(slog.NewJSONHandler(auditWriter, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	mu.Lock()
	previous := closers
	defaultLogger = base
	auditLogger = audit
	closers = opened
	mu.Unlock()

	slog.SetDefault(base)
	closeAll(previous)
	return nil
}

func buildWriter(outputs []string, opened *[]io.Closer) (io.Writer, error) {
	if len(outputs) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		writer, closer, err := openWriter(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			*opened = append(*opened, closer)
		}
		writers = append(writers, writer)
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func buildHandler(format string, writer io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts)
	}
	return slog.NewJSONHandler(writer, opts)
}

func openWriter(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
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

// L returns the structured logger instance.
func L() *slog.Logger {
	mu.RLock()
	current := defaultLogger
	mu.RUnlock()
	if current != nil {
		return current
	}
	if err := Init(Config{}); err != nil {
		return slog.Default()
	}
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Audit returns the audit logger.
func Audit() *slog.Logger {
	mu.RLock()
	audit := auditLogger
	mu.RUnlock()
	if audit == nil {
		return L()
	}
	return audit
}

// Sync closes the log files opened by Init.
func Sync() error {
	mu.Lock()
	opened := closers
	closers = nil
	mu.Unlock()
	return closeAll(opened)
}

// Named returns a child logger tagged with the provided component name.
func Named(name string) *slog.Logger {
	return L().With("component", name)
}

func closeAll(list []io.Closer) error {
	var err error
	for _, closer := range list {
		err = errors.Join(err, closer.Close())
	}
	return err
}
