package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MEKXH/gatekeeper/internal/config"
)

// stdoutTargets name the process stdout, which `serve` reserves for MCP frames.
var stdoutTargets = map[string]bool{
	"-":           true,
	"stdout":      true,
	"/dev/stdout": true,
	"/dev/fd/1":   true,
}

// logOutput owns the log file opened for the current process, if any.
type logOutput struct {
	mu   sync.Mutex
	file *os.File
}

var logs logOutput

// writer returns the destination for path, reusing the open file when the
// path is unchanged. An empty path means stderr.
func (o *logOutput) writer(path string) (io.Writer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file != nil && o.file.Name() != path {
		_ = o.file.Close()
		o.file = nil
	}
	if path == "" {
		return os.Stderr, nil
	}
	if stdoutTargets[strings.ToLower(path)] {
		return nil, fmt.Errorf("log.file %q would write to stdout; use a file path or leave it empty for stderr", path)
	}
	if o.file != nil {
		return o.file, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	o.file = f
	return f, nil
}

func (o *logOutput) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file != nil {
		_ = o.file.Close()
		o.file = nil
	}
}

// configureLogger installs the default slog logger from cfg.Log. A non-empty
// overrideLevel wins over the configured level.
func configureLogger(cfg *config.Config, overrideLevel string) error {
	level, err := parseLogLevel(cfg.Log.Level, overrideLevel)
	if err != nil {
		return err
	}

	path := strings.TrimSpace(cfg.Log.File)
	if !stdoutTargets[strings.ToLower(path)] {
		path = config.ExpandHome(path)
	}
	w, err := logs.writer(path)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLogLevel(configLevel, override string) (slog.Level, error) {
	raw := strings.TrimSpace(override)
	if raw == "" {
		raw = strings.TrimSpace(configLevel)
	}
	switch strings.ToLower(raw) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "debug", "info", "warn", "error":
		var level slog.Level
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return 0, fmt.Errorf("invalid log level: %s", raw)
		}
		return level, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", raw)
	}
}
