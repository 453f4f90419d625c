package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogConfig selects the log level, format and destination.
type LogConfig struct {
	Level      string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Format     string `json:"format,omitempty" yaml:"format,omitempty"` // text, json
	Output     string `json:"output,omitempty" yaml:"output,omitempty"` // stdout, stderr, file
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	AddSource  bool   `json:"add_source,omitempty" yaml:"add_source,omitempty"`
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// NewLogger builds a logger from the configuration. The returned closer
// releases the log file, if any.
func (c LogConfig) NewLogger() (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	switch strings.ToLower(c.Output) {
	case "stdout":
		w = os.Stdout
	case "file":
		path := c.OutputPath
		if path == "" {
			path = "logs/zbot.log"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}

	return slog.New(c.handler(w, level)), closer, nil
}

func (c LogConfig) handler(w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, AddSource: c.AddSource}
	if strings.ToLower(c.Format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
