package config

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// NewLogger builds the application logger described by cfg. The returned
// LevelVar lets a config reload change the level in place.
func NewLogger(cfg LogConfig) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	if !cfg.Level.IsValid() {
		return nil, nil, nil, ErrInvalidLogLevel
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "open log output %s", cfg.Output)
		}
		out, closer = f, f
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Level.Slog())
	logger, err := newLogger(out, cfg, level)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	return logger, level, closer, nil
}

func newLogger(out io.Writer, cfg LogConfig, level slog.Leveler) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	switch cfg.Format {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		return nil, ErrInvalidLogFormat
	}

	logger := slog.New(handler)
	for k, v := range cfg.Fields {
		logger = logger.With(k, v)
	}
	return logger, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
