// Package logging configures the process-wide slog logger.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
)

// Options configures Setup.
type Options struct {
	Level slog.Level
	// File, if set, receives every record in plain text.
	File string
	// NoColor disables ANSI colors on the console.
	NoColor bool
	Fluent  FluentOptions
}

// FluentOptions configures forwarding to Fluent Bit.
type FluentOptions struct {
	Enabled bool
	Host    string
	Port    int
	Tag     string
}

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	level  slog.Leveler
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= lr.level.Level()
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		level:  lr.level,
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// multiHandler fans records out to every handler that accepts them.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}

// consoleHandler builds the stdout/stderr router for the given writers.
func consoleHandler(stdout, stderr io.Writer, level slog.Level, noColor bool) slog.Handler {
	opts := &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    noColor,
	}
	return &levelRouter{
		level:  level,
		stdout: tint.NewHandler(stdout, opts),
		stderr: tint.NewHandler(stderr, opts),
	}
}

// Setup installs the default logger: colored console output, an optional
// log file and optional Fluent Bit forwarding. The returned cleanup function
// closes the file and the Fluent connection.
func Setup(opts Options) (func(), error) {
	handlers := multiHandler{consoleHandler(os.Stdout, os.Stderr, opts.Level, opts.NoColor)}
	var closers []io.Closer

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: opts.Level}))
	}

	if opts.Fluent.Enabled {
		client, err := fluent.New(fluent.Config{
			FluentHost: opts.Fluent.Host,
			FluentPort: opts.Fluent.Port,
			TagPrefix:  opts.Fluent.Tag,
			Async:      true,
		})
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return nil, fmt.Errorf("creating fluent client: %w", err)
		}
		closers = append(closers, client)
		handlers = append(handlers, newFluentHandler(client, "app", opts.Level))
	}

	slog.SetDefault(slog.New(handlers))

	return func() {
		for _, c := range closers {
			c.Close()
		}
	}, nil
}

// ParseLevel converts a level name to a slog.Level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
