// Package logging configures the zerolog logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options controls logger construction.
type Options struct {
	Level  string
	Format Format
	Out    io.Writer
	RunID  string
}

// New builds a logger writing to opts.Out. Console output is the human
// readable zerolog.ConsoleWriter with millisecond timestamps.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.ToLower(strings.TrimSpace(opts.Level)); s != "" {
		parsed, err := zerolog.ParseLevel(s)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var out io.Writer
	switch opts.Format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: opts.Out, TimeFormat: time.StampMilli}
	case FormatJSON:
		out = opts.Out
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q is not supported", opts.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run_id", opts.RunID)
	}
	return ctx.Logger(), nil
}
