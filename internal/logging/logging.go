// Package logging builds the charmbracelet/log loggers used by the server
// and the CLI.
package logging

import (
	"errors"
	"fmt"
	"io"

	internalstrings "github.com/amonks/issues/internal/strings"
	"github.com/charmbracelet/log"
)

// ErrInvalidLevel indicates an unknown log level name.
var ErrInvalidLevel = errors.New("invalid log level")

// Options holds logger configuration.
type Options struct {
	Level           log.Level
	Formatter       log.Formatter
	ReportTimestamp bool
	Prefix          string
}

// DefaultOptions returns the options used by `issues serve`.
func DefaultOptions() Options {
	return Options{
		Level:           log.InfoLevel,
		Formatter:       log.TextFormatter,
		ReportTimestamp: true,
		Prefix:          "issues",
	}
}

// New creates a logger that writes to w.
func New(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           opts.Level,
		Formatter:       opts.Formatter,
		ReportTimestamp: opts.ReportTimestamp,
		Prefix:          opts.Prefix,
	})
}

// ParseLevel maps debug, info, warn and error to log levels.
func ParseLevel(value string) (log.Level, error) {
	switch internalstrings.NormalizeLowerTrimSpace(value) {
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("%w: %q (valid: debug, info, warn, error)", ErrInvalidLevel, value)
	}
}

// Discard returns a logger that drops everything, for tests and for callers
// that did not supply one.
func Discard() *log.Logger {
	return New(io.Discard, Options{Level: log.FatalLevel})
}
