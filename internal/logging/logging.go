// Package logging configures the zerolog loggers used by canaryload.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction. Empty fields fall back to the
// LOG_LEVEL and PRETTY_LOG environment variables.
type Options struct {
	Level  string
	Pretty *bool
	Out    io.Writer
}

// New builds a logger writing to opts.Out (stderr by default).
func New(opts Options) zerolog.Logger {
	zerolog.DurationFieldInteger = true

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var warnings []string

	level := zerolog.InfoLevel
	levelName := strings.TrimSpace(opts.Level)
	if levelName == "" {
		levelName = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	}
	if levelName != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(levelName)); err != nil {
			warnings = append(warnings, "unable to parse log level "+strconv.Quote(levelName)+", using info")
		} else {
			level = l
		}
	}

	pretty := false
	if opts.Pretty != nil {
		pretty = *opts.Pretty
	} else if env := strings.TrimSpace(os.Getenv("PRETTY_LOG")); env != "" {
		if b, err := strconv.ParseBool(env); err != nil {
			warnings = append(warnings, "unable to parse PRETTY_LOG "+strconv.Quote(env)+", using structured logging")
		} else {
			pretty = b
		}
	}

	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}
	return logger
}
