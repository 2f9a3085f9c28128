// Package logging builds the process logger: colored console output plus an
// optional log file that is rotated away on every start.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names used as the "component" field of log lines.
const (
	ComponentSystem    = "system"
	ComponentScheduler = "scheduler"
	ComponentMailbox   = "mailbox"
	ComponentRouter    = "router"
	ComponentRoster    = "roster"
	ComponentStore     = "store"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string

	// File is the log file path; empty disables file output.
	File string

	// Console receives human-readable output; nil disables it.
	Console io.Writer

	// NoColor disables ANSI colors on the console.
	NoColor bool
}

// New returns the root logger and a function that closes the log file.
func New(opts Options) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("parsing log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var writers []io.Writer
	if opts.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.Console,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		})
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 1,
		}
		// Each run starts with a fresh file; the previous run is kept as
		// the single backup.
		if info, err := os.Stat(opts.File); err == nil && info.Size() > 0 {
			if err := file.Rotate(); err != nil {
				return zerolog.Nop(), nil, fmt.Errorf("rotating log file %s: %w", opts.File, err)
			}
		}
		writers = append(writers, file)
		closeFn = file.Close
	}

	if len(writers) == 0 {
		return zerolog.Nop(), closeFn, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, closeFn, nil
}

// For returns a child logger tagged with a component name.
func For(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str("component", component).Logger()
}
