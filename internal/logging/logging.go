// Package logging builds the logrus logger shared by all components.
//
// Logs go to stderr, which mdBook forwards to the user. An optional log file
// is rotated with lumberjack.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// Options configures New.
type Options struct {
	// Level is a logrus level name ("debug", "info", ...).
	Level string

	// File, if set, receives a copy of every log line.
	File string

	// MaxSizeMB and MaxBackups bound the rotated log file.
	MaxSizeMB  int
	MaxBackups int

	// Output overrides stderr; used by tests.
	Output io.Writer
}

// New creates a logger. The returned closer flushes and closes the log file,
// if any.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var out io.Writer = os.Stderr
	if opts.Output != nil {
		out = opts.Output
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableTimestamp: false,
	})

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	logger.SetOutput(out)

	return logger, closer, nil
}

// Discard returns an entry that drops everything. Used by tests and library
// callers that do not care about logs.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
