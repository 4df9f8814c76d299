// Package logging builds the zerolog loggers used across daybook.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const permission = 0o664

// Build accumulates logger settings.
type Build struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// Log is a built logger plus the file it writes to, if any.
type Log struct {
	Logger zerolog.Logger
	file   *os.File
}

// New starts a logger build. Without a writer or path, logs are discarded.
func New() *Build {
	return &Build{level: zerolog.InfoLevel}
}

// FromPath appends logs to the file at path.
func (b *Build) FromPath(path string) *Build {
	b.path = path
	return b
}

// FromWriter writes logs to w.
func (b *Build) FromWriter(w io.Writer) *Build {
	b.writer = w
	return b
}

// WithLevel sets the minimum level.
func (b *Build) WithLevel(level zerolog.Level) *Build {
	b.level = level
	return b
}

// Make opens the log destination and returns the logger.
func (b *Build) Make() (*Log, error) {
	log := new(Log)
	writer := b.writer
	if b.path != "" {
		file, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", b.path, err)
		}
		log.file = file
		writer = zerolog.SyncWriter(file)
	}
	if writer == nil {
		log.Logger = zerolog.Nop()
		return log, nil
	}
	log.Logger = zerolog.New(writer).Level(b.level).With().Timestamp().Logger()
	return log, nil
}

// Close closes the log file, if one was opened.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel parses a configured level name. The empty string means info.
func ParseLevel(value string) (zerolog.Level, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(value)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}
	return level, nil
}

// OrNop returns *logger, or a disabled logger when logger is nil.
func OrNop(logger *zerolog.Logger) zerolog.Logger {
	if logger == nil {
		return zerolog.Nop()
	}
	return *logger
}
