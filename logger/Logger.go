// Package logger builds the structured loggers used by the command line
// tools
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
	File   string // Also write JSON lines to this rotated file if set

	MaxSizeMB  int // Size at which the file is rotated, default 100
	MaxBackups int // Rotated files kept, default 5

	Out io.Writer // Console output, default os.Stdout
}

// ParseLevel returns the zerolog level named by level, defaulting to
// info for unknown names
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// New creates a new structured logger. The returned Closer closes the
// log file, if any, and must be called once logging is done.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		if file.MaxSize <= 0 {
			file.MaxSize = 100
		}
		if file.MaxBackups <= 0 {
			file.MaxBackups = 5
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger(), closer
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
