// Package logging configures the process-wide zerolog logger.
//
// Two output modes exist. Structured mode writes one JSON record per line shaped as
//
//	{"timestamp": "...", "level": "INFO", "message": "...", "context": {...}}
//
// where every field attached with Str/Int/Err/... ends up under "context". Console mode
// uses zerolog's ConsoleWriter for humans. In both modes lines below the configured
// minimum level are suppressed.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TimeFormat is ISO-8601 with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config holds logger settings.
type Config struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
	// Structured selects JSON records instead of console output.
	Structured bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns INFO level console logging to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "INFO",
		Structured: false,
		Output:     os.Stderr,
	}
}

// ParseLevel maps the log level names used in configuration to zerolog levels.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger for cfg without touching the global logger.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	configureFields()

	var w io.Writer
	if cfg.Structured {
		w = &recordWriter{out: out}
	} else {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// Setup replaces the global logger used through github.com/rs/zerolog/log.
func Setup(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		return err
	}

	log.Logger = logger
	zerolog.SetGlobalLevel(logger.GetLevel())
	return nil
}

func configureFields() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.TimeFieldFormat = TimeFormat
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		return strings.ToUpper(l.String())
	}
}
