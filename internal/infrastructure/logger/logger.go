package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	once         sync.Once
)

// GetLogger returns the process-wide logger. Before New has installed a
// configured instance it falls back to LOG_LEVEL / LOG_FORMAT from the
// environment so early startup paths still log sensibly.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
		if err != nil || lvl == zerolog.NoLevel {
			lvl = zerolog.InfoLevel
		}
		zerolog.SetGlobalLevel(lvl)
		globalLogger = build(os.Getenv("LOG_FORMAT"), lvl)
	})
	return globalLogger
}

// New constructs the logger from the service configuration and installs
// it as the global instance.
func New(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}
	switch strings.ToLower(format) {
	case "json", "console", "":
	default:
		return zerolog.Logger{}, fmt.Errorf("unsupported log format %q", format)
	}

	zerolog.SetGlobalLevel(lvl)
	once.Do(func() {})
	globalLogger = build(format, lvl)
	return globalLogger, nil
}

func build(format string, lvl zerolog.Level) zerolog.Logger {
	var out io.Writer = os.Stdout
	if !strings.EqualFold(format, "json") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().
		Timestamp().
		Str("service", "modelscout").
		Logger().
		Level(lvl)
}
