package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu           sync.RWMutex
	globalLogger zerolog.Logger
	once         sync.Once
)

// GetLogger returns the process logger. Until New is called it writes console output at info level.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		mu.Lock()
		globalLogger = build(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, zerolog.InfoLevel)
		mu.Unlock()
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// New reconfigures the process logger from level and format ("json" or "console").
func New(level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "json":
		out = os.Stdout
	case "console":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	GetLogger()
	zerolog.SetGlobalLevel(lvl)
	mu.Lock()
	globalLogger = build(out, lvl)
	mu.Unlock()
	return GetLogger(), nil
}

func build(out io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
