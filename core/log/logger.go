package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	logger = newLogger(os.Stdout, false).Level(zerolog.InfoLevel)
}

func newLogger(out io.Writer, jsonOutput bool) zerolog.Logger {
	if jsonOutput {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// Configure replaces the process logger. Unknown levels fall back to info.
func Configure(out io.Writer, level string, jsonOutput bool) {
	if out == nil {
		out = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger = newLogger(out, jsonOutput).Level(lvl)
}

func SetLevel(level zerolog.Level) {
	logger = logger.Level(level)
}

func Info(msg string, args ...any) {
	logger.Info().Msgf(msg, args...)
}

func Debug(msg string, args ...any) {
	logger.Debug().Msgf(msg, args...)
}

func Warn(msg string, args ...any) {
	logger.Warn().Msgf(msg, args...)
}

func Error(msg string, args ...any) {
	logger.Error().Msgf(msg, args...)
}
