package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	LevelEnvVar  = "THUMBNAIL_LOG_LEVEL"
	FormatEnvVar = "THUMBNAIL_LOG_FORMAT"
)

// Init initializes the global logger with configuration from environment variables.
// THUMBNAIL_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
// THUMBNAIL_LOG_FORMAT=console switches from JSON lines to the human-readable writer.
func Init() {
	InitWriter(os.Stderr)
}

// InitWriter is Init with an explicit output, used by tests.
func InitWriter(w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnvVar)))

	if strings.EqualFold(os.Getenv(FormatEnvVar), "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	// Loggers pulled from a context without one attached fall back to the global.
	zerolog.DefaultContextLogger = &log.Logger
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
