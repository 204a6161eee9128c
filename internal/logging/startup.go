package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger builds the one-line startup summary for an entry point:
// where it runs, which buckets and queues it touches, and its settings.
// Entries keep the order they were added in.
type StartupLogger struct {
	name     string
	initTime time.Duration
	buckets  []entry
	queues   []entry
	settings []entry
}

type entry struct{ key, value string }

// NewStartupLogger starts a summary for the named entry point, e.g.
// "thumbnail-lambda" or "thumbnail-worker".
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{name: name}
}

// S3Bucket records a bucket under a role such as "destination".
func (s *StartupLogger) S3Bucket(role, bucket string) *StartupLogger {
	s.buckets = append(s.buckets, entry{role, bucket})
	return s
}

// Queue records a queue or exchange under a role such as "requests".
func (s *StartupLogger) Queue(role, name string) *StartupLogger {
	s.queues = append(s.queues, entry{role, name})
	return s
}

// Config records a setting. Never pass secrets.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.settings = append(s.settings, entry{key, value})
	return s
}

// InitDuration records how long startup took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initTime = d
	return s
}

// EnvOrDefault returns the named environment variable, or def when it is
// empty.
func EnvOrDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// Log writes the summary as a single INFO event.
func (s *StartupLogger) Log() {
	host := zerolog.Dict().
		Str("name", s.name).
		Str("go", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Int("pid", os.Getpid()).
		Str("logLevel", EnvOrDefault(LevelEnvVar, "info"))
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		host = host.
			Str("functionName", fn).
			Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
			Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE"))
	}

	evt := log.Info().Dict("process", host)
	for _, group := range []struct {
		name    string
		entries []entry
	}{
		{"buckets", s.buckets},
		{"queues", s.queues},
		{"settings", s.settings},
	} {
		if len(group.entries) == 0 {
			continue
		}
		d := zerolog.Dict()
		for _, e := range group.entries {
			d = d.Str(e.key, e.value)
		}
		evt = evt.Dict(group.name, d)
	}
	if s.initTime > 0 {
		evt = evt.Int64("initMs", s.initTime.Milliseconds())
	}
	evt.Msg("Startup complete")
}
