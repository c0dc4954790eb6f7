// Package logging routes the core's fatal configuration diagnostics through
// a single small wrapper, keeping ad hoc fmt.Fprintf debug lines out of the
// numeric kernels themselves.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
)

// SetLogger overrides the process-wide logger. Callers embedding this core
// into a larger service should call this once at startup.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// Get returns the current logger.
func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Fatal logs a configuration-fatal event and terminates the process.
// Reserved for programmer errors at tightly controlled call sites:
// unsupported activation, head-count mismatch, unsupported dtype
// combination, or headSize not a multiple of 16 under head-sharded
// attention. Never used for recoverable, caller-input validation.
func Fatal(component, reason string, fields map[string]any) {
	l := Get()
	ev := l.Fatal().Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(reason)
}
