// Package logger wraps zerolog with the component+field calling convention
// used throughout cortexd: Debug/Info/Warn/Error take a component name, a
// message, and an optional field map.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	root    zerolog.Logger
	enabled = true
)

func init() {
	root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
		With().Timestamp().Logger()
}

// Configure replaces the root logger's level and output. Safe to call once
// at process startup before any component loggers are used.
func Configure(level zerolog.Level, out io.Writer, json bool) {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = out
	if !json {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}
	root = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// SetEnabled toggles all DebugCF/InfoCF/... calls globally. Tests that assert
// on log volume can disable logging without changing call sites.
func SetEnabled(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

func fields(ev *zerolog.Event, f map[string]any) *zerolog.Event {
	if f == nil {
		return ev
	}
	return ev.Fields(f)
}

// DebugCF logs at debug level, scoped to component c, with structured fields.
func DebugCF(c, msg string, f map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	fields(root.Debug().Str("component", c), f).Msg(msg)
}

// InfoCF logs at info level, scoped to component c, with structured fields.
func InfoCF(c, msg string, f map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	fields(root.Info().Str("component", c), f).Msg(msg)
}

// WarnCF logs at warn level, scoped to component c, with structured fields.
func WarnCF(c, msg string, f map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	fields(root.Warn().Str("component", c), f).Msg(msg)
}

// ErrorCF logs at error level, scoped to component c, with structured fields
// and the originating error.
func ErrorCF(c, msg string, err error, f map[string]any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled {
		return
	}
	fields(root.Error().Str("component", c).Err(err), f).Msg(msg)
}

// For scopes a *zerolog.Logger for components that want the raw logger
// rather than the CF helpers (e.g. to pass into a third-party library that
// expects a zerolog.Logger, following the gastrolog orchestrator pattern of
// handing subcomponents a scoped child logger).
func For(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.With().Str("component", component).Logger()
}
