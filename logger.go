package framegraph

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler discards every record. Enabled returns false so callers skip
// formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for framegraph and its sub-packages.
// By default nothing is logged. Pass nil to restore the silent default.
//
// Graphs and their allocators pick up the logger when they are created
// with [New]; native devices pick it up in native.New unless
// native.WithLogger overrides it. Pass callbacks reach the graph's logger
// through ExecContext.Logger.
//
// Records written, by level:
//   - [slog.LevelDebug]: "framegraph: compiled" after every Compile (pass,
//     culled pass, barrier and fence counts, allocator summary) and
//     "framegraph: executed" after every Execute (submit count); the
//     allocator's "lifetime: created heap", "lifetime: releasing empty heap"
//     and "lifetime: evicting idle resource"
//   - [slog.LevelInfo]: "native: device ready" and "native: device closed"
//   - [slog.LevelWarn]: "framegraph: invalid config" from New, and native
//     device teardown with work in flight or heaps that still hold
//     resources
//
// Example:
//
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Sub-packages call it to share the
// configuration without import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
