package drmcolor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/drmcolor/edid"
	"github.com/gogpu/drmcolor/tonemap"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

// subLoggers are the sub-package setters SetLogger forwards to. Platform
// files append to it.
var subLoggers = []func(*slog.Logger){
	edid.SetLogger,
	tonemap.SetLogger,
}

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for drmcolor and its sub-packages. By
// default nothing is logged. Pass nil to restore that.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame decisions (modes, blob ids)
//   - [slog.LevelInfo]: session and driver lifecycle
//   - [slog.LevelWarn]: non-fatal fallbacks (invalid source gamut, EDID
//     checksum mismatch, release errors)
//
// Example:
//
//	drmcolor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, set := range subLoggers {
		set(l)
	}
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
