package tonemap

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler silently discards all log records.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger sets the logger for sessions and drivers. Drivers opened after
// the call that accept a logger receive it too. Pass nil to silence
// logging.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)

	registry.RLock()
	open := make([]Driver, 0, len(registry.live))
	for d := range registry.live {
		open = append(open, d)
	}
	registry.RUnlock()
	for _, d := range open {
		propagateLogger(d, l)
	}
}

// loggerSetter is implemented by drivers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(d Driver, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
