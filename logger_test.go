package drmcolor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if _, ok := h.WithAttrs([]slog.Attr{slog.String("key", "val")}).(nopHandler); !ok {
		t.Error("WithAttrs did not return nopHandler")
	}
	if _, ok := h.WithGroup("group").(nopHandler); !ok {
		t.Error("WithGroup did not return nopHandler")
	}
}

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if l.Enabled(context.Background(), level) {
			t.Errorf("default logger should not be enabled for %v", level)
		}
	}
}

func TestSetLogger(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	SetLogger(custom)
	if Logger() != custom {
		t.Fatal("Logger() did not return the custom logger")
	}

	// A plan logs its per-frame decision at Debug.
	p := newTestPlanner(newFakeInstaller())
	out := NewOutput(7, 8, NewPlane(31, PlaneTypePrimary))
	out.Planes[0].View = view(&hdr.ContentMetadata{Colorspace: gamut.DCIP3})
	if _, err := p.Plan(context.Background(), out, sdrDisplay()); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"output planned", "crtc=7", "no gamut conversion"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log output missing %q:\n%s", want, buf.String())
		}
	}

	SetLogger(nil)
	if Logger().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("SetLogger(nil) did not restore the silent logger")
	}
}

func TestSetLoggerConcurrent(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				SetLogger(slog.New(slog.DiscardHandler))
			} else {
				_ = Logger()
			}
		}()
	}
	wg.Wait()
}
