package drmcolor

import (
	"context"

	"github.com/gogpu/drmcolor/internal/color"
	"github.com/gogpu/drmcolor/tonemap"
)

// Default LUT sizes.
const (
	DefaultDegammaSize = 1024
	DefaultGammaSize   = 1024
)

// lutMax is the full-scale code of struct drm_color_lut entries.
const lutMax = 0xffff

// ToneMapper replaces a buffer with a tone-mapped copy. *tonemap.Queue and
// *tonemap.Session implement it.
type ToneMapper interface {
	ToneMap(ctx context.Context, buf *tonemap.Buffer, req tonemap.Request) (*tonemap.Buffer, error)
}

// Option configures a Planner.
type Option func(*Planner)

// WithToneMapper enables tone mapping through tm.
func WithToneMapper(tm ToneMapper) Option {
	return func(p *Planner) {
		p.toneMapper = tm
	}
}

// WithDegammaSize sets the default plane degamma LUT size.
func WithDegammaSize(n int) Option {
	return func(p *Planner) {
		p.degammaSize = n
	}
}

// WithGammaSize sets the default CRTC gamma LUT size.
func WithGammaSize(n int) Option {
	return func(p *Planner) {
		p.gammaSize = n
	}
}

// withTables replaces the shared LUT cache.
func withTables(t *color.Tables) Option {
	return func(p *Planner) {
		p.tables = t
	}
}
