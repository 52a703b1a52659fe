//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/tonemap"
)

// paramsSize is the byte size of the shader's Params uniform.
const paramsSize = 96

// Transfer kinds understood by the shader.
const (
	kindSRGB uint32 = 0
	kindPQ   uint32 = 1
)

func transferKind(t gamut.TransferCharacteristics) (uint32, error) {
	switch t {
	case gamut.TransferSRGB:
		return kindSRGB, nil
	case gamut.TransferSMPTE2084:
		return kindPQ, nil
	}
	return 0, fmt.Errorf("%w: transfer %d", tonemap.ErrCapabilityUnsupported, t)
}

func redLow(f tonemap.Format) bool {
	return f == tonemap.FormatXBGR2101010 || f == tonemap.FormatABGR2101010
}

// packParams lays out the Params uniform:
//
//	0   width, height, in_kind, out_kind   u32
//	16  swap_rb, convert, pad, pad         u32
//	32  m0, m1, m2                         vec4<f32> (matrix rows)
//	80  in_scale, out_scale, src_peak, dst_peak f32
func packParams(p *tonemap.Pass) ([]byte, error) {
	in, err := transferKind(p.Curve.Input)
	if err != nil {
		return nil, err
	}
	out, err := transferKind(p.Curve.Output)
	if err != nil {
		return nil, err
	}
	b := make([]byte, paramsSize)
	le := binary.LittleEndian
	putU := func(off int, v uint32) { le.PutUint32(b[off:], v) }
	putF := func(off int, v float64) { le.PutUint32(b[off:], math.Float32bits(float32(v))) }

	putU(0, uint32(p.Width))  //nolint:gosec // bounded by the session's maximum size
	putU(4, uint32(p.Height)) //nolint:gosec // bounded by the session's maximum size
	putU(8, in)
	putU(12, out)
	if redLow(p.Format) {
		putU(16, 1)
	}
	if p.Curve.Convert {
		putU(20, 1)
	}
	for row := range 3 {
		for col := range 3 {
			putF(32+row*16+col*4, p.Curve.Matrix[row][col])
		}
	}
	putF(80, p.Curve.InputScale)
	putF(84, p.Curve.OutputScale)
	putF(88, p.Curve.SrcPeak)
	putF(92, p.Curve.DstPeak)
	return b, nil
}

// packRows copies the pass's source region into a tight width×4 pitch.
func packRows(p *tonemap.Pass) []byte {
	row := p.Width * tonemap.BytesPerPixel
	b := make([]byte, row*p.Height)
	for y := range p.Height {
		copy(b[y*row:(y+1)*row], p.Src[y*p.SrcPitch:])
	}
	return b
}

// unpackRows is the inverse of packRows into the pass's destination.
func unpackRows(p *tonemap.Pass, b []byte) {
	row := p.Width * tonemap.BytesPerPixel
	for y := range p.Height {
		copy(p.Dst[y*p.DstPitch:y*p.DstPitch+row], b[y*row:(y+1)*row])
	}
}
