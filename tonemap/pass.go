package tonemap

import (
	"math"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/internal/color"
)

// Curve parameterizes the per-pixel conversion of one picture.
//
// A pixel is decoded with the Input transfer and scaled to cd/m² by
// InputScale, converted by Matrix when Convert is set, range-compressed by
// Compress on its largest component, then divided by OutputScale and
// encoded with the Output transfer.
type Curve struct {
	Input, Output gamut.TransferCharacteristics

	// InputScale and OutputScale are the luminance of a signal value of 1.
	InputScale, OutputScale float64

	Matrix  color.Mat3
	Convert bool

	SrcPeak, DstPeak float64
}

// Compress maps luminance in [0, SrcPeak] into [0, DstPeak] with an
// extended Reinhard curve that reaches DstPeak exactly at SrcPeak. Levels
// already in range pass through.
func (c *Curve) Compress(nits float64) float64 {
	if c.SrcPeak <= c.DstPeak {
		return math.Min(nits, c.DstPeak)
	}
	l := nits / c.DstPeak
	lw := c.SrcPeak / c.DstPeak
	return c.DstPeak * l * (1 + l/(lw*lw)) / (1 + l)
}

// Pass is the pixel work of one picture. Src and Dst start at the first
// pixel of their regions; rows are SrcPitch and DstPitch bytes apart.
type Pass struct {
	Format        Format
	Width, Height int

	Src      []byte
	SrcPitch int
	Dst      []byte
	DstPitch int

	Curve Curve
}

// PixelPass runs passes somewhere other than the CPU. A pass that fails is
// redone on the CPU.
type PixelPass interface {
	Run(p *Pass) error
}
