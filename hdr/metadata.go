// Package hdr models static and dynamic HDR metadata as exchanged between
// content producers, EDID-declared display capability and the kernel.
package hdr

import (
	"math"

	"github.com/gogpu/drmcolor/gamut"
)

// Coord is a chromaticity coordinate stored as a 10-bit binary fraction,
// the encoding EDID uses for primaries and the white point.
type Coord uint16

// Fixed returns c in units of 0.00002, the scale of the HDR infoframe and
// of video-processing HDR10 metadata. See DecodeChromaticity.
func (c Coord) Fixed() uint16 { return DecodeChromaticity(uint16(c)) }

// Float returns c as a value in [0, 1).
func (c Coord) Float() float64 { return float64(c&0x3ff) / 1024 }

// CoordFromFloat quantizes f to the nearest 10-bit fraction.
func CoordFromFloat(f float64) Coord {
	v := math.Round(f * 1024)
	if v < 0 {
		v = 0
	}
	if v > 0x3ff {
		v = 0x3ff
	}
	return Coord(v)
}

// DecodeChromaticity converts a 10-bit binary fraction to the 0.00002 fixed
// point scale. Bit k of the value contributes 2^-(10-k), and the sum is
// scaled by 50000 and truncated.
func DecodeChromaticity(v uint16) uint16 {
	return uint16(uint32(v&0x3ff) * 50000 / 1024)
}

// XY is a chromaticity pair.
type XY struct {
	X, Y Coord
}

// Primaries holds red, green and blue primaries and the white point.
type Primaries struct {
	Red, Green, Blue, White XY
}

// IsZero reports whether no coordinate is set.
func (p Primaries) IsZero() bool { return p == Primaries{} }

// PrimariesOf quantizes the chromaticities of a known gamut.
func PrimariesOf(g gamut.Gamut) Primaries {
	p, ok := g.Primaries()
	if !ok {
		p, _ = gamut.Rec709.Primaries()
	}
	xy := func(c gamut.Chromaticity) XY {
		return XY{CoordFromFloat(c.X), CoordFromFloat(c.Y)}
	}
	return Primaries{Red: xy(p.Red), Green: xy(p.Green), Blue: xy(p.Blue), White: xy(p.White)}
}

// Metadata is HDR metadata attached to content: either a StaticMetadata
// record or a list of dynamic metadata blocks.
type Metadata interface {
	isMetadata()
}

// StaticMetadata is a CTA-861-G Static Metadata Type 1 descriptor.
type StaticMetadata struct {
	EOTF      EOTF
	Primaries Primaries
	// MaxMasteringLuminance is in cd/m².
	MaxMasteringLuminance uint16
	// MinMasteringLuminance is in units of 0.0001 cd/m².
	MinMasteringLuminance uint16
	// MaxCLL is the maximum content light level in cd/m².
	MaxCLL uint16
	// MaxFALL is the maximum frame-average light level in cd/m².
	MaxFALL uint16
}

func (StaticMetadata) isMetadata() {}

// DynamicBlock is one dynamic HDR metadata descriptor as advertised in the
// EDID or carried by content.
type DynamicBlock struct {
	Type    uint16
	Version uint8
	Payload []byte
}

// DynamicMetadataBlocks is frame-varying metadata. It is carried but never
// drives colour policy.
type DynamicMetadataBlocks []DynamicBlock

func (DynamicMetadataBlocks) isMetadata() {}

// ContentMetadata is what a surface producer declares about its pixels.
type ContentMetadata struct {
	// Colorspace is the declared source gamut. Unknown means Rec709.
	Colorspace gamut.Gamut
	// Metadata is nil for SDR content.
	Metadata Metadata
}

// Static returns the static metadata of c, if any. A nil receiver is SDR
// content.
func (c *ContentMetadata) Static() (*StaticMetadata, bool) {
	if c == nil {
		return nil, false
	}
	switch m := c.Metadata.(type) {
	case StaticMetadata:
		return &m, true
	case *StaticMetadata:
		return m, m != nil
	}
	return nil, false
}

// IsHDR reports whether c carries static HDR metadata.
func (c *ContentMetadata) IsHDR() bool {
	_, ok := c.Static()
	return ok
}

// Gamut returns the declared colorspace, resolving Unknown to Rec709.
func (c *ContentMetadata) Gamut() gamut.Gamut {
	if c == nil {
		return gamut.Rec709
	}
	return c.Colorspace.Resolve()
}
