// Package gamut defines the colour gamuts a display or a piece of content can
// declare, ordered by capability, together with their CIE 1931 xy primaries.
//
// The order matters: a display's widest gamut is the largest value it
// supports, and Unknown sorts below everything so that an undeclared gamut
// never wins a comparison.
package gamut

import "fmt"

// Gamut is an ordered colour capability tag.
type Gamut uint8

const (
	// Unknown means no gamut was declared.
	Unknown Gamut = iota
	// Rec709 is ITU-R BT.709, which shares its primaries with sRGB.
	Rec709
	// DCIP3 is DCI-P3 with the DCI white point.
	DCIP3
	// Rec2020 is ITU-R BT.2020.
	Rec2020

	count
)

// All lists every known gamut in capability order.
var All = [...]Gamut{Rec709, DCIP3, Rec2020}

// String returns the conventional name of the gamut.
func (g Gamut) String() string {
	switch g {
	case Unknown:
		return "Unknown"
	case Rec709:
		return "Rec709"
	case DCIP3:
		return "DCI-P3"
	case Rec2020:
		return "Rec2020"
	default:
		return fmt.Sprintf("Gamut(%d)", uint8(g))
	}
}

// Valid reports whether g names a concrete gamut.
func (g Gamut) Valid() bool {
	return g > Unknown && g < count
}

// Resolve maps Unknown and out-of-range values to Rec709, the safe default
// for both content and displays.
func (g Gamut) Resolve() Gamut {
	if !g.Valid() {
		return Rec709
	}
	return g
}

// Index returns g as a table index. Only meaningful when Valid is true or
// g is Unknown.
func (g Gamut) Index() int { return int(g) }

// Count is the number of table slots needed to index every Gamut value,
// including Unknown.
const Count = int(count)

// Chromaticity is a CIE 1931 xy coordinate.
type Chromaticity struct {
	X, Y float64
}

// Primaries holds the red, green and blue primaries and the white point of
// an RGB colour space.
type Primaries struct {
	Red, Green, Blue, White Chromaticity
}

// d65 is the CIE standard illuminant D65 white point.
var d65 = Chromaticity{0.3127, 0.3290}

var primaries = [count]Primaries{
	Rec709: {
		Red:   Chromaticity{0.640, 0.330},
		Green: Chromaticity{0.300, 0.600},
		Blue:  Chromaticity{0.150, 0.060},
		White: d65,
	},
	DCIP3: {
		Red:   Chromaticity{0.680, 0.320},
		Green: Chromaticity{0.265, 0.690},
		Blue:  Chromaticity{0.150, 0.060},
		White: Chromaticity{0.314, 0.351},
	},
	Rec2020: {
		Red:   Chromaticity{0.708, 0.292},
		Green: Chromaticity{0.170, 0.797},
		Blue:  Chromaticity{0.131, 0.046},
		White: d65,
	},
}

// Primaries returns the chromaticities of g. The second result is false for
// Unknown and out-of-range values.
func (g Gamut) Primaries() (Primaries, bool) {
	if !g.Valid() {
		return Primaries{}, false
	}
	return primaries[g], true
}
