package color

import (
	"errors"
	"fmt"

	"github.com/gogpu/drmcolor/gamut"
)

// ErrInvalidSourceGamut is returned for a gamut conversion the colour policy
// does not define. DCI-P3 is an output-only gamut.
var ErrInvalidSourceGamut = errors.New("color: invalid source gamut")

// RGBToXYZ returns the matrix converting linear RGB in the colour space
// described by p to CIE XYZ, normalized so that RGB white maps to Y = 1.
//
// The primaries matrix P has the xyz of each primary as a column. Solving
// P·S = W for the white point's XYZ gives the per-channel scale S, and the
// result is P·diag(S).
func RGBToXYZ(p gamut.Primaries) (Mat3, error) {
	if p.White.Y == 0 {
		return Mat3{}, fmt.Errorf("color: white point has zero y")
	}
	prim := Mat3{
		{p.Red.X, p.Green.X, p.Blue.X},
		{p.Red.Y, p.Green.Y, p.Blue.Y},
		{1 - p.Red.X - p.Red.Y, 1 - p.Green.X - p.Green.Y, 1 - p.Blue.X - p.Blue.Y},
	}
	inv, err := prim.Inverse()
	if err != nil {
		return Mat3{}, err
	}
	w := Vec3{p.White.X / p.White.Y, 1, (1 - p.White.X - p.White.Y) / p.White.Y}
	return prim.Mul(Diag(inv.MulVec(w))), nil
}

// conversion is the kind of a (source, destination) gamut pair.
type conversion uint8

const (
	invalid conversion = iota
	identity
	convert
)

// conversions is indexed [source][destination]. Rows for DCI-P3 and Unknown
// stay invalid.
var conversions = func() (t [gamut.Count][gamut.Count]conversion) {
	for _, src := range [...]gamut.Gamut{gamut.Rec709, gamut.Rec2020} {
		for _, dst := range gamut.All {
			if src == dst {
				t[src][dst] = identity
			} else {
				t[src][dst] = convert
			}
		}
	}
	return t
}()

// GamutMatrix returns the matrix converting linear RGB in src to linear RGB
// in dst: inverse(RGBToXYZ(dst)) · RGBToXYZ(src).
func GamutMatrix(src, dst gamut.Gamut) (Mat3, error) {
	if !src.Valid() || !dst.Valid() {
		return Mat3{}, fmt.Errorf("%w: %v to %v", ErrInvalidSourceGamut, src, dst)
	}
	switch conversions[src][dst] {
	case identity:
		return Identity, nil
	case convert:
		return matrixBetween(src, dst)
	default:
		return Mat3{}, fmt.Errorf("%w: %v to %v", ErrInvalidSourceGamut, src, dst)
	}
}

// matrixBetween computes the conversion for any pair of known gamuts,
// ignoring policy.
func matrixBetween(src, dst gamut.Gamut) (Mat3, error) {
	sp, _ := src.Primaries()
	dp, _ := dst.Primaries()
	s, err := RGBToXYZ(sp)
	if err != nil {
		return Mat3{}, fmt.Errorf("color: %v to XYZ: %w", src, err)
	}
	d, err := RGBToXYZ(dp)
	if err != nil {
		return Mat3{}, fmt.Errorf("color: %v to XYZ: %w", dst, err)
	}
	dinv, err := d.Inverse()
	if err != nil {
		return Mat3{}, fmt.Errorf("color: XYZ to %v: %w", dst, err)
	}
	return dinv.Mul(s), nil
}
