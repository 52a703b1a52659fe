package color

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrAllocationFailure is returned when a lookup table cannot be allocated,
// including requests for a size outside [2, MaxLUTSize].
var ErrAllocationFailure = errors.New("color: lookup table allocation failed")

// MaxLUTSize bounds the number of entries in a generated table. Kernel
// colour pipelines expose at most a few thousand entries.
const MaxLUTSize = 4096

// Curve identifies the transfer function a LUT tabulates.
type Curve uint8

const (
	// CurvePQOETF maps linear light to PQ code values (display gamma).
	CurvePQOETF Curve = iota + 1
	// CurvePQEOTF maps PQ code values to linear light (degamma).
	CurvePQEOTF
	// CurveSRGBGamma maps linear light to sRGB code values.
	CurveSRGBGamma
	// CurveSRGBDegamma maps sRGB code values to linear light.
	CurveSRGBDegamma
)

func (c Curve) String() string {
	switch c {
	case CurvePQOETF:
		return "pq-oetf"
	case CurvePQEOTF:
		return "pq-eotf"
	case CurveSRGBGamma:
		return "srgb-gamma"
	case CurveSRGBDegamma:
		return "srgb-degamma"
	default:
		return fmt.Sprintf("Curve(%d)", uint8(c))
	}
}

func (c Curve) fn() func(float64) float64 {
	switch c {
	case CurvePQOETF:
		return PQInverseEOTF
	case CurvePQEOTF:
		return PQEOTF
	case CurveSRGBGamma:
		return SRGBEncode
	case CurveSRGBDegamma:
		return SRGBDecode
	}
	return nil
}

// LUT is a one-dimensional lookup table. Entry i holds the curve evaluated at
// i/(len-1), scaled to [0, Max]. The table is luma-only: when packed for the
// kernel the value is replicated into all three channels.
type LUT struct {
	Curve   Curve
	Max     uint16
	Entries []uint16
}

// Len returns the number of entries.
func (l LUT) Len() int { return len(l.Entries) }

// Generate tabulates c at size evenly spaced inputs scaled to maxCode.
func Generate(c Curve, size int, maxCode uint16) (LUT, error) {
	f := c.fn()
	if f == nil {
		return LUT{}, fmt.Errorf("color: unknown curve %v", c)
	}
	if size < 2 || size > MaxLUTSize {
		return LUT{}, fmt.Errorf("%w: %d entries for %v", ErrAllocationFailure, size, c)
	}
	entries := make([]uint16, size)
	m := float64(maxCode)
	last := float64(size - 1)
	for i := range entries {
		v := math.Floor(m*f(float64(i)/last) + 0.5)
		if v > m {
			v = m
		}
		//nolint:gosec // G115: v is clamped to [0, maxCode]
		entries[i] = uint16(v)
	}
	return LUT{Curve: c, Max: maxCode, Entries: entries}, nil
}

// PQOETFLUT tabulates the PQ inverse EOTF.
func PQOETFLUT(size int, maxCode uint16) (LUT, error) { return Generate(CurvePQOETF, size, maxCode) }

// PQEOTFLUT tabulates the PQ EOTF.
func PQEOTFLUT(size int, maxCode uint16) (LUT, error) { return Generate(CurvePQEOTF, size, maxCode) }

// SRGBGammaLUT tabulates sRGB encoding.
func SRGBGammaLUT(size int, maxCode uint16) (LUT, error) {
	return Generate(CurveSRGBGamma, size, maxCode)
}

// SRGBDegammaLUT tabulates sRGB decoding.
func SRGBDegammaLUT(size int, maxCode uint16) (LUT, error) {
	return Generate(CurveSRGBDegamma, size, maxCode)
}

// Decode10 holds normalized linear light for every 10-bit code value of a
// decoding curve. Pixel paths index it directly instead of calling math.Pow.
type Decode10 [1024]float32

var (
	pqDecode10 = sync.OnceValue(func() *Decode10 {
		return buildDecode10(PQEOTF)
	})
	srgbDecode10 = sync.OnceValue(func() *Decode10 {
		return buildDecode10(SRGBDecode)
	})
)

func buildDecode10(f func(float64) float64) *Decode10 {
	var t Decode10
	for i := range t {
		t[i] = float32(f(float64(i) / 1023))
	}
	return &t
}

// PQDecode10 returns the PQ EOTF table for 10-bit code values.
func PQDecode10() *Decode10 { return pqDecode10() }

// SRGBDecode10 returns the sRGB decode table for 10-bit code values.
func SRGBDecode10() *Decode10 { return srgbDecode10() }

// Encode10 quantizes f(v) for v in [0, 1] to a 10-bit code value.
func Encode10(f func(float64) float64, v float64) uint32 {
	//nolint:gosec // G115: f returns [0, 1]
	return uint32(math.Floor(f(clamp01(v))*1023 + 0.5))
}
