package color

import "math"

// SMPTE ST 2084 constants.
const (
	pqM1 = 0.1593017578125
	pqM2 = 78.84375
	pqC1 = 0.8359375
	pqC2 = 18.8515625
	pqC3 = 18.6875
)

// PQMaxNits is the luminance represented by a normalized PQ value of 1.
const PQMaxNits = 10000

// PQEOTF converts a PQ-encoded signal in [0, 1] to normalized linear light,
// where 1 is PQMaxNits.
func PQEOTF(e float64) float64 {
	if e <= 0 {
		return 0
	}
	p := math.Pow(math.Min(e, 1), 1/pqM2)
	num := math.Max(p-pqC1, 0)
	return clamp01(math.Pow(num/(pqC2-pqC3*p), 1/pqM1))
}

// PQInverseEOTF converts normalized linear light in [0, 1] to a PQ signal.
func PQInverseEOTF(y float64) float64 {
	if y <= 0 {
		return 0
	}
	p := math.Pow(math.Min(y, 1), pqM1)
	return clamp01(math.Pow((pqC1+pqC2*p)/(1+pqC3*p), pqM2))
}

// SRGBDecode converts an sRGB-encoded value in [0, 1] to linear light.
func SRGBDecode(s float64) float64 {
	if s <= 0.04045 {
		return clamp01(s / 12.92)
	}
	return clamp01(math.Pow((s+0.055)/1.055, 2.4))
}

// SRGBEncode converts linear light in [0, 1] to an sRGB-encoded value.
func SRGBEncode(l float64) float64 {
	if l <= 0.0031308 {
		return clamp01(l * 12.92)
	}
	return clamp01(1.055*math.Pow(l, 1/2.4) - 0.055)
}

func clamp01(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v > 0:
		return v
	}
	// also catches NaN
	return 0
}
