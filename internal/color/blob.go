package color

import (
	"encoding/binary"
	"math"
)

// LUTEntrySize is sizeof(struct drm_color_lut).
const LUTEntrySize = 8

// EncodeLUT packs l as an array of struct drm_color_lut
// {u16 red, green, blue, reserved} in native byte order. The single curve
// value is written to all three channels.
func EncodeLUT(l LUT) []byte {
	b := make([]byte, len(l.Entries)*LUTEntrySize)
	ne := binary.NativeEndian
	for i, v := range l.Entries {
		o := i * LUTEntrySize
		ne.PutUint16(b[o:], v)
		ne.PutUint16(b[o+2:], v)
		ne.PutUint16(b[o+4:], v)
	}
	return b
}

// CTMSize is sizeof(struct drm_color_ctm).
const CTMSize = 9 * 8

// EncodeCTM packs m as struct drm_color_ctm: nine S31.32 sign-magnitude
// values in row-major order.
func EncodeCTM(m Mat3) []byte {
	b := make([]byte, CTMSize)
	for i := range 3 {
		for j := range 3 {
			binary.NativeEndian.PutUint64(b[(i*3+j)*8:], FixedS3132(m[i][j]))
		}
	}
	return b
}

// FixedS3132 converts v to S31.32 sign-magnitude fixed point. Magnitudes
// beyond the representable range saturate.
func FixedS3132(v float64) uint64 {
	if math.IsNaN(v) {
		return 0
	}
	var sign uint64
	if v < 0 {
		sign = 1 << 63
		v = -v
	}
	const maxMag = 1<<63 - 1
	mag := math.Round(v * (1 << 32))
	if mag >= maxMag {
		return sign | maxMag
	}
	return sign | uint64(mag)
}
