package tonemap

import "fmt"

// Format is a DRM fourcc pixel format code.
type Format uint32

func fourcc(a, b, c, d byte) Format {
	return Format(a) | Format(b)<<8 | Format(c)<<16 | Format(d)<<24
}

// Pixel formats. Only the packed 2:10:10:10 RGB family can be tone mapped;
// the others are listed so callers can name what they hold.
var (
	FormatXRGB2101010 = fourcc('X', 'R', '3', '0')
	FormatARGB2101010 = fourcc('A', 'R', '3', '0')
	FormatXBGR2101010 = fourcc('X', 'B', '3', '0')
	FormatABGR2101010 = fourcc('A', 'B', '3', '0')

	FormatXRGB8888 = fourcc('X', 'R', '2', '4')
	FormatARGB8888 = fourcc('A', 'R', '2', '4')
	FormatNV12     = fourcc('N', 'V', '1', '2')
	FormatP010     = fourcc('P', '0', '1', '0')
)

// ModifierLinear is DRM_FORMAT_MOD_LINEAR.
const ModifierLinear uint64 = 0

// BytesPerPixel of every packed 2:10:10:10 format.
const BytesPerPixel = 4

// Is2101010 reports whether f is in the packed 2:10:10:10 RGB family.
func (f Format) Is2101010() bool {
	switch f {
	case FormatXRGB2101010, FormatARGB2101010, FormatXBGR2101010, FormatABGR2101010:
		return true
	}
	return false
}

// swapRB reports whether red occupies the low ten bits.
func (f Format) swapRB() bool {
	return f == FormatXBGR2101010 || f == FormatABGR2101010
}

func (f Format) String() string {
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("Format(0x%08x)", uint32(f))
		}
	}
	return string(b)
}

// Unpack splits a little-endian 2:10:10:10 pixel into 10-bit red, green
// and blue plus the 2-bit alpha.
func (f Format) Unpack(p uint32) (r, g, b, a uint32) {
	hi, mid, lo := p>>20&0x3ff, p>>10&0x3ff, p&0x3ff
	a = p >> 30
	if f.swapRB() {
		return lo, mid, hi, a
	}
	return hi, mid, lo, a
}

// Pack is the inverse of Unpack.
func (f Format) Pack(r, g, b, a uint32) uint32 {
	if f.swapRB() {
		r, b = b, r
	}
	return (a&0x3)<<30 | (r&0x3ff)<<20 | (g&0x3ff)<<10 | b&0x3ff
}
