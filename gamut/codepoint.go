package gamut

// ColorPrimaries is an ITU-T H.273 colour primaries code point, as used by
// video processing APIs to describe surfaces.
type ColorPrimaries uint8

// H.273 colour primaries.
const (
	ColorPrimariesBT709  ColorPrimaries = 1
	ColorPrimariesBT2020 ColorPrimaries = 9
	ColorPrimariesP3DCI  ColorPrimaries = 11
)

// TransferCharacteristics is an ITU-T H.273 transfer characteristics code
// point.
type TransferCharacteristics uint8

// H.273 transfer characteristics.
const (
	TransferBT709     TransferCharacteristics = 1
	TransferSRGB      TransferCharacteristics = 13
	TransferSMPTE2084 TransferCharacteristics = 16
)

// CodePoint returns the H.273 primaries code point for g. Unknown reports
// BT.709.
func (g Gamut) CodePoint() ColorPrimaries {
	switch g {
	case DCIP3:
		return ColorPrimariesP3DCI
	case Rec2020:
		return ColorPrimariesBT2020
	default:
		return ColorPrimariesBT709
	}
}

// Gamut maps a primaries code point back to a Gamut. Unlisted code points
// report Unknown.
func (p ColorPrimaries) Gamut() Gamut {
	switch p {
	case ColorPrimariesBT709:
		return Rec709
	case ColorPrimariesP3DCI:
		return DCIP3
	case ColorPrimariesBT2020:
		return Rec2020
	}
	return Unknown
}
