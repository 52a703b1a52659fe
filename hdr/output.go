package hdr

import (
	"encoding/binary"
	"math"
)

// OutputMetadata is the record sent to a connector's HDR_OUTPUT_METADATA
// property.
type OutputMetadata struct {
	StaticMetadata
	// Type is the infoframe descriptor type, MetadataTypeStatic1.
	Type uint8
}

// Negotiate combines content metadata with the display's declared
// capability into the record programmed on the connector.
//
// Each content luminance value is clamped to the display's corresponding
// value only when the display declares a non-zero one; otherwise the content
// value passes through. A nil content record describes the display itself,
// which is what SDR content mapped up to HDR is shown as. Primaries come from
// the content and fall back to the display.
func Negotiate(content *StaticMetadata, display *DisplayMetadata) OutputMetadata {
	var md StaticMetadata
	switch {
	case content != nil:
		md = *content
	case display != nil:
		md = *display.Static()
	}
	md.EOTF = EOTFSMPTEST2084

	if display != nil {
		maxNits := clampU16(display.MaxLuminanceNits())
		md.MaxCLL = clampNonZero(md.MaxCLL, maxNits)
		md.MaxMasteringLuminance = clampNonZero(md.MaxMasteringLuminance, maxNits)
		md.MaxFALL = clampNonZero(md.MaxFALL, clampU16(display.MaxFrameAverageNits()))
		if minLum := clampU16(display.MinLuminanceNits() * 10000); minLum != 0 && minLum > md.MinMasteringLuminance {
			md.MinMasteringLuminance = minLum
		}
		if md.Primaries.IsZero() {
			md.Primaries = display.Primaries
		}
	}
	return OutputMetadata{StaticMetadata: md, Type: MetadataTypeStatic1}
}

func clampNonZero(v, limit uint16) uint16 {
	if limit != 0 && v > limit {
		return limit
	}
	return v
}

// OutputMetadataSize is sizeof(struct hdr_output_metadata).
const OutputMetadataSize = 32

// MarshalBinary encodes m as struct hdr_output_metadata in native byte
// order: a u32 descriptor type followed by struct hdr_metadata_infoframe.
// Primaries are written red, green, blue in 0.00002 units.
func (m OutputMetadata) MarshalBinary() ([]byte, error) {
	b := make([]byte, OutputMetadataSize)
	ne := binary.NativeEndian
	ne.PutUint32(b[0:], uint32(m.Type))
	b[4] = uint8(m.EOTF)
	b[5] = m.Type
	off := 6
	for _, xy := range [...]XY{m.Primaries.Red, m.Primaries.Green, m.Primaries.Blue, m.Primaries.White} {
		ne.PutUint16(b[off:], xy.X.Fixed())
		ne.PutUint16(b[off+2:], xy.Y.Fixed())
		off += 4
	}
	ne.PutUint16(b[22:], m.MaxMasteringLuminance)
	ne.PutUint16(b[24:], m.MinMasteringLuminance)
	ne.PutUint16(b[26:], m.MaxCLL)
	ne.PutUint16(b[28:], m.MaxFALL)
	return b, nil
}

// LuminanceRange returns the min and max mastering luminance of m in cd/m².
func (m *StaticMetadata) LuminanceRange() (lo, hi float64) {
	return float64(m.MinMasteringLuminance) / 10000, float64(m.MaxMasteringLuminance)
}

// PeakNits is the brightest level the content claims to reach: MaxCLL when
// set, else the mastering peak, else fallback.
func (m *StaticMetadata) PeakNits(fallback float64) float64 {
	switch {
	case m == nil:
		return fallback
	case m.MaxCLL != 0:
		return float64(m.MaxCLL)
	case m.MaxMasteringLuminance != 0:
		return float64(m.MaxMasteringLuminance)
	}
	return math.Max(fallback, 0)
}
