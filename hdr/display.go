package hdr

import "math"

// DisplayMetadata is the static HDR capability a display declares in its
// EDID. Luminance fields hold raw CTA-861-G code values; the Has flags tell
// whether the block was long enough to carry them. An absent field is 0.
type DisplayMetadata struct {
	EOTFs         EOTFSet
	MetadataTypes uint8

	MaxLuminance    uint8
	MaxFrameAverage uint8
	MinLuminance    uint8

	HasMaxLuminance    bool
	HasMaxFrameAverage bool
	HasMinLuminance    bool

	// Primaries are the display chromaticities from the EDID base block.
	Primaries Primaries
}

// ctaLuminance decodes a max luminance code value: 50 · 2^(cv/32) cd/m².
func ctaLuminance(cv uint8) float64 {
	return 50 * math.Pow(2, float64(cv)/32)
}

// MaxLuminanceNits returns the desired content max luminance in cd/m², or 0
// when not declared.
func (d *DisplayMetadata) MaxLuminanceNits() float64 {
	if d == nil || !d.HasMaxLuminance {
		return 0
	}
	return ctaLuminance(d.MaxLuminance)
}

// MaxFrameAverageNits returns the desired max frame-average luminance in
// cd/m², or 0 when not declared.
func (d *DisplayMetadata) MaxFrameAverageNits() float64 {
	if d == nil || !d.HasMaxFrameAverage {
		return 0
	}
	return ctaLuminance(d.MaxFrameAverage)
}

// MinLuminanceNits returns the desired content min luminance in cd/m².
// It is relative to the max luminance: max · (cv/255)² / 100.
func (d *DisplayMetadata) MinLuminanceNits() float64 {
	if d == nil || !d.HasMinLuminance || !d.HasMaxLuminance {
		return 0
	}
	r := float64(d.MinLuminance) / 255
	return d.MaxLuminanceNits() * r * r / 100
}

// SupportsPQ reports whether the display accepts SMPTE ST 2084 signals.
func (d *DisplayMetadata) SupportsPQ() bool {
	return d != nil && d.EOTFs.Has(EOTFSMPTEST2084)
}

// Static describes the display capability as a static metadata record, the
// shape tone-mapping targets and infoframes use.
func (d *DisplayMetadata) Static() *StaticMetadata {
	if d == nil {
		return nil
	}
	maxNits := clampU16(d.MaxLuminanceNits())
	return &StaticMetadata{
		EOTF:                  EOTFSMPTEST2084,
		Primaries:             d.Primaries,
		MaxMasteringLuminance: maxNits,
		MinMasteringLuminance: clampU16(d.MinLuminanceNits() * 10000),
		MaxCLL:                maxNits,
		MaxFALL:               clampU16(d.MaxFrameAverageNits()),
	}
}

func clampU16(v float64) uint16 {
	v = math.Round(v)
	switch {
	case v <= 0 || math.IsNaN(v):
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
