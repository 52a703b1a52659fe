package hdr

import "strings"

// EOTF identifies an electro-optical transfer function as numbered by
// CTA-861-G (the bit position in the EDID static metadata block and the
// value carried in the HDR infoframe).
type EOTF uint8

const (
	EOTFTraditionalSDR EOTF = 0
	EOTFTraditionalHDR EOTF = 1
	EOTFSMPTEST2084    EOTF = 2
	EOTFHLG            EOTF = 3
)

func (e EOTF) String() string {
	switch e {
	case EOTFTraditionalSDR:
		return "SDR"
	case EOTFTraditionalHDR:
		return "HDR"
	case EOTFSMPTEST2084:
		return "ST2084"
	case EOTFHLG:
		return "HLG"
	default:
		return "reserved"
	}
}

// EOTFSet is the EOTF support bitmap of an EDID static metadata block.
// Only the low six bits are defined.
type EOTFSet uint8

// Has reports whether e is in the set.
func (s EOTFSet) Has(e EOTF) bool {
	return e < 6 && s&(1<<e) != 0
}

func (s EOTFSet) String() string {
	var names []string
	for e := EOTF(0); e < 6; e++ {
		if s.Has(e) {
			names = append(names, e.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Static metadata descriptor types.
const (
	// MetadataTypeStatic1 is Static Metadata Type 1, the only descriptor
	// defined by CTA-861-G. It is numbered 0 in the infoframe and bit 0 in
	// the EDID support bitmap.
	MetadataTypeStatic1 uint8 = 0
)
