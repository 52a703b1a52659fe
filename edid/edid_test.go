package edid

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
)

// baseBlock returns a valid base block advertising Rec709-ish primaries,
// manufacturer "DEL", product 0xa0c1 and the monitor name "U2720Q".
func baseBlock(extensions int) []byte {
	b := make([]byte, BlockSize)
	copy(b, header)
	// D=4 E=5 L=12: 00100 00101 01100
	b[0x08], b[0x09] = 0x10, 0xac
	b[0x0a], b[0x0b] = 0xc1, 0xa0
	b[0x0c], b[0x0d], b[0x0e], b[0x0f] = 0x78, 0x56, 0x34, 0x12

	// Rx=0x28f Ry=0x152 Gx=0x133 Gy=0x266 Bx=0x099 By=0x03d Wx=0x140 Wy=0x151
	b[0x19] = 0b11_10_11_10
	b[0x1a] = 0b01_01_00_01
	copy(b[0x1b:], []byte{0xa3, 0x54, 0x4c, 0x99, 0x26, 0x0f, 0x50, 0x54})

	d := b[0x36:]
	d[3] = 0xfc
	copy(d[5:18], "U2720Q\n      ")
	d = b[0x36+18:]
	d[3] = 0xff
	copy(d[5:18], "ABC123\n      ")

	b[0x7e] = byte(extensions)
	fixChecksum(b)
	return b
}

func fixChecksum(block []byte) {
	var sum byte
	for _, v := range block[:BlockSize-1] {
		sum += v
	}
	block[BlockSize-1] = -sum
}

// ctaBlock builds a CTA extension containing the given data blocks.
func ctaBlock(dataBlocks ...[]byte) []byte {
	b := make([]byte, BlockSize)
	b[0] = ExtensionTagCTA
	b[1] = 3
	off := 4
	for _, db := range dataBlocks {
		off += copy(b[off:], db)
	}
	b[2] = byte(off)
	fixChecksum(b)
	return b
}

func extBlock(extTag byte, payload ...byte) []byte {
	return append([]byte{TagExtended<<5 | byte(len(payload)+1), extTag}, payload...)
}

func build(blocks ...[]byte) []byte {
	out := baseBlock(len(blocks))
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func TestParseShortOrBroken(t *testing.T) {
	for name, b := range map[string][]byte{
		"nil":        nil,
		"short":      make([]byte, 100),
		"bad header": make([]byte, BlockSize),
	} {
		t.Run(name, func(t *testing.T) {
			p := Parse(b)
			require.NotNil(t, p)
			assert.Equal(t, gamut.Rec709, p.Gamut)
			assert.Nil(t, p.HDR)
			assert.False(t, p.IsHDR())
		})
	}
}

func TestParseBaseBlock(t *testing.T) {
	p := Parse(baseBlock(0))

	want := hdr.Primaries{
		Red:   hdr.XY{X: 0x28f, Y: 0x152},
		Green: hdr.XY{X: 0x133, Y: 0x266},
		Blue:  hdr.XY{X: 0x099, Y: 0x03d},
		White: hdr.XY{X: 0x140, Y: 0x151},
	}
	if diff := cmp.Diff(want, p.Primaries); diff != "" {
		t.Errorf("primaries (-want +got):\n%s", diff)
	}
	wantVendor := Vendor{
		Manufacturer: "DEL",
		ProductCode:  0xa0c1,
		SerialNumber: 0x12345678,
		Name:         "U2720Q",
		Serial:       "ABC123",
	}
	if diff := cmp.Diff(wantVendor, p.Vendor); diff != "" {
		t.Errorf("vendor (-want +got):\n%s", diff)
	}
	assert.Equal(t, gamut.Rec709, p.Gamut)
	assert.Nil(t, p.HDR)

	// Red x 0x28f/1024 ≈ 0.640.
	assert.InDelta(t, 0.64, p.Primaries.Red.X.Float(), 1e-3)
}

func TestParseChecksumMismatchIsNotFatal(t *testing.T) {
	b := build(ctaBlock(extBlock(ExtTagColorimetry, 0x80, 0x00)))
	b[0x20]++
	p := Parse(b)
	assert.Equal(t, gamut.Rec2020, p.Gamut)
}

func TestParseColorimetryGamut(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    gamut.Gamut
		bits    Colorimetry
	}{
		{"bt2020 rgb", []byte{0x80, 0x00}, gamut.Rec2020, ColorimetryBT2020RGB},
		{"bt2020 rgb and p3", []byte{0xe0, 0x80}, gamut.Rec2020,
			ColorimetryBT2020RGB | ColorimetryBT2020YCC | ColorimetryBT2020cYCC | ColorimetryDCIP3},
		{"p3 only", []byte{0x40, 0x80}, gamut.DCIP3, ColorimetryBT2020YCC | ColorimetryDCIP3},
		{"xvycc only", []byte{0x03, 0x00}, gamut.Rec709, ColorimetryXvYCC601 | ColorimetryXvYCC709},
		{"one byte", []byte{0x80}, gamut.Rec2020, ColorimetryBT2020RGB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(build(ctaBlock(extBlock(ExtTagColorimetry, tt.payload...))))
			assert.Equal(t, tt.want, p.Gamut)
			assert.Equal(t, tt.bits, p.Colorimetry)
		})
	}
}

func TestParseNoExtension(t *testing.T) {
	p := Parse(baseBlock(0))
	assert.Equal(t, gamut.Rec709, p.Gamut)
	assert.Nil(t, p.HDR)

	// Declared but missing extension.
	p = Parse(baseBlock(1))
	assert.Equal(t, gamut.Rec709, p.Gamut)
}

func TestParseSkipsNonCTAExtension(t *testing.T) {
	other := make([]byte, BlockSize)
	other[0] = 0x70 // DisplayID
	fixChecksum(other)
	p := Parse(build(other, ctaBlock(extBlock(ExtTagColorimetry, 0x80, 0))))
	assert.Equal(t, gamut.Rec2020, p.Gamut)
}

func TestParseStaticMetadata(t *testing.T) {
	primaries := Parse(baseBlock(0)).Primaries
	tests := []struct {
		name    string
		payload []byte
		want    *hdr.DisplayMetadata
	}{
		{
			name:    "too short",
			payload: []byte{0x05},
			want:    nil,
		},
		{
			name:    "no luminance",
			payload: []byte{0x05, 0x01},
			want: &hdr.DisplayMetadata{
				EOTFs: hdr.EOTFSet(0x05), MetadataTypes: 1, Primaries: primaries,
			},
		},
		{
			name:    "max luminance only",
			payload: []byte{0x05, 0x01, 0x60},
			want: &hdr.DisplayMetadata{
				EOTFs: hdr.EOTFSet(0x05), MetadataTypes: 1, Primaries: primaries,
				MaxLuminance: 0x60, HasMaxLuminance: true,
			},
		},
		{
			name:    "all fields",
			payload: []byte{0xc5, 0x01, 0x60, 0x50, 0x10},
			want: &hdr.DisplayMetadata{
				EOTFs: hdr.EOTFSet(0x05), MetadataTypes: 1, Primaries: primaries,
				MaxLuminance: 0x60, HasMaxLuminance: true,
				MaxFrameAverage: 0x50, HasMaxFrameAverage: true,
				MinLuminance: 0x10, HasMinLuminance: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(build(ctaBlock(extBlock(ExtTagStaticMetadata, tt.payload...))))
			if diff := cmp.Diff(tt.want, p.HDR); diff != "" {
				t.Errorf("HDR (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStaticMetadataLuminance(t *testing.T) {
	p := Parse(build(ctaBlock(extBlock(ExtTagStaticMetadata, 0x04, 0x01, 0x60))))
	require.NotNil(t, p.HDR)
	assert.True(t, p.HDR.SupportsPQ())
	// 50 · 2^(96/32) = 400 cd/m².
	assert.InDelta(t, 400, p.HDR.MaxLuminanceNits(), 1e-9)
	assert.Zero(t, p.HDR.MaxFrameAverageNits())
	assert.Zero(t, p.HDR.MinLuminanceNits())
}

func TestParseDynamicMetadata(t *testing.T) {
	payload := []byte{
		5, 0x01, 0x00, 0x11, 0xaa, 0xbb, // type 1, version 1
		3, 0x04, 0x00, 0x02, // type 4, version 2, no payload
		9, 0x01, // truncated
	}
	p := Parse(build(ctaBlock(
		extBlock(ExtTagColorimetry, 0x80, 0x80),
		extBlock(ExtTagDynamicMetadata, payload...),
	)))
	want := hdr.DynamicMetadataBlocks{
		{Type: 1, Version: 1, Payload: []byte{0xaa, 0xbb}},
		{Type: 4, Version: 2, Payload: []byte{}},
	}
	if diff := cmp.Diff(want, p.Dynamic); diff != "" {
		t.Errorf("dynamic (-want +got):\n%s", diff)
	}
	assert.Nil(t, p.HDR)
}

func TestFindDataBlock(t *testing.T) {
	audio := []byte{1<<5 | 3, 0x09, 0x07, 0x07}
	video := []byte{2<<5 | 2, 0x10, 0x04}
	cta := ctaBlock(audio, video, extBlock(ExtTagColorimetry, 0x80, 0x00), extBlock(ExtTagStaticMetadata, 0x04, 0x01))

	assert.Equal(t, []byte{0x10, 0x04}, FindDataBlock(cta, 2, 0))
	assert.Equal(t, []byte{0x09, 0x07, 0x07}, FindDataBlock(cta, 1, 0))
	assert.Equal(t, []byte{0x04, 0x01}, FindDataBlock(cta, TagExtended, ExtTagStaticMetadata))
	assert.Nil(t, FindDataBlock(cta, TagExtended, ExtTagDynamicMetadata))
	assert.Nil(t, FindDataBlock(cta, 4, 0))

	// A length running past the DTD offset stops the walk.
	bad := ctaBlock([]byte{TagExtended<<5 | 31, ExtTagColorimetry, 0x80})
	assert.Nil(t, FindDataBlock(bad, TagExtended, ExtTagColorimetry))

	assert.Nil(t, FindDataBlock(nil, 1, 0))
	assert.Nil(t, FindDataBlock([]byte{0x70, 3, 8, 0, 0x23, 1, 2, 3}, 1, 0))
}

func TestColorimetryString(t *testing.T) {
	assert.Equal(t, "none", Colorimetry(0).String())
	assert.Equal(t, "BT2020RGB|DCI-P3", (ColorimetryBT2020RGB | ColorimetryDCIP3).String())
}
