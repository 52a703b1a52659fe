// Package edid extracts colour capability from a display's EDID: base block
// chromaticities, the CTA-861 extension's colorimetry and HDR data blocks,
// and enough identification to tell monitors apart in logs.
//
// Parsing never fails. Anything the parser cannot make sense of degrades
// to an SDR Rec709 profile.
package edid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding/charmap"

	"github.com/gogpu/drmcolor/gamut"
	"github.com/gogpu/drmcolor/hdr"
)

// BlockSize is the size of the base block and of every extension block.
const BlockSize = 128

// CTA-861 tags.
const (
	ExtensionTagCTA = 0x02

	// TagExtended marks a data block whose first payload byte is an
	// extended tag.
	TagExtended = 7

	ExtTagColorimetry     = 0x05
	ExtTagStaticMetadata  = 0x06
	ExtTagDynamicMetadata = 0x07
)

var header = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// Colorimetry is the colorimetry data block bitmap. The low byte is the
// first payload byte as transmitted; DCI-P3 lives in the second byte.
type Colorimetry uint16

const (
	ColorimetryXvYCC601 Colorimetry = 1 << iota
	ColorimetryXvYCC709
	ColorimetrySYCC601
	ColorimetryOpYCC601
	ColorimetryOpRGB
	ColorimetryBT2020cYCC
	ColorimetryBT2020YCC
	ColorimetryBT2020RGB

	ColorimetryDCIP3 Colorimetry = 1 << 15
)

var colorimetryNames = []struct {
	bit  Colorimetry
	name string
}{
	{ColorimetryXvYCC601, "xvYCC601"},
	{ColorimetryXvYCC709, "xvYCC709"},
	{ColorimetrySYCC601, "sYCC601"},
	{ColorimetryOpYCC601, "opYCC601"},
	{ColorimetryOpRGB, "opRGB"},
	{ColorimetryBT2020cYCC, "BT2020cYCC"},
	{ColorimetryBT2020YCC, "BT2020YCC"},
	{ColorimetryBT2020RGB, "BT2020RGB"},
	{ColorimetryDCIP3, "DCI-P3"},
}

func (c Colorimetry) String() string {
	var b []byte
	for _, n := range colorimetryNames {
		if c&n.bit == 0 {
			continue
		}
		if len(b) > 0 {
			b = append(b, '|')
		}
		b = append(b, n.name...)
	}
	if len(b) == 0 {
		return "none"
	}
	return string(b)
}

// Gamut returns the widest gamut the bitmap advertises.
func (c Colorimetry) Gamut() gamut.Gamut {
	switch {
	case c&ColorimetryBT2020RGB != 0:
		return gamut.Rec2020
	case c&ColorimetryDCIP3 != 0:
		return gamut.DCIP3
	}
	return gamut.Rec709
}

// Vendor identifies a monitor.
type Vendor struct {
	// Manufacturer is the three-letter PNP id.
	Manufacturer string
	ProductCode  uint16
	SerialNumber uint32
	// Name and Serial come from the display descriptors, if present.
	Name   string
	Serial string
}

func (v Vendor) String() string {
	s := fmt.Sprintf("%s-%04x", v.Manufacturer, v.ProductCode)
	if v.Name != "" {
		s += " " + v.Name
	}
	return s
}

// Profile is the colour capability of a display.
type Profile struct {
	// Gamut is the widest supported gamut, never Unknown.
	Gamut       gamut.Gamut
	Colorimetry Colorimetry
	// HDR is nil for an SDR display.
	HDR *hdr.DisplayMetadata
	// Primaries are the base block chromaticities.
	Primaries hdr.Primaries
	Dynamic   hdr.DynamicMetadataBlocks
	Vendor    Vendor
}

// IsHDR reports whether the display declared static HDR metadata.
func (p *Profile) IsHDR() bool { return p != nil && p.HDR != nil }

// Parse decodes the colour capability of the EDID in b.
func Parse(b []byte) *Profile {
	p := &Profile{Gamut: gamut.Rec709}
	log := slogger()

	if len(b) < BlockSize {
		log.Debug("edid: short blob, assuming sRGB", slog.Int("len", len(b)))
		return p
	}
	base := b[:BlockSize]
	if !bytes.Equal(base[:len(header)], header) {
		log.Warn("edid: bad header, assuming sRGB")
		return p
	}
	if !checksumOK(base) {
		log.Warn("edid: base block checksum mismatch")
	}

	p.Primaries = chromaticity(base)
	p.Vendor = vendor(base)

	cta := findCTA(b)
	if cta == nil {
		log.Debug("edid: no CTA extension", slog.String("display", p.Vendor.String()))
		return p
	}
	if !checksumOK(cta) {
		log.Warn("edid: CTA block checksum mismatch")
	}

	if c := FindDataBlock(cta, TagExtended, ExtTagColorimetry); c != nil {
		p.Colorimetry = colorimetry(c)
		p.Gamut = p.Colorimetry.Gamut()
	}
	if s := FindDataBlock(cta, TagExtended, ExtTagStaticMetadata); s != nil {
		p.HDR = staticMetadata(s, p.Primaries)
	}
	if d := FindDataBlock(cta, TagExtended, ExtTagDynamicMetadata); d != nil {
		p.Dynamic = dynamicMetadata(d)
	}

	log.Debug("edid: parsed",
		slog.String("display", p.Vendor.String()),
		slog.String("gamut", p.Gamut.String()),
		slog.String("colorimetry", p.Colorimetry.String()),
		slog.Bool("hdr", p.HDR != nil),
		slog.Int("dynamic", len(p.Dynamic)))
	return p
}

func checksumOK(block []byte) bool {
	var sum byte
	for _, v := range block[:BlockSize] {
		sum += v
	}
	return sum == 0
}

// findCTA returns the first CTA extension block.
func findCTA(b []byte) []byte {
	n := int(b[0x7e])
	for i := 1; i <= n; i++ {
		off := i * BlockSize
		if off+BlockSize > len(b) {
			slogger().Debug("edid: truncated extension list",
				slog.Int("declared", n), slog.Int("present", i-1))
			break
		}
		if b[off] == ExtensionTagCTA {
			return b[off : off+BlockSize]
		}
	}
	return nil
}

// FindDataBlock walks the data block collection of a CTA extension block
// and returns the payload of the first block with the given tag. For
// TagExtended the extended tag must match too, and the returned payload
// starts after it. The result is nil when no such block exists.
func FindDataBlock(cta []byte, tag, extTag uint8) []byte {
	if len(cta) < 4 || cta[0] != ExtensionTagCTA {
		return nil
	}
	end := int(cta[2])
	if end > len(cta) {
		end = len(cta)
	}
	for i := 4; i < end; {
		h := cta[i]
		n := int(h & 0x1f)
		if i+1+n > end {
			return nil
		}
		payload := cta[i+1 : i+1+n]
		if h>>5 == tag {
			if tag != TagExtended {
				return payload
			}
			if n >= 1 && payload[0] == extTag {
				return payload[1:]
			}
		}
		i += 1 + n
	}
	return nil
}

// chromaticity reads the ten-bit primaries at 0x19..0x22. Byte 0x19 holds
// the two low bits of Rx Ry Gx Gy from the top down, 0x1a those of Bx By
// Wx Wy, and the following eight bytes the high bits in the same order.
func chromaticity(base []byte) hdr.Primaries {
	lo := [2]byte{base[0x19], base[0x1a]}
	hi := base[0x1b:0x23]
	coord := func(i int) hdr.Coord {
		shift := 6 - 2*uint(i%4)
		return hdr.Coord(uint16(hi[i])<<2 | uint16(lo[i/4]>>shift)&0x3)
	}
	return hdr.Primaries{
		Red:   hdr.XY{X: coord(0), Y: coord(1)},
		Green: hdr.XY{X: coord(2), Y: coord(3)},
		Blue:  hdr.XY{X: coord(4), Y: coord(5)},
		White: hdr.XY{X: coord(6), Y: coord(7)},
	}
}

func vendor(base []byte) Vendor {
	id := binary.BigEndian.Uint16(base[0x08:])
	v := Vendor{
		Manufacturer: string([]byte{
			pnpLetter(id >> 10),
			pnpLetter(id >> 5),
			pnpLetter(id),
		}),
		ProductCode:  binary.LittleEndian.Uint16(base[0x0a:]),
		SerialNumber: binary.LittleEndian.Uint32(base[0x0c:]),
	}
	for off := 0x36; off+18 <= 0x7e; off += 18 {
		d := base[off : off+18]
		// Display descriptors start with a zero pixel clock.
		if d[0] != 0 || d[1] != 0 {
			continue
		}
		switch d[3] {
		case 0xfc:
			v.Name = descriptorText(d[5:])
		case 0xff:
			v.Serial = descriptorText(d[5:])
		}
	}
	return v
}

func pnpLetter(v uint16) byte {
	v &= 0x1f
	if v < 1 || v > 26 {
		return '?'
	}
	return byte('A' + v - 1)
}

// descriptorText decodes a 13-byte descriptor string. The text ends at the
// first line feed and is padded with spaces.
func descriptorText(b []byte) string {
	if i := bytes.IndexByte(b, 0x0a); i >= 0 {
		b = b[:i]
	}
	b = bytes.TrimRight(b, " \x00")
	s, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func colorimetry(p []byte) Colorimetry {
	var c Colorimetry
	if len(p) >= 1 {
		c = Colorimetry(p[0])
	}
	if len(p) >= 2 && p[1]&0x80 != 0 {
		c |= ColorimetryDCIP3
	}
	return c
}

// staticMetadata decodes an HDR static metadata block. The luminance bytes
// are optional and read only when present.
func staticMetadata(p []byte, primaries hdr.Primaries) *hdr.DisplayMetadata {
	if len(p) < 2 {
		slogger().Debug("edid: static metadata block too short", slog.Int("len", len(p)))
		return nil
	}
	md := &hdr.DisplayMetadata{
		EOTFs:         hdr.EOTFSet(p[0] & 0x3f),
		MetadataTypes: p[1],
		Primaries:     primaries,
	}
	if len(p) > 2 {
		md.MaxLuminance, md.HasMaxLuminance = p[2], true
	}
	if len(p) > 3 {
		md.MaxFrameAverage, md.HasMaxFrameAverage = p[3], true
	}
	if len(p) > 4 {
		md.MinLuminance, md.HasMinLuminance = p[4], true
	}
	return md
}

// dynamicMetadata splits an HDR dynamic metadata block into descriptors.
// Each starts with the count of bytes that follow it, then a little-endian
// type and a version byte.
func dynamicMetadata(p []byte) hdr.DynamicMetadataBlocks {
	var blocks hdr.DynamicMetadataBlocks
	for len(p) > 0 {
		n := int(p[0])
		if n < 3 || 1+n > len(p) {
			slogger().Debug("edid: malformed dynamic metadata descriptor", slog.Int("len", n))
			break
		}
		blocks = append(blocks, hdr.DynamicBlock{
			Type:    binary.LittleEndian.Uint16(p[1:]),
			Version: p[3] & 0x0f,
			Payload: bytes.Clone(p[4 : 1+n]),
		})
		p = p[1+n:]
	}
	return blocks
}
