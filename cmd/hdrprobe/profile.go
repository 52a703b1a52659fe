//go:build linux

package main

import (
	"fmt"
	"io"

	"github.com/gogpu/drmcolor/edid"
	"github.com/gogpu/drmcolor/hdr"
)

func printProfile(w io.Writer, p *edid.Profile) {
	fmt.Fprintf(w, "Display:       %v\n", p.Vendor)
	if p.Vendor.Serial != "" {
		fmt.Fprintf(w, "Serial:        %s\n", p.Vendor.Serial)
	}
	fmt.Fprintf(w, "Gamut:         %v\n", p.Gamut)
	fmt.Fprintf(w, "Colorimetry:   %v\n", p.Colorimetry)
	fmt.Fprintf(w, "Chromaticity:  R %s  G %s  B %s  W %s\n",
		xy(p.Primaries.Red), xy(p.Primaries.Green), xy(p.Primaries.Blue), xy(p.Primaries.White))

	if p.HDR == nil {
		fmt.Fprintln(w, "HDR:           no static metadata block (SDR)")
	} else {
		d := p.HDR
		fmt.Fprintf(w, "HDR EOTFs:     %v\n", d.EOTFs)
		fmt.Fprintf(w, "Max luminance: %s\n", nits(d.HasMaxLuminance, d.MaxLuminanceNits()))
		fmt.Fprintf(w, "Max average:   %s\n", nits(d.HasMaxFrameAverage, d.MaxFrameAverageNits()))
		fmt.Fprintf(w, "Min luminance: %s\n", nits(d.HasMinLuminance && d.HasMaxLuminance, d.MinLuminanceNits()))
	}
	for _, b := range p.Dynamic {
		fmt.Fprintf(w, "Dynamic HDR:   type %#04x version %d (%d payload bytes)\n", b.Type, b.Version, len(b.Payload))
	}
}

func xy(c hdr.XY) string {
	return fmt.Sprintf("(%.4f, %.4f)", c.X.Float(), c.Y.Float())
}

func nits(present bool, v float64) string {
	if !present {
		return "not declared"
	}
	return fmt.Sprintf("%.4g cd/m²", v)
}
