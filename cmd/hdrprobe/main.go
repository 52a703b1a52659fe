//go:build linux

// Command hdrprobe decodes a display's EDID, prints its colour capability
// and the colour pipeline planned for a given kind of content, and can tone
// map a TIFF frame through a tone-map session.
//
// Usage:
//
//	hdrprobe -edid /sys/class/drm/card0-HDMI-A-1/edid -content hdr10
//	hdrprobe -card /dev/dri/card0 -connector 95
//	hdrprobe -edid monitor.bin -content hdr10 -in frame.tiff -out mapped.tiff
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/gogpu/drmcolor"
	"github.com/gogpu/drmcolor/edid"
	"github.com/gogpu/drmcolor/gamut"
	_ "github.com/gogpu/drmcolor/gpu" // register the "wgpu" tone-map driver
	"github.com/gogpu/drmcolor/hdr"
	"github.com/gogpu/drmcolor/kms"
	"github.com/gogpu/drmcolor/tonemap"
)

func main() {
	var (
		edidPath   = flag.String("edid", "", "EDID file (raw bytes, e.g. from sysfs)")
		card       = flag.String("card", kms.DefaultCardPath, "DRM card node used with -connector")
		connector  = flag.Uint("connector", 0, "read the EDID of this connector id through KMS")
		content    = flag.String("content", "sdr", "content kind: sdr or hdr10")
		colorspace = flag.String("colorspace", "rec709", "content colorspace: rec709, dci-p3 or rec2020")
		maxCLL     = flag.Uint("maxcll", 1000, "content MaxCLL in cd/m² for hdr10 content")
		maxFALL    = flag.Uint("maxfall", 400, "content MaxFALL in cd/m² for hdr10 content")
		input      = flag.String("in", "", "TIFF frame to tone map")
		output     = flag.String("out", "tonemapped.tiff", "output TIFF for -in")
		driver     = flag.String("driver", tonemap.SoftwareName, "tone-map driver: "+strings.Join(tonemap.Drivers(), ", "))
		verbose    = flag.Bool("v", false, "debug logging to stderr")
	)
	flag.Parse()

	if *verbose {
		drmcolor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	raw, err := readEDID(*edidPath, *card, uint32(*connector)) //nolint:gosec // connector ids are 32-bit
	if err != nil {
		log.Fatalf("read EDID: %v", err)
	}
	profile := edid.Parse(raw)
	printProfile(os.Stdout, profile)

	cm, err := contentMetadata(*content, *colorspace, uint16(*maxCLL), uint16(*maxFALL)) //nolint:gosec // flag range
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := planDryRun(ctx, os.Stdout, profile, cm); err != nil {
		log.Fatalf("plan: %v", err)
	}

	if *input == "" {
		return
	}
	mode := tonemap.SelectMode(cm.IsHDR(), profile.IsHDR())
	if mode == tonemap.ModeNone {
		log.Printf("SDR content on an SDR display needs no tone mapping; %s not written", *output)
		return
	}
	req := tonemap.Request{Mode: mode}
	req.Content, _ = cm.Static()
	if profile.HDR != nil {
		req.Target = profile.HDR.Static()
	}
	if err := toneMapTIFF(ctx, *driver, *input, *output, req); err != nil {
		log.Fatalf("tone map %s: %v", *input, err)
	}
	log.Printf("%v frame saved to %s", mode, *output)
}

func readEDID(path, card string, connector uint32) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	if connector == 0 {
		return nil, errors.New("need -edid or -connector")
	}
	dev, err := kms.Open(card)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dev.Close() }()
	return dev.ConnectorEDID(connector)
}

func contentMetadata(kind, colorspace string, maxCLL, maxFALL uint16) (*hdr.ContentMetadata, error) {
	var g gamut.Gamut
	switch strings.ToLower(colorspace) {
	case "rec709", "bt709", "srgb":
		g = gamut.Rec709
	case "dci-p3", "p3":
		g = gamut.DCIP3
	case "rec2020", "bt2020":
		g = gamut.Rec2020
	default:
		return nil, fmt.Errorf("unknown colorspace %q", colorspace)
	}
	cm := &hdr.ContentMetadata{Colorspace: g}
	switch strings.ToLower(kind) {
	case "sdr":
	case "hdr10", "hdr":
		cm.Metadata = hdr.StaticMetadata{
			EOTF:                  hdr.EOTFSMPTEST2084,
			Primaries:             hdr.PrimariesOf(g),
			MaxMasteringLuminance: maxCLL,
			MinMasteringLuminance: 50,
			MaxCLL:                maxCLL,
			MaxFALL:               maxFALL,
		}
	default:
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	return cm, nil
}

// dryRunInstaller hands out blob ids without a kernel and remembers sizes.
type dryRunInstaller struct {
	next  uint32
	sizes map[uint32]int
}

func (d *dryRunInstaller) CreateBlob(data []byte) (uint32, error) {
	d.next++
	d.sizes[d.next] = len(data)
	return d.next, nil
}

func (d *dryRunInstaller) DestroyBlob(id uint32) error {
	delete(d.sizes, id)
	return nil
}

func planDryRun(ctx context.Context, w io.Writer, profile *edid.Profile, cm *hdr.ContentMetadata) error {
	inst := &dryRunInstaller{sizes: map[uint32]int{}}
	planner := drmcolor.NewPlanner(inst)
	plane := drmcolor.NewPlane(1, drmcolor.PlaneTypePrimary)
	plane.View = &drmcolor.View{Content: cm}
	out := drmcolor.NewOutput(1, 1, plane)

	state, err := planner.Plan(ctx, out, profile)
	if err != nil {
		return err
	}
	defer func() { _ = planner.Release(out) }()

	blob := func(id uint32) string {
		if id == 0 {
			return "cleared"
		}
		return fmt.Sprintf("%d bytes", inst.sizes[id])
	}
	row := func(label string, value any) { fmt.Fprintf(w, "  %-21s %v\n", label+":", value) }
	ps := state.Planes[0]
	fmt.Fprintf(w, "\nPlan for %s content:\n", describeContent(cm))
	row("gamut", fmt.Sprintf("%v -> %v", ps.Content, ps.Target))
	row("tone mapping", ps.Mode)
	row(string(drmcolor.PropPlaneDegammaLUT), blob(ps.DegammaBlob))
	row(string(drmcolor.PropPlaneCTM), blob(ps.CTMBlob))
	row(string(drmcolor.PropGammaLUT), blob(state.GammaBlob))
	row(string(drmcolor.PropHDROutputMetadata), blob(state.MetadataBlob))
	row("output signal", fmt.Sprintf("primaries %d, transfer %d", state.Color.Primaries, state.Color.Transfer))
	if ps.Err != nil {
		row("plane error", ps.Err)
	}
	return nil
}

func describeContent(cm *hdr.ContentMetadata) string {
	if s, ok := cm.Static(); ok {
		return fmt.Sprintf("HDR10 %v (MaxCLL %d, MaxFALL %d)", cm.Gamut(), s.MaxCLL, s.MaxFALL)
	}
	return fmt.Sprintf("SDR %v", cm.Gamut())
}
