// Package drmcolor plans the colour pipeline of a DRM/KMS output.
//
// # Overview
//
// Once per repaint the Planner looks at every plane of an output and the
// colour capability of the attached display (an [edid.Profile]) and decides:
//
//   - whether the plane's content must be converted to the display gamut,
//     which is programmed as a plane degamma LUT followed by a plane CTM;
//   - whether its luminance must be tone mapped, in which case a
//     [ToneMapper] produces a replacement buffer for this frame;
//   - the CRTC gamma LUT (PQ or sRGB) and the connector HDR_OUTPUT_METADATA
//     record.
//
// Kernel property blobs are owned by the persistent [Output] and [Plane]
// values. Installing a new value destroys the previous blob first, and
// identical payloads are not reinstalled. [Planner.Release] destroys every
// blob of an output at teardown.
//
// The planner never issues the atomic commit. It returns an
// [OutputColorState] with the blob ids and buffers the caller commits.
//
// # Quick Start
//
//	dev, err := kms.Open(kms.DefaultCardPath)
//	if err != nil {
//		log.Fatal(err)
//	}
//	raw, err := dev.ConnectorEDID(connectorID)
//	if err != nil {
//		log.Fatal(err)
//	}
//	profile := edid.Parse(raw)
//
//	planner := drmcolor.NewPlanner(dev)
//	state, err := planner.Plan(ctx, output, profile)
//
// # Tone Mapping
//
// Tone mapping runs through a [tonemap.Session], normally behind a
// [tonemap.Queue]. The CPU driver is always registered; importing
// github.com/gogpu/drmcolor/gpu adds a compute-shader driver:
//
//	import _ "github.com/gogpu/drmcolor/gpu"
//
// If no session can be created, configure the planner without a
// ToneMapper. Planes then keep their original buffers.
//
// # Logging
//
// The package is silent by default. [SetLogger] enables structured logging
// here and in the edid, tonemap and kms packages.
package drmcolor
