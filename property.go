package drmcolor

// Property names a KMS colour property the planner programs.
type Property string

// Colour properties. Plane properties follow the proposed per-plane colour
// pipeline; the CRTC and connector ones are upstream.
const (
	PropPlaneDegammaLUT   Property = "PLANE_DEGAMMA_LUT"
	PropPlaneCTM          Property = "PLANE_CTM"
	PropPlaneGammaLUT     Property = "PLANE_GAMMA_LUT"
	PropGammaLUT          Property = "GAMMA_LUT"
	PropHDROutputMetadata Property = "HDR_OUTPUT_METADATA"
)

// ObjectKind is the kind of mode object a property is attached to.
type ObjectKind uint8

// Mode object kinds.
const (
	ObjectPlane ObjectKind = iota
	ObjectCRTC
	ObjectConnector
)

// Object returns the kind of mode object p lives on.
func (p Property) Object() ObjectKind {
	switch p {
	case PropGammaLUT:
		return ObjectCRTC
	case PropHDROutputMetadata:
		return ObjectConnector
	}
	return ObjectPlane
}
