package tonemap

import (
	"fmt"

	"github.com/gogpu/drmcolor/hdr"
)

// Mode is a luminance mapping case.
type Mode uint8

const (
	// ModeNone means no tone mapping: SDR content on an SDR display.
	ModeNone Mode = iota
	// ModeH2H maps HDR content to an HDR display's range.
	ModeH2H
	// ModeH2S maps HDR content down to SDR.
	ModeH2S
	// ModeS2H expands SDR content into an HDR signal.
	ModeS2H
)

// modes is indexed by [content HDR][display HDR].
var modes = [2][2]Mode{
	{ModeNone, ModeS2H},
	{ModeH2S, ModeH2H},
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SelectMode returns the mode for content and display HDR capability.
func SelectMode(contentHDR, displayHDR bool) Mode {
	return modes[b2i(contentHDR)][b2i(displayHDR)]
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeH2H:
		return "H2H"
	case ModeH2S:
		return "H2S"
	case ModeS2H:
		return "S2H"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// InputHDR reports whether the mode consumes HDR content.
func (m Mode) InputHDR() bool { return m == ModeH2H || m == ModeH2S }

// OutputHDR reports whether the mode produces an HDR signal.
func (m Mode) OutputHDR() bool { return m == ModeH2H || m == ModeS2H }

func (m Mode) flag() ToneMapFlags {
	switch m {
	case ModeH2H:
		return ToneMapH2H
	case ModeH2S:
		return ToneMapH2S
	case ModeS2H:
		return ToneMapS2H
	}
	return 0
}

// Request asks for one buffer to be tone mapped.
type Request struct {
	Mode Mode
	// Content is the content's static metadata. Required when the mode
	// consumes HDR.
	Content *hdr.StaticMetadata
	// Target describes the display. Required when the mode produces HDR.
	Target *hdr.StaticMetadata
}

func (r Request) validate() error {
	if r.Mode == ModeNone || r.Mode > ModeS2H {
		return fmt.Errorf("%w: mode %v", ErrUnsupportedFormat, r.Mode)
	}
	if r.Mode.InputHDR() && r.Content == nil {
		return fmt.Errorf("tonemap: %v without content metadata: %w", r.Mode, ErrToneMapFailed)
	}
	if r.Mode.OutputHDR() && r.Target == nil {
		return fmt.Errorf("tonemap: %v without target metadata: %w", r.Mode, ErrToneMapFailed)
	}
	return nil
}
