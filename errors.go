package drmcolor

import (
	"errors"

	"github.com/gogpu/drmcolor/internal/color"
	"github.com/gogpu/drmcolor/tonemap"
)

// ErrBlobInstallFailure is returned by Plan and Release when a property blob
// cannot be created or destroyed. It fails the whole output.
var ErrBlobInstallFailure = errors.New("drmcolor: blob install failed")

// Errors from sub-packages, re-exported so callers match them with
// errors.Is against a single import.
var (
	ErrCapabilityUnsupported = tonemap.ErrCapabilityUnsupported
	ErrUnsupportedFormat     = tonemap.ErrUnsupportedFormat
	ErrToneMapFailed         = tonemap.ErrToneMapFailed
	ErrSessionClosed         = tonemap.ErrSessionClosed
	ErrInvalidSourceGamut    = color.ErrInvalidSourceGamut
	ErrAllocationFailure     = color.ErrAllocationFailure
)
