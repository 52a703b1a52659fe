package tonemap

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityUnsupported is returned when the driver lacks the video
	// processing entry point, the 10-bit RGB render target format or HDR
	// tone-mapping support.
	ErrCapabilityUnsupported = errors.New("tonemap: capability unsupported")

	// ErrUnsupportedFormat is returned for buffers outside the packed
	// 2:10:10:10 RGB family, buffers larger than the session maximum, and
	// requests with no tone-mapping mode.
	ErrUnsupportedFormat = errors.New("tonemap: unsupported format")

	// ErrToneMapFailed is at the root of every error returned by a failed
	// tone-map invocation.
	ErrToneMapFailed = errors.New("tonemap: tone mapping failed")

	// ErrSessionClosed is returned by calls on a closed session or queue.
	ErrSessionClosed = errors.New("tonemap: session closed")
)

// stepError wraps a failed invocation step so that both ErrToneMapFailed
// and the driver error stay matchable.
func stepError(step string, err error) error {
	return fmt.Errorf("tonemap: %s: %w: %w", step, ErrToneMapFailed, err)
}
