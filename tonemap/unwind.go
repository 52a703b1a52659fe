package tonemap

import (
	"errors"
	"fmt"
)

// unwindStack records how to release acquired resources, latest first.
type unwindStack struct {
	entries []unwindEntry
}

type unwindEntry struct {
	what    string
	release func() error
}

func (u *unwindStack) push(what string, release func() error) {
	u.entries = append(u.entries, unwindEntry{what, release})
}

// unwind releases everything in reverse order. Every release runs even if
// an earlier one fails.
func (u *unwindStack) unwind() error {
	var errs []error
	for i := len(u.entries) - 1; i >= 0; i-- {
		e := u.entries[i]
		if err := e.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", e.what, err))
		}
	}
	u.entries = nil
	return errors.Join(errs...)
}

// keep forgets the recorded releases. The resources now belong to the
// caller.
func (u *unwindStack) keep() { u.entries = nil }

func (u *unwindStack) len() int { return len(u.entries) }
