//go:build !linux

package tonemap

import "errors"

// Map implements Memory.
func (SystemMemory) Map(int, int) ([]byte, error) { return nil, errors.ErrUnsupported }

// Unmap implements Memory.
func (SystemMemory) Unmap([]byte) error { return errors.ErrUnsupported }

// Alloc implements Memory.
func (SystemMemory) Alloc(string, int) (int, error) { return NoFd, errors.ErrUnsupported }

// Dup implements Memory.
func (SystemMemory) Dup(int) (int, error) { return NoFd, errors.ErrUnsupported }

// Close implements Memory.
func (SystemMemory) Close(int) error { return errors.ErrUnsupported }
