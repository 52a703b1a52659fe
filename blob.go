package drmcolor

import (
	"bytes"
	"fmt"
)

// BlobInstaller creates and destroys kernel property blobs. *kms.Device
// implements it.
type BlobInstaller interface {
	CreateBlob(data []byte) (uint32, error)
	DestroyBlob(id uint32) error
}

// blobSlot owns the blob currently programmed for one property of one
// object. set and clear are the only code paths that touch the id, so at
// most one live blob exists per slot.
type blobSlot struct {
	prop Property
	id   uint32
	data []byte
}

// set installs data, destroying the previous blob first. Unchanged bytes
// keep the current blob.
func (s *blobSlot) set(inst BlobInstaller, data []byte) error {
	if s.id != 0 && bytes.Equal(s.data, data) {
		return nil
	}
	if err := s.clear(inst); err != nil {
		return err
	}
	id, err := inst.CreateBlob(data)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrBlobInstallFailure, s.prop, err)
	}
	s.id = id
	s.data = bytes.Clone(data)
	Logger().Debug("drmcolor: blob installed", "property", string(s.prop), "id", id)
	return nil
}

// clear destroys the current blob, if any. A failed destroy keeps the id so
// a later clear can retry it.
func (s *blobSlot) clear(inst BlobInstaller) error {
	if s.id == 0 {
		return nil
	}
	if err := inst.DestroyBlob(s.id); err != nil {
		return fmt.Errorf("%w: destroy %s blob %d: %w", ErrBlobInstallFailure, s.prop, s.id, err)
	}
	s.id = 0
	s.data = nil
	return nil
}
