//go:build linux

// Package kms talks to a DRM/KMS device node: property blobs, PRIME
// handle and fd conversion, framebuffer import and connector EDID readout.
//
// A Device satisfies the blob installer of the colour pipeline planner and
// the PRIME exporter of a tone-map session.
package kms

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gogpu/drmcolor/tonemap"
)

// DefaultCardPath is the first KMS card node.
const DefaultCardPath = "/dev/dri/card0"

var (
	// ErrNoEDID is returned when a connector has no EDID blob.
	ErrNoEDID = errors.New("kms: connector has no EDID")
	// ErrNoProperty is returned when an object lacks a named property.
	ErrNoProperty = errors.New("kms: property not found")
	// ErrClosed is returned by operations on a closed Device.
	ErrClosed = errors.New("kms: device closed")
)

// Device is an open DRM device node.
type Device struct {
	f     *os.File
	ioctl ioctlFunc
}

// Open opens the DRM node at path for reading and writing.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("kms: open %s: %w", path, err)
	}
	slogger().Info("kms: device opened", "path", path)
	return NewDevice(f), nil
}

// NewDevice wraps an already open DRM node. The Device owns f.
func NewDevice(f *os.File) *Device {
	return &Device{f: f, ioctl: sysIoctl}
}

// Close closes the device node.
func (d *Device) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) do(req uintptr, arg unsafe.Pointer) error {
	if d.f == nil {
		return ErrClosed
	}
	return d.ioctl(d.f.Fd(), req, arg)
}

// CreateBlob creates a property blob holding a copy of data.
func (d *Device) CreateBlob(data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, errors.New("kms: empty blob")
	}
	req := createBlob{data: ptr(data), length: uint32(len(data))} //nolint:gosec // blob payloads are small
	err := d.do(ioctlModeCreateBlob, unsafe.Pointer(&req))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, fmt.Errorf("kms: create blob (%d bytes): %w", len(data), err)
	}
	slogger().Debug("kms: blob created", "id", req.blobID, "size", len(data))
	return req.blobID, nil
}

// DestroyBlob destroys a property blob.
func (d *Device) DestroyBlob(id uint32) error {
	req := destroyBlob{blobID: id}
	if err := d.do(ioctlModeDestroyBlob, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("kms: destroy blob %d: %w", id, err)
	}
	slogger().Debug("kms: blob destroyed", "id", id)
	return nil
}

// Blob reads the payload of a property blob.
func (d *Device) Blob(id uint32) ([]byte, error) {
	req := getBlob{blobID: id}
	if err := d.do(ioctlModeGetPropBlob, unsafe.Pointer(&req)); err != nil {
		return nil, fmt.Errorf("kms: get blob %d: %w", id, err)
	}
	if req.length == 0 {
		return nil, nil
	}
	data := make([]byte, req.length)
	req.data = ptr(data)
	err := d.do(ioctlModeGetPropBlob, unsafe.Pointer(&req))
	runtime.KeepAlive(data)
	if err != nil {
		return nil, fmt.Errorf("kms: get blob %d: %w", id, err)
	}
	return data[:min(int(req.length), len(data))], nil
}

// PrimeHandleToFD exports a GEM handle as a dma-buf the caller owns.
func (d *Device) PrimeHandleToFD(handle uint32) (int, error) {
	req := primeHandle{handle: handle, flags: unix.O_CLOEXEC | unix.O_RDWR}
	if err := d.do(ioctlPrimeHandleToFD, unsafe.Pointer(&req)); err != nil {
		return tonemap.NoFd, fmt.Errorf("kms: export handle %d: %w", handle, err)
	}
	return int(req.fd), nil
}

// PrimeFDToHandle imports a dma-buf and returns its GEM handle on this
// device. The handle must be released with CloseHandle.
func (d *Device) PrimeFDToHandle(fd int) (uint32, error) {
	req := primeHandle{fd: int32(fd)} //nolint:gosec // file descriptors fit in int32
	if err := d.do(ioctlPrimeFDToHandle, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("kms: import fd %d: %w", fd, err)
	}
	return req.handle, nil
}

// CloseHandle releases a GEM handle.
func (d *Device) CloseHandle(handle uint32) error {
	req := gemClose{handle: handle}
	if err := d.do(ioctlGEMClose, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("kms: close handle %d: %w", handle, err)
	}
	return nil
}

// ImportFramebuffer creates a framebuffer for buf so it can be scanned out.
// Planes that carry only a dma-buf are imported first; handles created
// here are released once the framebuffer holds its own references.
func (d *Device) ImportFramebuffer(buf *tonemap.Buffer) (uint32, error) {
	if buf == nil || buf.NumPlanes < 1 || buf.NumPlanes > len(buf.Planes) {
		return 0, errors.New("kms: framebuffer needs 1 to 4 planes")
	}
	req := fbCmd2{
		width:       uint32(buf.Width),  //nolint:gosec // bounded by the mode size
		height:      uint32(buf.Height), //nolint:gosec // bounded by the mode size
		pixelFormat: uint32(buf.Format),
	}
	if buf.Modifier != 0 {
		req.flags = fbModifiers
	}

	var imported []uint32
	defer func() {
		for _, h := range imported {
			if err := d.CloseHandle(h); err != nil {
				slogger().Warn("kms: release imported handle", "handle", h, "err", err)
			}
		}
	}()

	for i := range buf.NumPlanes {
		p := buf.Planes[i]
		handle := p.Handle
		if handle == 0 {
			if p.Fd < 0 {
				return 0, fmt.Errorf("kms: plane %d has neither handle nor fd", i)
			}
			h, err := d.PrimeFDToHandle(p.Fd)
			if err != nil {
				return 0, err
			}
			imported = append(imported, h)
			handle = h
		}
		req.handles[i] = handle
		req.pitches[i] = p.Stride
		req.offsets[i] = p.Offset
		if buf.Modifier != 0 {
			req.modifier[i] = buf.Modifier
		}
	}

	if err := d.do(ioctlModeAddFB2, unsafe.Pointer(&req)); err != nil {
		return 0, fmt.Errorf("kms: add framebuffer %dx%d %v: %w", buf.Width, buf.Height, buf.Format, err)
	}
	slogger().Debug("kms: framebuffer added", "fb", req.fbID, "format", buf.Format.String())
	return req.fbID, nil
}

// RemoveFramebuffer removes a framebuffer created by ImportFramebuffer.
func (d *Device) RemoveFramebuffer(fb uint32) error {
	if err := d.do(ioctlModeRmFB, unsafe.Pointer(&fb)); err != nil {
		return fmt.Errorf("kms: remove framebuffer %d: %w", fb, err)
	}
	return nil
}

// Properties returns the property ids and current values of a mode object.
func (d *Device) Properties(objID, objType uint32) (ids []uint32, values []uint64, err error) {
	req := objGetProperties{objID: objID, objType: objType}
	if err := d.do(ioctlModeObjGetProps, unsafe.Pointer(&req)); err != nil {
		return nil, nil, fmt.Errorf("kms: properties of object %d: %w", objID, err)
	}
	if req.countProps == 0 {
		return nil, nil, nil
	}
	ids = make([]uint32, req.countProps)
	values = make([]uint64, req.countProps)
	req.propsPtr = ptr(ids)
	req.propValuesPtr = ptr(values)
	err = d.do(ioctlModeObjGetProps, unsafe.Pointer(&req))
	runtime.KeepAlive(ids)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, nil, fmt.Errorf("kms: properties of object %d: %w", objID, err)
	}
	n := min(int(req.countProps), len(ids))
	return ids[:n], values[:n], nil
}

// PropertyName returns the name of a property id.
func (d *Device) PropertyName(id uint32) (string, error) {
	req := getProperty{propID: id}
	if err := d.do(ioctlModeGetProperty, unsafe.Pointer(&req)); err != nil {
		return "", fmt.Errorf("kms: get property %d: %w", id, err)
	}
	return cstring(req.name[:]), nil
}

// FindProperty returns the id and current value of the property called name
// on a mode object.
func (d *Device) FindProperty(objID, objType uint32, name string) (id uint32, value uint64, err error) {
	ids, values, err := d.Properties(objID, objType)
	if err != nil {
		return 0, 0, err
	}
	for i, pid := range ids {
		n, err := d.PropertyName(pid)
		if err != nil {
			return 0, 0, err
		}
		if n == name {
			return pid, values[i], nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s on object %d", ErrNoProperty, name, objID)
}

// ConnectorEDID reads the EDID blob of a connector.
func (d *Device) ConnectorEDID(connector uint32) ([]byte, error) {
	_, blobID, err := d.FindProperty(connector, ObjectConnector, "EDID")
	if err != nil {
		if errors.Is(err, ErrNoProperty) {
			return nil, fmt.Errorf("%w: connector %d", ErrNoEDID, connector)
		}
		return nil, err
	}
	if blobID == 0 {
		return nil, fmt.Errorf("%w: connector %d", ErrNoEDID, connector)
	}
	return d.Blob(uint32(blobID)) //nolint:gosec // blob ids are 32-bit
}
