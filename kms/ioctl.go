//go:build linux

package kms

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Object types for OBJ_GETPROPERTIES.
const (
	ObjectCRTC      uint32 = 0xcccccccc
	ObjectConnector uint32 = 0xc0c0c0c0
	ObjectPlane     uint32 = 0xeeeeeeee
)

const (
	ioctlBase    = 'd'
	iocWrite     = 1
	iocReadWrite = 3

	// fbModifiers is DRM_MODE_FB_MODIFIERS.
	fbModifiers = 1 << 1
	propNameLen = 32
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | ioctlBase<<8 | nr
}

func iowr(nr, size uintptr) uintptr { return ioc(iocReadWrite, nr, size) }

type primeHandle struct {
	handle uint32
	flags  uint32
	fd     int32
}

type gemClose struct {
	handle uint32
	pad    uint32
}

type createBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type destroyBlob struct {
	blobID uint32
}

type getBlob struct {
	blobID uint32
	length uint32
	data   uint64
}

type fbCmd2 struct {
	fbID          uint32
	width, height uint32
	pixelFormat   uint32
	flags         uint32
	handles       [4]uint32
	pitches       [4]uint32
	offsets       [4]uint32
	modifier      [4]uint64
}

type objGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
}

type getProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [propNameLen]byte
	countValues    uint32
	countEnumBlobs uint32
}

var (
	ioctlGEMClose        = ioc(iocWrite, 0x09, unsafe.Sizeof(gemClose{}))
	ioctlPrimeHandleToFD = iowr(0x2d, unsafe.Sizeof(primeHandle{}))
	ioctlPrimeFDToHandle = iowr(0x2e, unsafe.Sizeof(primeHandle{}))
	ioctlModeGetProperty = iowr(0xaa, unsafe.Sizeof(getProperty{}))
	ioctlModeGetPropBlob = iowr(0xac, unsafe.Sizeof(getBlob{}))
	ioctlModeRmFB        = iowr(0xaf, unsafe.Sizeof(uint32(0)))
	ioctlModeAddFB2      = iowr(0xb8, unsafe.Sizeof(fbCmd2{}))
	ioctlModeObjGetProps = iowr(0xb9, unsafe.Sizeof(objGetProperties{}))
	ioctlModeCreateBlob  = iowr(0xbd, unsafe.Sizeof(createBlob{}))
	ioctlModeDestroyBlob = iowr(0xbe, unsafe.Sizeof(destroyBlob{}))
)

// ioctlFunc issues one request on a DRM file descriptor.
type ioctlFunc func(fd, req uintptr, arg unsafe.Pointer) error

// sysIoctl retries on EINTR and EAGAIN the way libdrm's drmIoctl does.
func sysIoctl(fd, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
		switch {
		case errno == 0:
			return nil
		case errno == unix.EINTR, errno == unix.EAGAIN:
			continue
		default:
			return errno
		}
	}
}

func ptr[T any](s []T) uint64 {
	if len(s) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&s[0])))
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
