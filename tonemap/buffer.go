package tonemap

import "errors"

// NoFd marks a plane without a file descriptor.
const NoFd = -1

// Plane is one memory plane of a kernel buffer.
type Plane struct {
	// Fd is a dma-buf file descriptor, or NoFd.
	Fd int
	// Handle is a GEM handle on the KMS device, or 0.
	Handle uint32
	Stride uint32
	Offset uint32
}

// Buffer describes a kernel buffer by its dma-buf planes. Buffers returned
// by a tone-map invocation own their file descriptors and must be closed.
type Buffer struct {
	Width, Height int
	Format        Format
	Modifier      uint64
	Planes        [4]Plane
	NumPlanes     int

	mem Memory
}

// Size returns the byte size a linear single-plane 2:10:10:10 image of the
// buffer's dimensions occupies.
func (b *Buffer) Size() int { return b.Width * b.Height * BytesPerPixel }

// Close closes every distinct plane file descriptor and marks the planes
// NoFd. It is safe to call more than once.
func (b *Buffer) Close() error {
	if b == nil {
		return nil
	}
	mem := b.mem
	if mem == nil {
		mem = SystemMemory{}
	}
	var errs []error
	for i := range b.NumPlanes {
		fd := b.Planes[i].Fd
		if fd < 0 {
			continue
		}
		shared := false
		for j := range i {
			if b.Planes[j].Fd == fd {
				shared = true
			}
		}
		if !shared {
			errs = append(errs, mem.Close(fd))
		}
	}
	for i := range b.NumPlanes {
		b.Planes[i].Fd = NoFd
	}
	return errors.Join(errs...)
}
