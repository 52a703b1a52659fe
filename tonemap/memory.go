package tonemap

// Memory maps dma-buf file descriptors and allocates exportable memory.
// SystemMemory is the kernel implementation; tests substitute an in-memory
// one.
type Memory interface {
	// Map maps size bytes of fd read-write.
	Map(fd, size int) ([]byte, error)
	Unmap(b []byte) error
	// Alloc creates an anonymous shareable file of the given size.
	Alloc(name string, size int) (fd int, err error)
	Dup(fd int) (int, error)
	Close(fd int) error
}

// SystemMemory is Memory backed by mmap(2) and memfd_create(2).
type SystemMemory struct{}
