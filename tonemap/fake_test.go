package tonemap

import (
	"fmt"
	"sync"
)

// fakeMemory is an in-memory Memory. Dup'd descriptors share storage.
type fakeMemory struct {
	mu    sync.Mutex
	next  int
	files map[int]*fakeFile
	maps  int
}

type fakeFile struct{ data []byte }

func newFakeMemory() *fakeMemory {
	return &fakeMemory{next: 100, files: make(map[int]*fakeFile)}
}

func (m *fakeMemory) Map(fd, size int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fd]
	if !ok {
		return nil, fmt.Errorf("fake mmap: bad fd %d", fd)
	}
	if len(f.data) < size {
		return nil, fmt.Errorf("fake mmap: fd %d holds %d bytes, want %d", fd, len(f.data), size)
	}
	m.maps++
	return f.data[:size], nil
}

func (m *fakeMemory) Unmap([]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maps--
	return nil
}

func (m *fakeMemory) Alloc(_ string, size int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd := m.next
	m.next++
	m.files[fd] = &fakeFile{data: make([]byte, size)}
	return fd, nil
}

func (m *fakeMemory) Dup(fd int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[fd]
	if !ok {
		return NoFd, fmt.Errorf("fake dup: bad fd %d", fd)
	}
	nfd := m.next
	m.next++
	m.files[nfd] = f
	return nfd, nil
}

func (m *fakeMemory) Close(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fd]; !ok {
		return fmt.Errorf("fake close: bad fd %d", fd)
	}
	delete(m.files, fd)
	return nil
}

func (m *fakeMemory) open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func (m *fakeMemory) mapped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maps
}

func (m *fakeMemory) bytes(fd int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[fd].data
}

// fakeDriver records calls and fails the one named by failAt.
type fakeDriver struct {
	mem *fakeMemory

	failAt      string
	noVideoProc bool
	noRGB10     bool
	noCaps      bool
	onEnd       func()

	calls       []string
	nextID      uint32
	initialized bool
	objects     map[string]map[uint32]bool
	imported    []SurfaceDescriptor
	targets     []SurfaceID
	filters     []FilterParams
	pipelines   []PipelineParams
}

func newFakeDriver(mem *fakeMemory) *fakeDriver {
	return &fakeDriver{
		mem: mem,
		objects: map[string]map[uint32]bool{
			"config": {}, "context": {}, "surface": {}, "buffer": {},
		},
	}
}

func (d *fakeDriver) step(op string) error {
	d.calls = append(d.calls, op)
	if d.failAt == op {
		return fmt.Errorf("fake %s failure", op)
	}
	return nil
}

func (d *fakeDriver) add(kind string) uint32 {
	d.nextID++
	d.objects[kind][d.nextID] = true
	return d.nextID
}

func (d *fakeDriver) remove(kind string, id uint32) error {
	if !d.objects[kind][id] {
		return fmt.Errorf("fake: unknown %s %d", kind, id)
	}
	delete(d.objects[kind], id)
	return nil
}

func (d *fakeDriver) live(kind string) int { return len(d.objects[kind]) }

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Initialize(string) error {
	if err := d.step("Initialize"); err != nil {
		return err
	}
	d.initialized = true
	return nil
}

func (d *fakeDriver) Terminate() error {
	d.calls = append(d.calls, "Terminate")
	d.initialized = false
	return nil
}

func (d *fakeDriver) Entrypoints() ([]Entrypoint, error) {
	if err := d.step("Entrypoints"); err != nil {
		return nil, err
	}
	if d.noVideoProc {
		return []Entrypoint{EntrypointVLD}, nil
	}
	return []Entrypoint{EntrypointVLD, EntrypointVideoProc}, nil
}

func (d *fakeDriver) RTFormats(Entrypoint) (RTFormat, error) {
	if err := d.step("RTFormats"); err != nil {
		return 0, err
	}
	if d.noRGB10 {
		return RTFormatRGB32 | RTFormatYUV420, nil
	}
	return RTFormatRGB32 | RTFormatRGB32_10, nil
}

func (d *fakeDriver) CreateConfig(Entrypoint, RTFormat) (ConfigID, error) {
	if err := d.step("CreateConfig"); err != nil {
		return 0, err
	}
	return ConfigID(d.add("config")), nil
}

func (d *fakeDriver) DestroyConfig(id ConfigID) error {
	d.calls = append(d.calls, "DestroyConfig")
	return d.remove("config", uint32(id))
}

func (d *fakeDriver) CreateSurfaces(_ RTFormat, _, _, n int) ([]SurfaceID, error) {
	if err := d.step("CreateSurfaces"); err != nil {
		return nil, err
	}
	ids := make([]SurfaceID, n)
	for i := range ids {
		ids[i] = SurfaceID(d.add("surface"))
	}
	return ids, nil
}

func (d *fakeDriver) DestroySurfaces(ids ...SurfaceID) error {
	d.calls = append(d.calls, "DestroySurfaces")
	for _, id := range ids {
		if err := d.remove("surface", uint32(id)); err != nil {
			return err
		}
	}
	return nil
}

func (d *fakeDriver) CreateContext(ConfigID, int, int, []SurfaceID) (ContextID, error) {
	if err := d.step("CreateContext"); err != nil {
		return 0, err
	}
	return ContextID(d.add("context")), nil
}

func (d *fakeDriver) DestroyContext(id ContextID) error {
	d.calls = append(d.calls, "DestroyContext")
	return d.remove("context", uint32(id))
}

func (d *fakeDriver) ImportSurface(desc SurfaceDescriptor) (SurfaceID, error) {
	if err := d.step("ImportSurface"); err != nil {
		return 0, err
	}
	d.imported = append(d.imported, desc)
	return SurfaceID(d.add("surface")), nil
}

func (d *fakeDriver) ExportSurface(SurfaceID) (SurfaceDescriptor, error) {
	if err := d.step("ExportSurface"); err != nil {
		return SurfaceDescriptor{}, err
	}
	fd, err := d.mem.Alloc("export", 16)
	if err != nil {
		return SurfaceDescriptor{}, err
	}
	return SurfaceDescriptor{Fd: fd, Pitch: 64}, nil
}

func (d *fakeDriver) QueryToneMapCaps(ContextID) ([]ToneMapCap, error) {
	if err := d.step("QueryToneMapCaps"); err != nil {
		return nil, err
	}
	if d.noCaps {
		return nil, nil
	}
	return []ToneMapCap{{MetadataType: MetadataHDR10, Flags: ToneMapH2H | ToneMapH2S | ToneMapS2H}}, nil
}

func (d *fakeDriver) CreateFilterBuffer(_ ContextID, p FilterParams) (BufferID, error) {
	if err := d.step("CreateFilterBuffer"); err != nil {
		return 0, err
	}
	d.filters = append(d.filters, p)
	return BufferID(d.add("buffer")), nil
}

func (d *fakeDriver) CreatePipelineBuffer(_ ContextID, p PipelineParams) (BufferID, error) {
	if err := d.step("CreatePipelineBuffer"); err != nil {
		return 0, err
	}
	d.pipelines = append(d.pipelines, p)
	return BufferID(d.add("buffer")), nil
}

func (d *fakeDriver) DestroyBuffer(id BufferID) error {
	d.calls = append(d.calls, "DestroyBuffer")
	return d.remove("buffer", uint32(id))
}

func (d *fakeDriver) BeginPicture(_ ContextID, target SurfaceID) error {
	if err := d.step("BeginPicture"); err != nil {
		return err
	}
	d.targets = append(d.targets, target)
	return nil
}

func (d *fakeDriver) RenderPicture(ContextID, ...BufferID) error {
	return d.step("RenderPicture")
}

func (d *fakeDriver) EndPicture(ContextID) error {
	if d.onEnd != nil {
		d.onEnd()
	}
	return d.step("EndPicture")
}

func (d *fakeDriver) SyncSurface(SurfaceID) error {
	return d.step("SyncSurface")
}

// fakeExporter hands out fds from a fakeMemory for GEM handles.
type fakeExporter struct {
	mem     *fakeMemory
	handles []uint32
	fail    bool
}

func (e *fakeExporter) PrimeHandleToFD(handle uint32) (int, error) {
	if e.fail {
		return NoFd, fmt.Errorf("fake prime failure")
	}
	e.handles = append(e.handles, handle)
	return e.mem.Alloc("prime", 64*64*4)
}
