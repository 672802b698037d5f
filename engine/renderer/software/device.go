package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

const (
	addressBase      uint64 = 0x1000_0000
	addressAlignment uint64 = 256

	DefaultMaxBindlessTextures uint32 = 1 << 16
)

type Options struct {
	/** @brief Total bytes the device may allocate. 0 means unlimited. */
	MemoryBudget uint64
	/** @brief Upper bound of a descriptor table's capacity. 0 selects DefaultMaxBindlessTextures. */
	MaxBindlessTextures uint32
	DisableRayTracing   bool
}

/**
 * @brief Counters for the work the device performed. Tests use them to
 * observe GPU-visible side effects.
 */
type Stats struct {
	Submits                uint64
	BufferCopies           uint64
	ImageCopies            uint64
	Transitions            uint64
	MipGenerations         uint64
	DescriptorWriteBatches uint64
	DescriptorWrites       uint64
	BottomLevelBuilds      uint64
	TopLevelBuilds         uint64
	TopLevelRefits         uint64
	LiveBuffers            int
	LiveImages             int
	LiveAccels             int
	BytesAllocated         uint64
}

type buffer struct {
	desc    gpu.BufferDesc
	data    []byte
	address uint64
	mapped  bool
}

type image struct {
	desc    gpu.ImageDesc
	levels  [][]byte
	layouts []gpu.ImageLayout
}

/**
 * @brief Device is a complete gpu.Device that keeps every resource in host
 * memory and executes commands at submission. Acceleration structures are
 * real BVHs and can be queried with TraceRay. It is not safe for concurrent use.
 */
type Device struct {
	opts        Options
	features    gpu.Features
	nextHandle  uint64
	nextAddress uint64
	used        uint64

	buffers  map[gpu.BufferHandle]*buffer
	images   map[gpu.ImageHandle]*image
	views    map[gpu.ViewHandle]gpu.ImageHandle
	samplers map[gpu.SamplerHandle]gpu.SamplerDesc
	tables   map[gpu.TableHandle]*table
	accels   map[gpu.AccelHandle]*accel

	stats Stats
}

func New(opts Options) *Device {
	if opts.MaxBindlessTextures == 0 {
		opts.MaxBindlessTextures = DefaultMaxBindlessTextures
	}
	return &Device{
		opts: opts,
		features: gpu.Features{
			RayTracing:          !opts.DisableRayTracing,
			BufferDeviceAddress: true,
			UpdateAfterBind:     true,
			MaxBindlessTextures: opts.MaxBindlessTextures,
		},
		nextAddress: addressBase,
		buffers:     make(map[gpu.BufferHandle]*buffer),
		images:      make(map[gpu.ImageHandle]*image),
		views:       make(map[gpu.ViewHandle]gpu.ImageHandle),
		samplers:    make(map[gpu.SamplerHandle]gpu.SamplerDesc),
		tables:      make(map[gpu.TableHandle]*table),
		accels:      make(map[gpu.AccelHandle]*accel),
	}
}

func (d *Device) Name() string { return "software" }

func (d *Device) Features() gpu.Features { return d.features }

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	s := d.stats
	s.LiveBuffers = len(d.buffers)
	s.LiveImages = len(d.images)
	s.LiveAccels = len(d.accels)
	s.BytesAllocated = d.used
	return s
}

func (d *Device) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) address(size uint64) uint64 {
	a := d.nextAddress
	d.nextAddress += (size + 2*addressAlignment - 1) / addressAlignment * addressAlignment
	return a
}

func (d *Device) allocate(size uint64, label string) error {
	if d.opts.MemoryBudget > 0 && d.used+size > d.opts.MemoryBudget {
		return fmt.Errorf("%w: '%s' needs %d bytes, %d of %d in use",
			core.ErrOutOfDeviceMemory, label, size, d.used, d.opts.MemoryBudget)
	}
	d.used += size
	return nil
}

func (d *Device) free(size uint64) {
	d.used -= min(size, d.used)
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, error) {
	if err := d.allocate(desc.Size, desc.Label); err != nil {
		return 0, err
	}
	h := gpu.BufferHandle(d.handle())
	d.buffers[h] = &buffer{
		desc:    desc,
		data:    make([]byte, desc.Size),
		address: d.address(desc.Size),
	}
	return h, nil
}

func (d *Device) DestroyBuffer(h gpu.BufferHandle) {
	b, ok := d.buffers[h]
	if !ok {
		return
	}
	d.free(b.desc.Size)
	delete(d.buffers, h)
}

func (d *Device) MapBuffer(h gpu.BufferHandle) ([]byte, error) {
	b, ok := d.buffers[h]
	if !ok {
		return nil, fmt.Errorf("map buffer %d: %w", h, core.ErrInvalidHandle)
	}
	if b.desc.Memory != gpu.MemoryHostVisible {
		return nil, fmt.Errorf("buffer '%s' is not host visible", b.desc.Label)
	}
	b.mapped = true
	return b.data, nil
}

func (d *Device) UnmapBuffer(h gpu.BufferHandle) {
	if b, ok := d.buffers[h]; ok {
		b.mapped = false
	}
}

func (d *Device) BufferAddress(h gpu.BufferHandle) gpu.DeviceAddress {
	b, ok := d.buffers[h]
	if !ok || !b.desc.Usage.Has(gpu.BufferUsageDeviceAddress) {
		return 0
	}
	return gpu.DeviceAddress(b.address)
}

// BufferData exposes a buffer's contents regardless of its memory location.
func (d *Device) BufferData(h gpu.BufferHandle) []byte {
	if b, ok := d.buffers[h]; ok {
		return b.data
	}
	return nil
}

// resolve returns size bytes starting at a device address.
func (d *Device) resolve(addr gpu.DeviceAddress, size uint64) ([]byte, error) {
	a := uint64(addr)
	for _, b := range d.buffers {
		if !b.desc.Usage.Has(gpu.BufferUsageDeviceAddress) {
			continue
		}
		if a >= b.address && a < b.address+b.desc.Size {
			off := a - b.address
			if off+size > b.desc.Size {
				return nil, fmt.Errorf("address range 0x%x+%d overruns buffer '%s'", a, size, b.desc.Label)
			}
			return b.data[off : off+size], nil
		}
	}
	return nil, fmt.Errorf("address 0x%x: %w", a, core.ErrInvalidHandle)
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	bpp := uint64(desc.Format.BytesPerPixel())
	img := &image{
		desc:    desc,
		levels:  make([][]byte, desc.MipLevels),
		layouts: make([]gpu.ImageLayout, desc.MipLevels),
	}
	var total uint64
	for level := range img.levels {
		w, h := mipExtent(desc.Width, desc.Height, uint32(level))
		img.levels[level] = make([]byte, uint64(w)*uint64(h)*bpp)
		total += uint64(len(img.levels[level]))
	}
	if err := d.allocate(total, desc.Label); err != nil {
		return 0, err
	}
	h := gpu.ImageHandle(d.handle())
	d.images[h] = img
	return h, nil
}

func (d *Device) DestroyImage(h gpu.ImageHandle) {
	img, ok := d.images[h]
	if !ok {
		return
	}
	for _, l := range img.levels {
		d.free(uint64(len(l)))
	}
	delete(d.images, h)
}

// ImageLevel exposes the texels of one mip level and its current layout.
func (d *Device) ImageLevel(h gpu.ImageHandle, level uint32) ([]byte, gpu.ImageLayout) {
	img, ok := d.images[h]
	if !ok || level >= uint32(len(img.levels)) {
		return nil, gpu.ImageLayoutUndefined
	}
	return img.levels[level], img.layouts[level]
}

func (d *Device) CreateView(image gpu.ImageHandle) (gpu.ViewHandle, error) {
	if _, ok := d.images[image]; !ok {
		return 0, fmt.Errorf("create view of image %d: %w", image, core.ErrInvalidHandle)
	}
	h := gpu.ViewHandle(d.handle())
	d.views[h] = image
	return h, nil
}

func (d *Device) DestroyView(h gpu.ViewHandle) {
	delete(d.views, h)
}

func (d *Device) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	h := gpu.SamplerHandle(d.handle())
	d.samplers[h] = desc
	return h, nil
}

func (d *Device) DestroySampler(h gpu.SamplerHandle) {
	delete(d.samplers, h)
}

func (d *Device) WaitIdle() error {
	return nil
}

func (d *Device) Destroy() {
	leaked := len(d.buffers) + len(d.images) + len(d.tables) + len(d.accels)
	if leaked > 0 {
		core.LogWarn("software device destroyed with %d live resources", leaked)
	}
	clear(d.buffers)
	clear(d.images)
	clear(d.views)
	clear(d.samplers)
	clear(d.tables)
	clear(d.accels)
	d.used = 0
}

func mipExtent(width, height, level uint32) (uint32, uint32) {
	return max(width>>level, 1), max(height>>level, 1)
}
