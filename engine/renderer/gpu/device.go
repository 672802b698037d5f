package gpu

/**
 * @brief Opaque resource handles. A device hands them out from a single
 * counter starting at 1 and never reuses them, so 0 is always invalid.
 */
type (
	BufferHandle  uint64
	ImageHandle   uint64
	ViewHandle    uint64
	SamplerHandle uint64
	TableHandle   uint64
	LayoutHandle  uint64
	SetHandle     uint64
	AccelHandle   uint64
)

/** @brief A GPU virtual address, as consumed by acceleration structure builds. */
type DeviceAddress uint64

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageVertex
	BufferUsageIndex
	/** @brief The buffer exposes a device address. */
	BufferUsageDeviceAddress
	/** @brief Read-only input to an acceleration structure build (geometry, instances, transforms). */
	BufferUsageAccelerationInput
	/** @brief Backing storage of an acceleration structure. */
	BufferUsageAccelerationStorage
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

type MemoryLocation int

const (
	/** @brief Device-local memory, written through a staging copy. */
	MemoryDeviceLocal MemoryLocation = iota
	/** @brief Host-visible, host-coherent memory, written through a mapping. */
	MemoryHostVisible
)

type BufferDesc struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryLocation
	Label  string
}

type Format int

const (
	FormatRGBA8Unorm Format = iota
	FormatRGBA8Srgb
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD32Float
)

// BytesPerPixel returns the texel size of f.
func (f Format) BytesPerPixel() uint32 {
	switch f {
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	default:
		return 4
	}
}

// Filterable8Bit reports whether f stores four 8 bit channels, which is what
// mip generation by blitting supports on every backend.
func (f Format) Filterable8Bit() bool {
	return f == FormatRGBA8Unorm || f == FormatRGBA8Srgb || f == FormatBGRA8Unorm
}

type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageTransferSrc
	ImageUsageTransferDst
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
)

type ImageLayout int

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutTransferDst
	ImageLayoutTransferSrc
	ImageLayoutShaderReadOnly
	ImageLayoutGeneral
)

type ImageDesc struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    Format
	Usage     ImageUsage
	Label     string
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type AddressMode int

const (
	AddressModeRepeat AddressMode = iota
	AddressModeClampToEdge
	AddressModeMirroredRepeat
)

type SamplerDesc struct {
	MinFilter     Filter
	MagFilter     Filter
	AddressMode   AddressMode
	MaxAnisotropy float32
	MaxLod        float32
	Label         string
}

/**
 * @brief A descriptor table is one unbounded array of combined image
 * samplers. It is created partially bound and update-after-bind so slots
 * can be written while earlier frames still read other slots.
 */
type TableDesc struct {
	Capacity uint32
	Label    string
}

type DescriptorWrite struct {
	Slot    uint32
	View    ViewHandle
	Sampler SamplerHandle
}

type Features struct {
	/** @brief The device can build and trace acceleration structures. */
	RayTracing bool
	/** @brief Buffers can expose device addresses. */
	BufferDeviceAddress bool
	/** @brief Descriptor tables support partially bound, update-after-bind arrays. */
	UpdateAfterBind bool
	/** @brief Upper bound of a descriptor table's capacity. */
	MaxBindlessTextures uint32
}

/**
 * @brief Triangle geometry for one bottom-level build. Addresses already
 * include the mesh's offsets into the shared buffers; positions are three
 * float32 at byte 0 of each vertex and indices are uint32, local to the mesh.
 */
type TriangleGeometry struct {
	VertexAddress DeviceAddress
	VertexStride  uint64
	/** @brief Highest vertex index referenced by the index data. */
	MaxVertex        uint32
	IndexAddress     DeviceAddress
	TriangleCount    uint32
	TransformAddress DeviceAddress
	Opaque           bool
}

type BottomLevelDesc struct {
	Geometry TriangleGeometry
	Label    string
}

type BuildMode int

const (
	/** @brief Build a new structure from scratch. */
	BuildModeBuild BuildMode = iota
	/** @brief Refit an existing structure in place, keeping its topology. */
	BuildModeUpdate
)

type TopLevelDesc struct {
	/** @brief Address of InstanceCount tightly packed AccelInstance records. */
	InstanceAddress DeviceAddress
	InstanceCount   uint32
	Mode            BuildMode
	/** @brief The structure to refit. Only read with BuildModeUpdate. */
	Src   AccelHandle
	Label string
}

/**
 * @brief Device is the explicit GPU API the renderer is written against.
 * Every call is made from the render thread.
 */
type Device interface {
	Name() string
	Features() Features

	CreateBuffer(desc BufferDesc) (BufferHandle, error)
	DestroyBuffer(h BufferHandle)
	/** @brief Maps a host-visible buffer. The slice is valid until UnmapBuffer. */
	MapBuffer(h BufferHandle) ([]byte, error)
	UnmapBuffer(h BufferHandle)
	BufferAddress(h BufferHandle) DeviceAddress

	CreateImage(desc ImageDesc) (ImageHandle, error)
	DestroyImage(h ImageHandle)
	CreateView(image ImageHandle) (ViewHandle, error)
	DestroyView(h ViewHandle)
	CreateSampler(desc SamplerDesc) (SamplerHandle, error)
	DestroySampler(h SamplerHandle)

	CreateTable(desc TableDesc) (TableHandle, error)
	DestroyTable(h TableHandle)
	/** @brief Applies every write as one batched descriptor update. */
	WriteTable(h TableHandle, writes []DescriptorWrite) error
	TableLayout(h TableHandle) LayoutHandle
	TableSet(h TableHandle) SetHandle

	/** @brief Records commands into a one-shot command buffer, submits it and waits for completion. */
	Submit(record func(enc CommandEncoder) error) error

	BuildBottomLevel(desc BottomLevelDesc) (AccelHandle, error)
	/** @brief Builds or refits a top-level structure. A refit returns desc.Src. */
	BuildTopLevel(desc TopLevelDesc) (AccelHandle, error)
	DestroyAccel(h AccelHandle)
	AccelAddress(h AccelHandle) DeviceAddress

	WaitIdle() error
	Destroy()
}

/** @brief Records transfer commands for a single submission. */
type CommandEncoder interface {
	CopyBuffer(src, dst BufferHandle, srcOffset, dstOffset, size uint64)
	/** @brief Copies tightly packed texels into one mip level. The level must be in ImageLayoutTransferDst. */
	CopyBufferToImage(src BufferHandle, dst ImageHandle, mip uint32)
	TransitionImage(image ImageHandle, from, to ImageLayout, baseMip, mipCount uint32)
	/** @brief Blits level 0 down the chain. Every level must be in ImageLayoutTransferDst and ends in ImageLayoutShaderReadOnly. */
	GenerateMips(image ImageHandle)
}
