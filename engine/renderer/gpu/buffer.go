package gpu

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
)

var ErrBufferRange = errors.New("buffer write out of range")

/**
 * @brief A device buffer and its memory. Device-local buffers are written
 * through a blocking staging copy; host-visible buffers through a mapping.
 */
type Buffer struct {
	ctx    *Context
	handle BufferHandle
	desc   BufferDesc
	// Non-nil while the buffer is mapped through Map.
	mapped []byte
}

func NewBuffer(ctx *Context, desc BufferDesc) (*Buffer, error) {
	if desc.Size == 0 {
		err := fmt.Errorf("buffer '%s' has zero size", desc.Label)
		core.LogError(err.Error())
		return nil, err
	}
	if desc.Label == "" {
		desc.Label = "buffer-" + uuid.NewString()
	}
	if desc.Memory == MemoryDeviceLocal {
		desc.Usage |= BufferUsageTransferDst
	}
	h, err := ctx.Device.CreateBuffer(desc)
	if err != nil {
		err = fmt.Errorf("failed to create buffer '%s' (%d bytes): %w", desc.Label, desc.Size, err)
		core.LogError(err.Error())
		return nil, err
	}
	return &Buffer{ctx: ctx, handle: h, desc: desc}, nil
}

func (b *Buffer) Handle() BufferHandle { return b.handle }
func (b *Buffer) Size() uint64         { return b.desc.Size }
func (b *Buffer) Usage() BufferUsage   { return b.desc.Usage }
func (b *Buffer) Label() string        { return b.desc.Label }
func (b *Buffer) Memory() MemoryLocation {
	return b.desc.Memory
}

// Address returns the buffer's device address, or 0 if it was created
// without BufferUsageDeviceAddress.
func (b *Buffer) Address() DeviceAddress {
	if !b.desc.Usage.Has(BufferUsageDeviceAddress) {
		return 0
	}
	return b.ctx.Device.BufferAddress(b.handle)
}

func (b *Buffer) Fill(data []byte) error {
	return b.FillAt(0, data)
}

/**
 * @brief Writes data at offset. For device-local memory this allocates a
 * staging buffer, submits a copy, waits for it and frees the staging buffer,
 * so it is meant for load time only.
 */
func (b *Buffer) FillAt(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	size := uint64(len(data))
	if offset+size > b.desc.Size {
		err := fmt.Errorf("%w: '%s' [%d, %d) exceeds %d bytes", ErrBufferRange, b.desc.Label, offset, offset+size, b.desc.Size)
		core.LogError(err.Error())
		return err
	}

	if b.desc.Memory == MemoryHostVisible {
		mem := b.mapped
		if mem == nil {
			m, err := b.ctx.Device.MapBuffer(b.handle)
			if err != nil {
				return err
			}
			defer b.ctx.Device.UnmapBuffer(b.handle)
			mem = m
		}
		copy(mem[offset:], data)
		return nil
	}

	staging, err := NewBuffer(b.ctx, BufferDesc{
		Size:   size,
		Usage:  BufferUsageTransferSrc,
		Memory: MemoryHostVisible,
		Label:  b.desc.Label + "-staging",
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()

	if err := staging.Fill(data); err != nil {
		return err
	}
	return b.ctx.Device.Submit(func(enc CommandEncoder) error {
		enc.CopyBuffer(staging.handle, b.handle, 0, offset, size)
		return nil
	})
}

// Map exposes the buffer memory until Unmap. Only host-visible buffers can be mapped.
func (b *Buffer) Map() ([]byte, error) {
	if b.mapped != nil {
		return b.mapped, nil
	}
	if b.desc.Memory != MemoryHostVisible {
		err := fmt.Errorf("buffer '%s' is device local and cannot be mapped", b.desc.Label)
		core.LogError(err.Error())
		return nil, err
	}
	m, err := b.ctx.Device.MapBuffer(b.handle)
	if err != nil {
		return nil, err
	}
	b.mapped = m
	return m, nil
}

func (b *Buffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.ctx.Device.UnmapBuffer(b.handle)
	b.mapped = nil
}

// Destroy releases the buffer and its memory. No in-flight work may reference it.
func (b *Buffer) Destroy() {
	if b.handle == 0 {
		return
	}
	b.Unmap()
	b.ctx.Device.DestroyBuffer(b.handle)
	b.handle = 0
}
