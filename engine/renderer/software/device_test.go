package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

func hostBuffer(t *testing.T, d *Device, data []byte) gpu.BufferHandle {
	t.Helper()
	h, err := d.CreateBuffer(gpu.BufferDesc{
		Size:   uint64(len(data)),
		Usage:  gpu.BufferUsageDeviceAddress | gpu.BufferUsageAccelerationInput,
		Memory: gpu.MemoryHostVisible,
		Label:  t.Name(),
	})
	require.NoError(t, err)
	mem, err := d.MapBuffer(h)
	require.NoError(t, err)
	copy(mem, data)
	d.UnmapBuffer(h)
	return h
}

func TestBufferAddressesDoNotOverlap(t *testing.T) {
	d := New(Options{})
	a := hostBuffer(t, d, make([]byte, 100))
	b := hostBuffer(t, d, make([]byte, 100))
	addrA, addrB := d.BufferAddress(a), d.BufferAddress(b)
	require.NotZero(t, addrA)
	assert.GreaterOrEqual(t, uint64(addrB), uint64(addrA)+100)

	mem, err := d.resolve(addrB+10, 20)
	require.NoError(t, err)
	assert.Len(t, mem, 20)

	_, err = d.resolve(addrA+90, 20)
	assert.Error(t, err)

	plain, err := d.CreateBuffer(gpu.BufferDesc{Size: 16, Memory: gpu.MemoryHostVisible})
	require.NoError(t, err)
	assert.Zero(t, d.BufferAddress(plain))
}

func TestMemoryBudget(t *testing.T) {
	d := New(Options{MemoryBudget: 1024})
	h, err := d.CreateBuffer(gpu.BufferDesc{Size: 1000})
	require.NoError(t, err)
	_, err = d.CreateBuffer(gpu.BufferDesc{Size: 100})
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)

	d.DestroyBuffer(h)
	_, err = d.CreateBuffer(gpu.BufferDesc{Size: 100})
	assert.NoError(t, err)
	assert.Equal(t, uint64(100), d.Stats().BytesAllocated)
}

func TestDeviceLocalBufferCannotBeMapped(t *testing.T) {
	d := New(Options{})
	h, err := d.CreateBuffer(gpu.BufferDesc{Size: 4, Memory: gpu.MemoryDeviceLocal})
	require.NoError(t, err)
	_, err = d.MapBuffer(h)
	assert.Error(t, err)
}

func TestCopyToImageRequiresTransferLayout(t *testing.T) {
	d := New(Options{})
	src := hostBuffer(t, d, make([]byte, 16))
	img, err := d.CreateImage(gpu.ImageDesc{Width: 2, Height: 2, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)

	err = d.Submit(func(enc gpu.CommandEncoder) error {
		enc.CopyBufferToImage(src, img, 0)
		return nil
	})
	assert.Error(t, err, "missing barrier must be reported")

	err = d.Submit(func(enc gpu.CommandEncoder) error {
		enc.TransitionImage(img, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst, 0, 1)
		enc.CopyBufferToImage(src, img, 0)
		enc.TransitionImage(img, gpu.ImageLayoutTransferDst, gpu.ImageLayoutShaderReadOnly, 0, 1)
		return nil
	})
	require.NoError(t, err)
	_, layout := d.ImageLevel(img, 0)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, layout)
}

func TestGenerateMipsAveragesTexels(t *testing.T) {
	d := New(Options{})
	pixels := []byte{
		0, 0, 0, 255, 100, 0, 0, 255,
		0, 200, 0, 255, 0, 0, 40, 255,
	}
	src := hostBuffer(t, d, pixels)
	img, err := d.CreateImage(gpu.ImageDesc{Width: 2, Height: 2, MipLevels: 2, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)

	err = d.Submit(func(enc gpu.CommandEncoder) error {
		enc.TransitionImage(img, gpu.ImageLayoutUndefined, gpu.ImageLayoutTransferDst, 0, 2)
		enc.CopyBufferToImage(src, img, 0)
		enc.GenerateMips(img)
		return nil
	})
	require.NoError(t, err)

	level, layout := d.ImageLevel(img, 1)
	assert.Equal(t, []byte{25, 50, 10, 255}, level)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, layout)
	assert.Equal(t, uint64(1), d.Stats().MipGenerations)
}

func TestWriteTableIsAllOrNothing(t *testing.T) {
	d := New(Options{})
	tbl, err := d.CreateTable(gpu.TableDesc{Capacity: 2})
	require.NoError(t, err)
	img, err := d.CreateImage(gpu.ImageDesc{Width: 1, Height: 1})
	require.NoError(t, err)
	view, err := d.CreateView(img)
	require.NoError(t, err)
	sampler, err := d.CreateSampler(gpu.SamplerDesc{})
	require.NoError(t, err)

	err = d.WriteTable(tbl, []gpu.DescriptorWrite{
		{Slot: 0, View: view, Sampler: sampler},
		{Slot: 2, View: view, Sampler: sampler},
	})
	assert.ErrorIs(t, err, core.ErrInvalidSlot)
	_, ok := d.Descriptor(tbl, 0)
	assert.False(t, ok)

	require.NoError(t, d.WriteTable(tbl, []gpu.DescriptorWrite{{Slot: 1, View: view, Sampler: sampler}}))
	got, ok := d.Descriptor(tbl, 1)
	require.True(t, ok)
	assert.Equal(t, view, got.View)
	assert.Equal(t, uint64(1), d.Stats().DescriptorWriteBatches)

	_, err = d.CreateTable(gpu.TableDesc{Capacity: DefaultMaxBindlessTextures + 1})
	assert.ErrorIs(t, err, core.ErrResourceExhausted)
}
