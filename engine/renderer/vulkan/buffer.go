package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type vulkanBuffer struct {
	handle  vk.Buffer
	memory  vk.DeviceMemory
	desc    gpu.BufferDesc
	mapped  unsafe.Pointer
}

func bufferUsageFlags(usage gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage.Has(gpu.BufferUsageTransferSrc) {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if usage.Has(gpu.BufferUsageTransferDst) {
		flags |= vk.BufferUsageTransferDstBit
	}
	if usage.Has(gpu.BufferUsageUniform) {
		flags |= vk.BufferUsageUniformBufferBit
	}
	// acceleration inputs are read as storage until ray tracing is wired up
	if usage.Has(gpu.BufferUsageStorage) || usage.Has(gpu.BufferUsageAccelerationInput) || usage.Has(gpu.BufferUsageAccelerationStorage) {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage.Has(gpu.BufferUsageVertex) {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage.Has(gpu.BufferUsageIndex) {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage.Has(gpu.BufferUsageDeviceAddress) {
		flags |= vk.BufferUsageShaderDeviceAddressBit
	}
	return vk.BufferUsageFlags(flags)
}

func memoryPropertyFlags(location gpu.MemoryLocation) vk.MemoryPropertyFlagBits {
	if location == gpu.MemoryHostVisible {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

func (b *Backend) CreateBuffer(desc gpu.BufferDesc) (gpu.BufferHandle, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.Size),
		Usage:       bufferUsageFlags(desc.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	buf := &vulkanBuffer{desc: desc}
	if res := vk.CreateBuffer(b.device(), &bufferInfo, b.context.Allocator, &buf.handle); res != vk.Success {
		return 0, vulkanError("vkCreateBuffer", res)
	}

	var memReq vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device(), buf.handle, &memReq)
	memReq.Deref()

	memoryType := b.context.FindMemoryIndex(memReq.MemoryTypeBits, uint32(memoryPropertyFlags(desc.Memory)))
	if memoryType < 0 {
		vk.DestroyBuffer(b.device(), buf.handle, b.context.Allocator)
		return 0, vulkanError("buffer memory type lookup", vk.ErrorOutOfDeviceMemory)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if desc.Usage.Has(gpu.BufferUsageDeviceAddress) {
		allocInfo.PNext = unsafe.Pointer(&vk.MemoryAllocateFlagsInfo{
			SType: vk.StructureTypeMemoryAllocateFlagsInfo,
			Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
		})
	}
	if res := vk.AllocateMemory(b.device(), &allocInfo, b.context.Allocator, &buf.memory); res != vk.Success {
		vk.DestroyBuffer(b.device(), buf.handle, b.context.Allocator)
		return 0, vulkanError("vkAllocateMemory", res)
	}
	if res := vk.BindBufferMemory(b.device(), buf.handle, buf.memory, 0); res != vk.Success {
		vk.FreeMemory(b.device(), buf.memory, b.context.Allocator)
		vk.DestroyBuffer(b.device(), buf.handle, b.context.Allocator)
		return 0, vulkanError("vkBindBufferMemory", res)
	}

	h := gpu.BufferHandle(b.handle())
	b.buffers[h] = buf
	core.LogDebug("created buffer '%s' (%d bytes)", desc.Label, desc.Size)
	return h, nil
}

func (b *Backend) DestroyBuffer(h gpu.BufferHandle) {
	buf, ok := b.buffers[h]
	if !ok {
		return
	}
	if buf.mapped != nil {
		vk.UnmapMemory(b.device(), buf.memory)
	}
	vk.DestroyBuffer(b.device(), buf.handle, b.context.Allocator)
	vk.FreeMemory(b.device(), buf.memory, b.context.Allocator)
	delete(b.buffers, h)
}

func (b *Backend) MapBuffer(h gpu.BufferHandle) ([]byte, error) {
	buf, ok := b.buffers[h]
	if !ok {
		return nil, invalidHandle("buffer", uint64(h))
	}
	if buf.desc.Memory != gpu.MemoryHostVisible {
		return nil, invalidHandle("device-local buffer", uint64(h))
	}
	if buf.mapped == nil {
		var data unsafe.Pointer
		if res := vk.MapMemory(b.device(), buf.memory, 0, vk.DeviceSize(buf.desc.Size), 0, &data); res != vk.Success {
			return nil, vulkanError("vkMapMemory", res)
		}
		buf.mapped = data
	}
	return unsafe.Slice((*byte)(buf.mapped), buf.desc.Size), nil
}

func (b *Backend) UnmapBuffer(h gpu.BufferHandle) {
	buf, ok := b.buffers[h]
	if !ok || buf.mapped == nil {
		return
	}
	vk.UnmapMemory(b.device(), buf.memory)
	buf.mapped = nil
}

/**
 * @brief Always 0. github.com/goki/vulkan does not bind
 * vkGetBufferDeviceAddress, so the backend reports BufferDeviceAddress=false
 * and nothing reads buffers through addresses.
 */
func (b *Backend) BufferAddress(h gpu.BufferHandle) gpu.DeviceAddress { return 0 }

// VkBuffer exposes the native handle for pipeline binding.
func (b *Backend) VkBuffer(h gpu.BufferHandle) vk.Buffer {
	if buf, ok := b.buffers[h]; ok {
		return buf.handle
	}
	return vk.NullBuffer
}
