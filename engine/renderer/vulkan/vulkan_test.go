package vulkan

import (
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc"))
	assert.Equal(t, "abc\x00", VulkanSafeString("abc\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0], "input is left untouched")
}

func TestVulkanErrorTaxonomy(t *testing.T) {
	assert.NoError(t, vulkanError("op", vk.Success))
	assert.ErrorIs(t, vulkanError("op", vk.ErrorOutOfDeviceMemory), core.ErrOutOfDeviceMemory)
	assert.ErrorIs(t, vulkanError("op", vk.ErrorOutOfPoolMemory), core.ErrResourceExhausted)

	err := vulkanError("vkCreateDevice", vk.ErrorDeviceLost)
	assert.ErrorContains(t, err, "VK_ERROR_DEVICE_LOST")
	assert.NotErrorIs(t, err, core.ErrOutOfDeviceMemory)
}

func TestBufferUsageFlags(t *testing.T) {
	flags := bufferUsageFlags(gpu.BufferUsageStorage | gpu.BufferUsageDeviceAddress | gpu.BufferUsageTransferDst)
	assert.NotZero(t, flags&vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit))
	assert.NotZero(t, flags&vk.BufferUsageFlags(vk.BufferUsageShaderDeviceAddressBit))
	assert.NotZero(t, flags&vk.BufferUsageFlags(vk.BufferUsageTransferDstBit))
	assert.Zero(t, flags&vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))

	assert.NotZero(t, bufferUsageFlags(gpu.BufferUsageAccelerationInput)&vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit))
}

func TestImageTranslation(t *testing.T) {
	assert.Equal(t, vk.FormatR8g8b8a8Srgb, vulkanFormat(gpu.FormatRGBA8Srgb))
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, vulkanFormat(gpu.FormatRGBA8Unorm))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, vulkanLayout(gpu.ImageLayoutShaderReadOnly))
	assert.Equal(t, vk.ImageLayoutUndefined, vulkanLayout(gpu.ImageLayoutUndefined))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectMask(gpu.FormatD32Float))

	// mipmapped images are blit sources
	flags := imageUsageFlags(gpu.ImageUsageSampled|gpu.ImageUsageTransferDst, true)
	assert.NotZero(t, flags&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit))
	assert.Zero(t, imageUsageFlags(gpu.ImageUsageSampled, false)&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit))
}

func TestLockPoolSerialisesQueue(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error { counter++; return nil })
		}()
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(ResourceManagement, func() error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestDeviceFeaturesWithoutAddressQueries(t *testing.T) {
	device := &VulkanDevice{DescriptorIndexing: true, BufferDeviceAddress: true}
	features := deviceFeatures(device, vk.PhysicalDeviceLimits{MaxPerStageDescriptorSampledImages: 4096})

	assert.False(t, features.RayTracing)
	assert.False(t, features.BufferDeviceAddress, "addresses cannot be queried through the bindings")
	assert.True(t, features.UpdateAfterBind)
	assert.Equal(t, uint32(4096), features.MaxBindlessTextures)

	b := &Backend{buffers: map[gpu.BufferHandle]*vulkanBuffer{1: {}}}
	assert.Zero(t, b.BufferAddress(1))
}

func TestAccelerationBuildsAreUnsupported(t *testing.T) {
	b := &Backend{}
	_, err := b.BuildBottomLevel(gpu.BottomLevelDesc{Label: "blas"})
	assert.ErrorIs(t, err, core.ErrAccelerationUnsupported)
	_, err = b.BuildTopLevel(gpu.TopLevelDesc{Label: "tlas"})
	assert.ErrorIs(t, err, core.ErrAccelerationUnsupported)
}
