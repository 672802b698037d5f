package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type Options struct {
	ApplicationName string
	/** @brief Instance extensions the window system needs, from platform.GetRequiredExtensionNames. */
	Extensions []string
	Debug      bool
}

/**
 * @brief Backend implements gpu.Device on top of a Vulkan 1.2 logical device.
 * It does not present: the renderer only needs resources, descriptor
 * tables and one-shot transfer submissions. Acceleration structures are
 * reported unsupported.
 */
type Backend struct {
	context  *VulkanContext
	features gpu.Features

	nextHandle uint64
	buffers    map[gpu.BufferHandle]*vulkanBuffer
	images     map[gpu.ImageHandle]*vulkanImage
	views      map[gpu.ViewHandle]vk.ImageView
	samplers   map[gpu.SamplerHandle]vk.Sampler
	tables     map[gpu.TableHandle]*vulkanTable
}

// New loads Vulkan through GLFW, which must already be initialised.
func New(opts Options) (*Backend, error) {
	if err := loadVulkan(); err != nil {
		return nil, err
	}

	b := &Backend{
		context:  &VulkanContext{Locks: NewVulkanLockPool()},
		buffers:  make(map[gpu.BufferHandle]*vulkanBuffer),
		images:   make(map[gpu.ImageHandle]*vulkanImage),
		views:    make(map[gpu.ViewHandle]vk.ImageView),
		samplers: make(map[gpu.SamplerHandle]vk.Sampler),
		tables:   make(map[gpu.TableHandle]*vulkanTable),
	}
	if err := createInstance(b.context, opts.ApplicationName, opts.Extensions, opts.Debug); err != nil {
		return nil, err
	}
	if err := DeviceCreate(b.context); err != nil {
		b.Destroy()
		return nil, err
	}

	limits := b.context.Device.Properties.Limits
	limits.Deref()
	b.features = deviceFeatures(b.context.Device, limits)
	core.LogInfo("Vulkan backend ready (bindless limit %d).", b.features.MaxBindlessTextures)
	return b, nil
}

/**
 * @brief Resolves what the backend exposes on top of the enabled device
 * features. Ray tracing and buffer device addresses stay off until the
 * bindings expose vkGetBufferDeviceAddress and the KHR acceleration entry
 * points.
 */
func deviceFeatures(device *VulkanDevice, limits vk.PhysicalDeviceLimits) gpu.Features {
	return gpu.Features{
		RayTracing:          false,
		BufferDeviceAddress: false,
		UpdateAfterBind:     device.DescriptorIndexing,
		MaxBindlessTextures: limits.MaxPerStageDescriptorSampledImages,
	}
}

func (b *Backend) Name() string { return "vulkan" }

func (b *Backend) Features() gpu.Features { return b.features }

func (b *Backend) handle() uint64 {
	b.nextHandle++
	return b.nextHandle
}

func (b *Backend) device() vk.Device {
	return b.context.Device.LogicalDevice
}

func (b *Backend) Submit(record func(enc gpu.CommandEncoder) error) error {
	device := b.context.Device
	var cb *VulkanCommandBuffer
	err := b.context.Locks.SafeCall(CommandPoolManagement, func() error {
		var err error
		cb, err = AllocateAndBeginSingleUse(b.context, device.GraphicsCommandPool)
		return err
	})
	if err != nil {
		return err
	}

	enc := &encoder{backend: b, cb: cb.Handle}
	if err := record(enc); err != nil {
		cb.Free(b.context, device.GraphicsCommandPool)
		return err
	}
	if enc.err != nil {
		cb.Free(b.context, device.GraphicsCommandPool)
		return enc.err
	}
	return cb.EndSingleUse(b.context, device.GraphicsCommandPool, device.GraphicsQueue, uint32(device.GraphicsQueueIndex))
}

func (b *Backend) WaitIdle() error {
	if b.context.Device == nil || b.context.Device.LogicalDevice == nil {
		return nil
	}
	if res := vk.DeviceWaitIdle(b.device()); res != vk.Success {
		return vulkanError("vkDeviceWaitIdle", res)
	}
	return nil
}

// Destroy releases anything still alive, then the device and the instance.
func (b *Backend) Destroy() {
	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		if err := b.WaitIdle(); err != nil {
			core.LogWarn("destroying backend without idle device: %s", err)
		}
		for h := range b.tables {
			b.DestroyTable(h)
		}
		for h := range b.samplers {
			b.DestroySampler(h)
		}
		for h := range b.views {
			b.DestroyView(h)
		}
		for h := range b.images {
			b.DestroyImage(h)
		}
		for h := range b.buffers {
			b.DestroyBuffer(h)
		}
		DeviceDestroy(b.context)
	}
	destroyInstance(b.context)
	core.LogInfo("Vulkan backend destroyed.")
}

func invalidHandle(kind string, h uint64) error {
	err := fmt.Errorf("%s %d: %w", kind, h, core.ErrInvalidHandle)
	core.LogError(err.Error())
	return err
}
