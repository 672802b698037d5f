package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type vulkanImage struct {
	handle vk.Image
	memory vk.DeviceMemory
	desc   gpu.ImageDesc
	format vk.Format
}

func vulkanFormat(format gpu.Format) vk.Format {
	switch format {
	case gpu.FormatRGBA8Srgb:
		return vk.FormatR8g8b8a8Srgb
	case gpu.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case gpu.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat
	default:
		return vk.FormatR8g8b8a8Unorm
	}
}

func vulkanLayout(layout gpu.ImageLayout) vk.ImageLayout {
	switch layout {
	case gpu.ImageLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.ImageLayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	default:
		return vk.ImageLayoutUndefined
	}
}

func imageUsageFlags(usage gpu.ImageUsage, mipmapped bool) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usage&gpu.ImageUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if usage&gpu.ImageUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if usage&gpu.ImageUsageTransferSrc != 0 || mipmapped {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if usage&gpu.ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	if usage&gpu.ImageUsageColorAttachment != 0 {
		flags |= vk.ImageUsageColorAttachmentBit
	}
	if usage&gpu.ImageUsageDepthAttachment != 0 {
		flags |= vk.ImageUsageDepthStencilAttachmentBit
	}
	return vk.ImageUsageFlags(flags)
}

func aspectMask(format gpu.Format) vk.ImageAspectFlags {
	if format == gpu.FormatD32Float {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (b *Backend) CreateImage(desc gpu.ImageDesc) (gpu.ImageHandle, error) {
	img := &vulkanImage{desc: desc, format: vulkanFormat(desc.Format)}
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     max(desc.MipLevels, 1),
		ArrayLayers:   1,
		Format:        img.format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         imageUsageFlags(desc.Usage, desc.MipLevels > 1),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(b.device(), &createInfo, b.context.Allocator, &img.handle); res != vk.Success {
		return 0, vulkanError("vkCreateImage", res)
	}

	var memReq vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device(), img.handle, &memReq)
	memReq.Deref()

	memoryType := b.context.FindMemoryIndex(memReq.MemoryTypeBits, uint32(vk.MemoryPropertyDeviceLocalBit))
	if memoryType < 0 {
		vk.DestroyImage(b.device(), img.handle, b.context.Allocator)
		return 0, vulkanError("image memory type lookup", vk.ErrorOutOfDeviceMemory)
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReq.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	if res := vk.AllocateMemory(b.device(), &allocInfo, b.context.Allocator, &img.memory); res != vk.Success {
		vk.DestroyImage(b.device(), img.handle, b.context.Allocator)
		return 0, vulkanError("vkAllocateMemory", res)
	}
	if res := vk.BindImageMemory(b.device(), img.handle, img.memory, 0); res != vk.Success {
		vk.FreeMemory(b.device(), img.memory, b.context.Allocator)
		vk.DestroyImage(b.device(), img.handle, b.context.Allocator)
		return 0, vulkanError("vkBindImageMemory", res)
	}

	h := gpu.ImageHandle(b.handle())
	b.images[h] = img
	return h, nil
}

func (b *Backend) DestroyImage(h gpu.ImageHandle) {
	img, ok := b.images[h]
	if !ok {
		return
	}
	vk.DestroyImage(b.device(), img.handle, b.context.Allocator)
	vk.FreeMemory(b.device(), img.memory, b.context.Allocator)
	delete(b.images, h)
}

func (b *Backend) CreateView(image gpu.ImageHandle) (gpu.ViewHandle, error) {
	img, ok := b.images[image]
	if !ok {
		return 0, invalidHandle("image", uint64(image))
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.handle,
		ViewType: vk.ImageViewType2d,
		Format:   img.format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask(img.desc.Format),
			LevelCount: max(img.desc.MipLevels, 1),
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(b.device(), &viewInfo, b.context.Allocator, &view); res != vk.Success {
		return 0, vulkanError("vkCreateImageView", res)
	}
	h := gpu.ViewHandle(b.handle())
	b.views[h] = view
	return h, nil
}

func (b *Backend) DestroyView(h gpu.ViewHandle) {
	if view, ok := b.views[h]; ok {
		vk.DestroyImageView(b.device(), view, b.context.Allocator)
		delete(b.views, h)
	}
}

func vulkanFilter(filter gpu.Filter) vk.Filter {
	if filter == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vulkanAddressMode(mode gpu.AddressMode) vk.SamplerAddressMode {
	switch mode {
	case gpu.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.AddressModeMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func (b *Backend) CreateSampler(desc gpu.SamplerDesc) (gpu.SamplerHandle, error) {
	addressMode := vulkanAddressMode(desc.AddressMode)
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkanFilter(desc.MagFilter),
		MinFilter:               vulkanFilter(desc.MinFilter),
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MaxLod:                  desc.MaxLod,
	}
	if desc.MaxAnisotropy > 1 {
		limits := b.context.Device.Properties.Limits
		limits.Deref()
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = min(desc.MaxAnisotropy, limits.MaxSamplerAnisotropy)
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(b.device(), &samplerInfo, b.context.Allocator, &sampler); res != vk.Success {
		return 0, vulkanError("vkCreateSampler", res)
	}
	h := gpu.SamplerHandle(b.handle())
	b.samplers[h] = sampler
	return h, nil
}

func (b *Backend) DestroySampler(h gpu.SamplerHandle) {
	if sampler, ok := b.samplers[h]; ok {
		vk.DestroySampler(b.device(), sampler, b.context.Allocator)
		delete(b.samplers, h)
	}
}
