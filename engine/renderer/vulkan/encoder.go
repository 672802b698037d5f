package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

/**
 * @brief Records into a one-shot command buffer. The first invalid handle
 * is remembered and fails the submission instead of recording garbage.
 */
type encoder struct {
	backend *Backend
	cb      vk.CommandBuffer
	err     error
}

func (e *encoder) fail(kind string, h uint64) {
	if e.err == nil {
		e.err = invalidHandle(kind, h)
	}
}

func (e *encoder) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	s, ok := e.backend.buffers[src]
	if !ok {
		e.fail("buffer", uint64(src))
		return
	}
	d, ok := e.backend.buffers[dst]
	if !ok {
		e.fail("buffer", uint64(dst))
		return
	}
	vk.CmdCopyBuffer(e.cb, s.handle, d.handle, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

func (e *encoder) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, mip uint32) {
	s, ok := e.backend.buffers[src]
	if !ok {
		e.fail("buffer", uint64(src))
		return
	}
	img, ok := e.backend.images[dst]
	if !ok {
		e.fail("image", uint64(dst))
		return
	}
	width, height := max(img.desc.Width>>mip, 1), max(img.desc.Height>>mip, 1)
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspectMask(img.desc.Format),
			MipLevel:   mip,
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(e.cb, s.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (e *encoder) TransitionImage(image gpu.ImageHandle, from, to gpu.ImageLayout, baseMip, mipCount uint32) {
	img, ok := e.backend.images[image]
	if !ok {
		e.fail("image", uint64(image))
		return
	}
	e.barrier(img, vulkanLayout(from), vulkanLayout(to), baseMip, mipCount)
}

func (e *encoder) barrier(img *vulkanImage, oldLayout, newLayout vk.ImageLayout, baseMip, mipCount uint32) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   aspectMask(img.desc.Format),
			BaseMipLevel: baseMip,
			LevelCount:   mipCount,
			LayerCount:   1,
		},
	}
	srcAccess, srcStage := layoutAccess(oldLayout)
	dstAccess, dstStage := layoutAccess(newLayout)
	barrier.SrcAccessMask = srcAccess
	barrier.DstAccessMask = dstAccess
	vk.CmdPipelineBarrier(e.cb, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func layoutAccess(layout vk.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	case vk.ImageLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	default:
		return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
}

// GenerateMips blits each level from the one above it, leaving the chain shader-readable.
func (e *encoder) GenerateMips(image gpu.ImageHandle) {
	img, ok := e.backend.images[image]
	if !ok {
		e.fail("image", uint64(image))
		return
	}
	levels := max(img.desc.MipLevels, 1)
	width, height := int32(img.desc.Width), int32(img.desc.Height)

	for level := uint32(1); level < levels; level++ {
		e.barrier(img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal, level-1, 1)

		nextWidth, nextHeight := max(width/2, 1), max(height/2, 1)
		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspectMask(img.desc.Format),
				MipLevel:   level - 1,
				LayerCount: 1,
			},
			SrcOffsets: [2]vk.Offset3D{{}, {X: width, Y: height, Z: 1}},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: aspectMask(img.desc.Format),
				MipLevel:   level,
				LayerCount: 1,
			},
			DstOffsets: [2]vk.Offset3D{{}, {X: nextWidth, Y: nextHeight, Z: 1}},
		}
		vk.CmdBlitImage(e.cb,
			img.handle, vk.ImageLayoutTransferSrcOptimal,
			img.handle, vk.ImageLayoutTransferDstOptimal,
			1, []vk.ImageBlit{blit}, vk.FilterLinear)

		e.barrier(img, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal, level-1, 1)
		width, height = nextWidth, nextHeight
	}
	e.barrier(img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, levels-1, 1)
}
