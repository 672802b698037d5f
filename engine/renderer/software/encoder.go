package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

/**
 * @brief encoder executes commands as they are recorded. It validates the
 * layouts a real device would require and keeps the first failure, which
 * Submit reports.
 */
type encoder struct {
	d   *Device
	err error
}

func (d *Device) Submit(record func(enc gpu.CommandEncoder) error) error {
	enc := &encoder{d: d}
	if err := record(enc); err != nil {
		return err
	}
	d.stats.Submits++
	if enc.err != nil {
		core.LogError(enc.err.Error())
	}
	return enc.err
}

func (e *encoder) fail(format string, args ...interface{}) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

func (e *encoder) CopyBuffer(src, dst gpu.BufferHandle, srcOffset, dstOffset, size uint64) {
	s, ok := e.d.buffers[src]
	if !ok {
		e.fail("copy from buffer %d: %w", src, core.ErrInvalidHandle)
		return
	}
	t, ok := e.d.buffers[dst]
	if !ok {
		e.fail("copy to buffer %d: %w", dst, core.ErrInvalidHandle)
		return
	}
	if srcOffset+size > s.desc.Size || dstOffset+size > t.desc.Size {
		e.fail("copy of %d bytes from '%s'+%d to '%s'+%d is out of range", size, s.desc.Label, srcOffset, t.desc.Label, dstOffset)
		return
	}
	copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	e.d.stats.BufferCopies++
}

func (e *encoder) CopyBufferToImage(src gpu.BufferHandle, dst gpu.ImageHandle, mip uint32) {
	s, ok := e.d.buffers[src]
	if !ok {
		e.fail("copy from buffer %d: %w", src, core.ErrInvalidHandle)
		return
	}
	img, ok := e.d.images[dst]
	if !ok || mip >= uint32(len(img.levels)) {
		e.fail("copy to image %d level %d: %w", dst, mip, core.ErrInvalidHandle)
		return
	}
	if img.layouts[mip] != gpu.ImageLayoutTransferDst {
		e.fail("copy to image '%s' level %d requires transfer-dst layout", img.desc.Label, mip)
		return
	}
	level := img.levels[mip]
	if uint64(len(level)) > s.desc.Size {
		e.fail("buffer '%s' holds %d bytes, image level needs %d", s.desc.Label, s.desc.Size, len(level))
		return
	}
	copy(level, s.data)
	e.d.stats.ImageCopies++
}

func (e *encoder) TransitionImage(h gpu.ImageHandle, from, to gpu.ImageLayout, baseMip, mipCount uint32) {
	img, ok := e.d.images[h]
	if !ok || baseMip+mipCount > uint32(len(img.layouts)) {
		e.fail("transition image %d levels [%d, %d): %w", h, baseMip, baseMip+mipCount, core.ErrInvalidHandle)
		return
	}
	for level := baseMip; level < baseMip+mipCount; level++ {
		if from != gpu.ImageLayoutUndefined && img.layouts[level] != from {
			e.fail("image '%s' level %d is in layout %d, barrier expects %d", img.desc.Label, level, img.layouts[level], from)
			return
		}
		img.layouts[level] = to
	}
	e.d.stats.Transitions++
}

func (e *encoder) GenerateMips(h gpu.ImageHandle) {
	img, ok := e.d.images[h]
	if !ok {
		e.fail("generate mips for image %d: %w", h, core.ErrInvalidHandle)
		return
	}
	if !img.desc.Format.Filterable8Bit() {
		e.fail("image '%s' format cannot be blitted", img.desc.Label)
		return
	}
	for level := range img.layouts {
		if img.layouts[level] != gpu.ImageLayoutTransferDst {
			e.fail("generate mips for '%s' requires every level in transfer-dst layout", img.desc.Label)
			return
		}
	}
	for level := 1; level < len(img.levels); level++ {
		sw, sh := mipExtent(img.desc.Width, img.desc.Height, uint32(level-1))
		dw, dh := mipExtent(img.desc.Width, img.desc.Height, uint32(level))
		downsample(img.levels[level-1], sw, sh, img.levels[level], dw, dh)
	}
	for level := range img.layouts {
		img.layouts[level] = gpu.ImageLayoutShaderReadOnly
	}
	e.d.stats.MipGenerations++
}

// downsample box-filters a 4 channel 8 bit level into the next one.
func downsample(src []byte, sw, sh uint32, dst []byte, dw, dh uint32) {
	for y := uint32(0); y < dh; y++ {
		for x := uint32(0); x < dw; x++ {
			x0, y0 := min(x*2, sw-1), min(y*2, sh-1)
			x1, y1 := min(x0+1, sw-1), min(y0+1, sh-1)
			for c := uint32(0); c < 4; c++ {
				sum := uint32(src[(y0*sw+x0)*4+c]) + uint32(src[(y0*sw+x1)*4+c]) +
					uint32(src[(y1*sw+x0)*4+c]) + uint32(src[(y1*sw+x1)*4+c])
				dst[(y*dw+x)*4+c] = byte((sum + 2) / 4)
			}
		}
	}
}
