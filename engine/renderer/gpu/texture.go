package gpu

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
)

type TextureDesc struct {
	Width     uint32
	Height    uint32
	Format    Format
	Mipmapped bool
	Usage     ImageUsage
	Sampler   SamplerDesc
	Label     string
}

/**
 * @brief An image with its view and sampler. Textures are reference counted:
 * the creator holds the first reference and every Retain needs a matching
 * Release. The last Release destroys the view, the sampler and, unless the
 * image was wrapped, the image itself.
 */
type Texture struct {
	ctx       *Context
	image     ImageHandle
	view      ViewHandle
	sampler   SamplerHandle
	desc      TextureDesc
	mipLevels uint32
	wrapped   bool
	refs      atomic.Int32
}

// MipLevelCount returns the length of a full mip chain for the given size.
func MipLevelCount(width, height uint32) uint32 {
	return uint32(bits.Len32(max(width, height, 1)))
}

func NewTexture(ctx *Context, desc TextureDesc) (*Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		err := fmt.Errorf("texture '%s' has zero extent %dx%d", desc.Label, desc.Width, desc.Height)
		core.LogError(err.Error())
		return nil, err
	}
	if desc.Label == "" {
		desc.Label = "texture-" + uuid.NewString()
	}
	mips := uint32(1)
	if desc.Mipmapped {
		if !desc.Format.Filterable8Bit() {
			err := fmt.Errorf("texture '%s' format does not support mip generation", desc.Label)
			core.LogError(err.Error())
			return nil, err
		}
		mips = MipLevelCount(desc.Width, desc.Height)
		desc.Usage |= ImageUsageTransferSrc
	}
	desc.Usage |= ImageUsageSampled | ImageUsageTransferDst

	image, err := ctx.Device.CreateImage(ImageDesc{
		Width:     desc.Width,
		Height:    desc.Height,
		MipLevels: mips,
		Format:    desc.Format,
		Usage:     desc.Usage,
		Label:     desc.Label,
	})
	if err != nil {
		err = fmt.Errorf("failed to create image for texture '%s': %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}
	t, err := newTexture(ctx, image, desc, mips, false)
	if err != nil {
		ctx.Device.DestroyImage(image)
		return nil, err
	}
	return t, nil
}

/**
 * @brief Wraps an image owned elsewhere (a swapchain or render target image).
 * The texture creates its own view and sampler but never destroys the image.
 */
func WrapTexture(ctx *Context, image ImageHandle, desc TextureDesc) (*Texture, error) {
	if desc.Label == "" {
		desc.Label = "wrapped-" + uuid.NewString()
	}
	return newTexture(ctx, image, desc, 1, true)
}

func newTexture(ctx *Context, image ImageHandle, desc TextureDesc, mips uint32, wrapped bool) (*Texture, error) {
	view, err := ctx.Device.CreateView(image)
	if err != nil {
		err = fmt.Errorf("failed to create view for texture '%s': %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}
	sd := desc.Sampler
	if sd.MaxLod == 0 {
		sd.MaxLod = float32(mips)
	}
	if sd.Label == "" {
		sd.Label = desc.Label + "-sampler"
	}
	sampler, err := ctx.Device.CreateSampler(sd)
	if err != nil {
		ctx.Device.DestroyView(view)
		err = fmt.Errorf("failed to create sampler for texture '%s': %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}
	t := &Texture{
		ctx:       ctx,
		image:     image,
		view:      view,
		sampler:   sampler,
		desc:      desc,
		mipLevels: mips,
		wrapped:   wrapped,
	}
	t.refs.Store(1)
	return t, nil
}

func (t *Texture) Image() ImageHandle     { return t.image }
func (t *Texture) View() ViewHandle       { return t.view }
func (t *Texture) Sampler() SamplerHandle { return t.sampler }
func (t *Texture) Width() uint32          { return t.desc.Width }
func (t *Texture) Height() uint32         { return t.desc.Height }
func (t *Texture) Format() Format         { return t.desc.Format }
func (t *Texture) MipLevels() uint32      { return t.mipLevels }
func (t *Texture) Label() string          { return t.desc.Label }
func (t *Texture) Wrapped() bool          { return t.wrapped }

/**
 * @brief Uploads level 0 through a staging buffer and, when the texture is
 * mipmapped, generates the rest of the chain. Blocks until the copy is done.
 * Leaves every level in ImageLayoutShaderReadOnly.
 */
func (t *Texture) Fill(pixels []byte) error {
	want := uint64(t.desc.Width) * uint64(t.desc.Height) * uint64(t.desc.Format.BytesPerPixel())
	if uint64(len(pixels)) != want {
		err := fmt.Errorf("texture '%s' expects %d bytes of pixel data, got %d", t.desc.Label, want, len(pixels))
		core.LogError(err.Error())
		return err
	}
	staging, err := NewBuffer(t.ctx, BufferDesc{
		Size:   want,
		Usage:  BufferUsageTransferSrc,
		Memory: MemoryHostVisible,
		Label:  t.desc.Label + "-staging",
	})
	if err != nil {
		return err
	}
	defer staging.Destroy()
	if err := staging.Fill(pixels); err != nil {
		return err
	}

	return t.ctx.Device.Submit(func(enc CommandEncoder) error {
		enc.TransitionImage(t.image, ImageLayoutUndefined, ImageLayoutTransferDst, 0, t.mipLevels)
		enc.CopyBufferToImage(staging.handle, t.image, 0)
		if t.mipLevels > 1 {
			enc.GenerateMips(t.image)
		} else {
			enc.TransitionImage(t.image, ImageLayoutTransferDst, ImageLayoutShaderReadOnly, 0, 1)
		}
		return nil
	})
}

// GenerateMips regenerates levels 1..n from level 0, for textures whose
// level 0 was rendered to.
func (t *Texture) GenerateMips() error {
	if t.mipLevels <= 1 {
		return nil
	}
	if !t.desc.Format.Filterable8Bit() {
		err := fmt.Errorf("texture '%s' format does not support mip generation", t.desc.Label)
		core.LogError(err.Error())
		return err
	}
	return t.ctx.Device.Submit(func(enc CommandEncoder) error {
		enc.TransitionImage(t.image, ImageLayoutShaderReadOnly, ImageLayoutTransferDst, 0, t.mipLevels)
		enc.GenerateMips(t.image)
		return nil
	})
}

func (t *Texture) Retain() *Texture {
	t.refs.Add(1)
	return t
}

// Release drops one reference and destroys the texture when none remain.
func (t *Texture) Release() {
	n := t.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		core.LogWarn("texture '%s' released more times than retained", t.desc.Label)
		return
	}
	t.destroy()
}

func (t *Texture) RefCount() int32 {
	return t.refs.Load()
}

func (t *Texture) destroy() {
	d := t.ctx.Device
	d.DestroySampler(t.sampler)
	d.DestroyView(t.view)
	if !t.wrapped {
		d.DestroyImage(t.image)
	}
	t.sampler, t.view, t.image = 0, 0, 0
}
