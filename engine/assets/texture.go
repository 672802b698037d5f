package assets

import (
	"path/filepath"

	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type TextureOptions struct {
	Mipmapped bool
	FlipY     bool
	SRGB      bool
	Sampler   gpu.SamplerDesc
}

func DefaultTextureOptions() TextureOptions {
	return TextureOptions{
		Mipmapped: true,
		SRGB:      true,
		Sampler:   gpu.SamplerDesc{MaxAnisotropy: 16},
	}
}

// LoadTexture decodes the file and uploads it as a sampled texture.
func LoadTexture(ctx *gpu.Context, path string, opts TextureOptions) (*gpu.Texture, error) {
	img, err := LoadImage(path, opts.FlipY)
	if err != nil {
		return nil, err
	}
	return UploadImage(ctx, img, filepath.Base(path), opts)
}

func UploadImage(ctx *gpu.Context, img *Image, label string, opts TextureOptions) (*gpu.Texture, error) {
	format := gpu.FormatRGBA8Unorm
	if opts.SRGB {
		format = gpu.FormatRGBA8Srgb
	}
	tex, err := gpu.NewTexture(ctx, gpu.TextureDesc{
		Width:     img.Width,
		Height:    img.Height,
		Format:    format,
		Mipmapped: opts.Mipmapped,
		Usage:     gpu.ImageUsageSampled,
		Sampler:   opts.Sampler,
		Label:     label,
	})
	if err != nil {
		return nil, err
	}
	if err := tex.Fill(img.Pixels); err != nil {
		tex.Release()
		return nil, err
	}
	return tex, nil
}
