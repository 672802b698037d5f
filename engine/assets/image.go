package assets

import (
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// decoders registered with image.Decode
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/anima-rt/engine/core"
)

/** @brief Decoded pixels, always 4 channels of 8 bits, rows top to bottom. */
type Image struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// SupportedTexture reports whether path has an extension the decoders handle.
func SupportedTexture(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".webp":
		return true
	default:
		return false
	}
}

// DecodeImage decodes any registered format into RGBA8.
func DecodeImage(r io.Reader, flipY bool) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(rgba, image.Point{}, src, b, draw.Src, nil)

	img := &Image{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Pixels: rgba.Pix}
	if flipY {
		img.flip()
	}
	core.LogDebug("decoded %s image %dx%d", format, img.Width, img.Height)
	return img, nil
}

func LoadImage(path string, flipY bool) (*Image, error) {
	if !SupportedTexture(path) {
		err := fmt.Errorf("unsupported texture format: %s", path)
		core.LogError(err.Error())
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := DecodeImage(f, flipY)
	if err != nil {
		err = fmt.Errorf("failed to decode '%s': %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}
	return img, nil
}

func (img *Image) flip() {
	stride := int(img.Width) * 4
	tmp := make([]byte, stride)
	for top, bottom := 0, int(img.Height)-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := img.Pixels[top*stride : (top+1)*stride]
		b := img.Pixels[bottom*stride : (bottom+1)*stride]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}
