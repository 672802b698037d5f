package assets

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima-rt/engine/renderer/bindless"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
	"github.com/spaghettifunk/anima-rt/engine/systems"
)

// twoRows is a 2x2 image with a red top row and a blue bottom row.
func twoRows(top, bottom color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for x := 0; x < 2; x++ {
		img.SetNRGBA(x, 0, top)
		img.SetNRGBA(x, 1, bottom)
	}
	return img
}

var (
	red   = color.NRGBA{R: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newContext(t *testing.T) (*gpu.Context, *software.Device) {
	t.Helper()
	dev := software.New(software.Options{})
	ctx, err := gpu.NewContext(dev)
	require.NoError(t, err)
	return ctx, dev
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, twoRows(red, blue)))

	img, err := DecodeImage(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[:4])
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[8:12])
}

func TestDecodeFlipY(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, twoRows(red, blue)))

	img, err := DecodeImage(&buf, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[8:12])
}

func TestDecodeBMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, twoRows(green, red)))

	img, err := DecodeImage(&buf, false)
	require.NoError(t, err)
	assert.Len(t, img.Pixels, 16)
	assert.Equal(t, []byte{0, 255, 0, 255}, img.Pixels[:4])
}

func TestLoadImageRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "albedo.ktx")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	_, err := LoadImage(path, false)
	assert.Error(t, err)
	assert.True(t, SupportedTexture("A.PNG"))
	assert.False(t, SupportedTexture("a.hdr"))
}

func TestLoadTextureUploadsMipChain(t *testing.T) {
	ctx, dev := newContext(t)
	path := filepath.Join(t.TempDir(), "albedo.png")
	writePNG(t, path, twoRows(red, blue))

	tex, err := LoadTexture(ctx, path, DefaultTextureOptions())
	require.NoError(t, err)
	defer tex.Release()

	assert.Equal(t, uint32(2), tex.MipLevels())
	assert.Equal(t, gpu.FormatRGBA8Srgb, tex.Format())
	assert.Equal(t, "albedo.png", tex.Label())

	top, layout := dev.ImageLevel(tex.Image(), 1)
	assert.Equal(t, gpu.ImageLayoutShaderReadOnly, layout)
	// mip 1 averages red and blue
	assert.Equal(t, []byte{128, 0, 128, 255}, top)
}

func TestWatcherReloadsIntoSameSlot(t *testing.T) {
	ctx, dev := newContext(t)
	table, err := bindless.NewTable(ctx, 8)
	require.NoError(t, err)
	defer table.Destroy()

	path := filepath.Join(t.TempDir(), "albedo.png")
	writePNG(t, path, twoRows(red, red))

	w, err := NewTextureWatcher(ctx, table, TextureOptions{}, nil)
	require.NoError(t, err)
	defer w.Close()

	slot, err := w.LoadAndWatch(path)
	require.NoError(t, err)
	require.NoError(t, table.UpdateSets())

	first, ok := table.Texture(slot)
	require.True(t, ok)
	assert.Equal(t, int32(1), first.RefCount(), "the table owns the texture")

	writePNG(t, path, twoRows(green, green))

	reloaded := 0
	for deadline := time.Now().Add(5 * time.Second); reloaded == 0 && time.Now().Before(deadline); {
		// a truncated file can be seen mid-write; the next event retries it
		n, _ := w.Poll()
		reloaded += n
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, reloaded)
	require.NoError(t, table.UpdateSets())

	second, ok := table.Texture(slot)
	require.True(t, ok)
	assert.NotSame(t, first, second)

	write, ok := dev.Descriptor(table.Handle(), slot)
	require.True(t, ok)
	assert.Equal(t, second.View(), write.View)

	pixels, _ := dev.ImageLevel(second.Image(), 0)
	assert.Equal(t, []byte{0, 255, 0, 255}, pixels[:4])
}

func TestWatcherDecodesOnJobSystem(t *testing.T) {
	ctx, dev := newContext(t)
	table, err := bindless.NewTable(ctx, 8)
	require.NoError(t, err)
	defer table.Destroy()

	jobs, err := systems.NewJobSystem(2, 4)
	require.NoError(t, err)
	defer jobs.Shutdown()

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png"), filepath.Join(dir, "c.png")}
	w, err := NewTextureWatcher(ctx, table, TextureOptions{}, jobs)
	require.NoError(t, err)
	defer w.Close()

	slots := make([]uint32, len(paths))
	for i, path := range paths {
		writePNG(t, path, twoRows(red, red))
		slots[i], err = w.LoadAndWatch(path)
		require.NoError(t, err)
	}
	require.NoError(t, table.UpdateSets())

	for _, path := range paths {
		writePNG(t, path, twoRows(blue, blue))
	}

	done := make(map[uint32]bool)
	for deadline := time.Now().Add(5 * time.Second); len(done) < len(paths) && time.Now().Before(deadline); {
		_, _ = w.Poll()
		require.NoError(t, table.UpdateSets())
		for _, slot := range slots {
			tex, ok := table.Texture(slot)
			require.True(t, ok)
			pixels, _ := dev.ImageLevel(tex.Image(), 0)
			if bytes.Equal(pixels[:4], []byte{0, 0, 255, 255}) {
				done[slot] = true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Len(t, done, len(paths))
	assert.Equal(t, 3, table.Len())
}

func TestWatcherIgnoresUnwatchedFiles(t *testing.T) {
	ctx, _ := newContext(t)
	table, err := bindless.NewTable(ctx, 8)
	require.NoError(t, err)
	defer table.Destroy()

	dir := t.TempDir()
	watched := filepath.Join(dir, "a.png")
	writePNG(t, watched, twoRows(red, red))

	w, err := NewTextureWatcher(ctx, table, TextureOptions{}, nil)
	require.NoError(t, err)
	defer w.Close()
	_, err = w.LoadAndWatch(watched)
	require.NoError(t, err)

	writePNG(t, filepath.Join(dir, "b.png"), twoRows(blue, blue))
	time.Sleep(100 * time.Millisecond)

	n, err := w.Poll()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWatcherClose(t *testing.T) {
	ctx, _ := newContext(t)
	table, err := bindless.NewTable(ctx, 8)
	require.NoError(t, err)
	defer table.Destroy()

	w, err := NewTextureWatcher(ctx, table, TextureOptions{}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "a.png"), 0))
}
