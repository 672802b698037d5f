package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/components"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
)

// RayTracer answers closest-hit queries against a top-level structure.
type RayTracer interface {
	TraceRay(tlas gpu.AccelHandle, ray software.Ray) (software.Hit, bool, error)
}

var previewSky = color.NRGBA{R: 40, G: 44, B: 52, A: 255}

/**
 * @brief Traces one primary ray per pixel and shades each hit with the
 * albedo of the ObjDesc selected by the hit's custom index, dimmed by
 * distance. This is the same object id lookup a hit shader performs.
 */
func RenderPreview(tracer RayTracer, tlas gpu.AccelHandle, objDescs []metadata.ObjDesc, camera *components.Camera, width, height uint32) (*image.NRGBA, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("preview size %dx%d is empty", width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			origin, dir := camera.PrimaryRay(x, y, width, height)
			hit, ok, err := tracer.TraceRay(tlas, software.NewRay(origin, dir))
			if err != nil {
				return nil, err
			}
			if !ok || int(hit.CustomIndex) >= len(objDescs) {
				img.SetNRGBA(int(x), int(y), previewSky)
				continue
			}
			img.SetNRGBA(int(x), int(y), shade(objDescs[hit.CustomIndex].Albedo, hit.Distance))
		}
	}
	return img, nil
}

func shade(albedo math.Vec4, distance float32) color.NRGBA {
	falloff := 1 / (1 + 0.02*distance)
	channel := func(v float32) uint8 {
		return uint8(math.Clamp(v*falloff, 0, 1)*255 + 0.5)
	}
	return color.NRGBA{R: channel(albedo.X), G: channel(albedo.Y), B: channel(albedo.Z), A: 255}
}

// SavePreview writes a CPU trace of the current scene to path as PNG.
func (e *Engine) SavePreview(path string) error {
	if e.assembler == nil {
		return fmt.Errorf("no acceleration structure to trace")
	}
	tracer, ok := e.ctx.Device.(RayTracer)
	if !ok {
		return fmt.Errorf("device '%s' cannot trace rays on the host", e.ctx.Device.Name())
	}

	img, err := RenderPreview(tracer, e.assembler.TopLevelAS(), e.assembler.ObjDescs(), e.camera,
		e.cfg.Application.Width, e.cfg.Application.Height)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	core.LogInfo("Preview written to %s.", path)
	return nil
}
