package engine

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/config"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Application.Width = 9
	cfg.Application.Height = 9
	cfg.Application.Frames = 3
	cfg.Bindless.Capacity = 8
	cfg.Arena.MaxVertices = 1024
	cfg.Arena.MaxIndices = 1024
	cfg.Assets.TexturesDir = t.TempDir()
	return cfg
}

// quadMesh is a 2x2 quad in the XY plane centered on the origin.
func quadMesh() *metadata.Mesh {
	vertices := make([]math.Vertex3D, 4)
	vertices[0].Position = math.NewVec3(-1, -1, 0)
	vertices[1].Position = math.NewVec3(1, -1, 0)
	vertices[2].Position = math.NewVec3(1, 1, 0)
	vertices[3].Position = math.NewVec3(-1, 1, 0)
	return metadata.NewMesh("quad", vertices, []uint32{0, 1, 2, 0, 2, 3})
}

func quadGame(updates *int) *Game {
	return &Game{
		Name: "quad",
		FnInitialize: func(e *Engine) error {
			red := metadata.NewMaterial("red", math.NewVec4(1, 0, 0, 1))
			e.Scene().CreateRenderable("quad", math.NewVec3(0, 0, -5), []*metadata.Mesh{quadMesh()}, red)
			return nil
		},
		FnUpdate: func(e *Engine, deltaTime float64) error {
			*updates++
			return nil
		},
	}
}

func startEngine(t *testing.T, cfg *config.Config, g *Game) *Engine {
	t.Helper()
	e, err := New(cfg, g)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	require.Equal(t, EngineStageBootComplete, e.Stage())
	require.NoError(t, e.Initialize())
	return e
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	var updates int
	e := startEngine(t, testConfig(t), quadGame(&updates))
	require.True(t, e.RayTracingEnabled())

	require.NoError(t, e.Run())
	assert.Equal(t, 3, updates)
	assert.Equal(t, uint64(3), e.FrameCount())
	assert.Equal(t, 1, e.InstanceCount())

	dev := e.Context().Device.(*software.Device)
	assert.Equal(t, uint64(1), dev.Stats().BottomLevelBuilds)
	assert.Equal(t, uint64(3), dev.Stats().TopLevelBuilds)
	assert.Greater(t, e.Metrics().LastBuildMS, -1.0)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Nil(t, e.Assembler())
	require.NoError(t, e.Shutdown())
}

func TestEngineWithoutRayTracing(t *testing.T) {
	cfg := testConfig(t)
	cfg.RayTracing.Enabled = false

	var updates int
	e := startEngine(t, cfg, quadGame(&updates))
	assert.False(t, e.RayTracingEnabled())
	require.NoError(t, e.Run())
	assert.Equal(t, 3, updates)
	assert.Equal(t, 0, e.InstanceCount())
}

func TestEngineBuildsMeshesAddedDuringRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Application.Frames = 4

	var updates int
	counts := make([]int, 0, 4)
	g := quadGame(&updates)
	g.FnUpdate = func(e *Engine, deltaTime float64) error {
		updates++
		counts = append(counts, e.InstanceCount())
		if updates == 2 {
			blue := metadata.NewMaterial("blue", math.NewVec4(0, 0, 1, 1))
			e.Scene().CreateRenderable("late", math.NewVec3(3, 0, -5), []*metadata.Mesh{quadMesh()}, blue)
		}
		return nil
	}
	e := startEngine(t, cfg, g)
	require.NoError(t, e.Run())

	// counts are read before each frame's build
	assert.Equal(t, []int{0, 1, 2, 2}, counts)
	assert.Equal(t, 2, e.InstanceCount())
	assert.Equal(t, 2, e.Assembler().BLAS().Len())
	dev := e.Context().Device.(*software.Device)
	assert.Equal(t, uint64(2), dev.Stats().BottomLevelBuilds)
}

func TestEngineStopEndsUnboundedRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Application.Frames = 0

	var updates int
	g := quadGame(&updates)
	g.FnUpdate = func(e *Engine, deltaTime float64) error {
		updates++
		if updates == 5 {
			e.Stop()
		}
		return nil
	}
	e := startEngine(t, cfg, g)
	require.NoError(t, e.Run())
	assert.Equal(t, 5, updates)
}

func TestEngineUpdateErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")
	g := &Game{FnUpdate: func(e *Engine, deltaTime float64) error { return boom }}
	e := startEngine(t, testConfig(t), g)
	assert.ErrorIs(t, e.Run(), boom)
	assert.Equal(t, uint64(0), e.FrameCount())
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Renderer.Backend = "metal"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer e.Shutdown()
	assert.Error(t, e.Run())
}

func TestEngineLoadTextureRegistersSlot(t *testing.T) {
	cfg := testConfig(t)
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(filepath.Join(cfg.Assets.TexturesDir, "white.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	var slot uint32 = 99
	g := &Game{FnInitialize: func(e *Engine) error {
		var err error
		slot, err = e.LoadTexture("white.png")
		return err
	}}
	e := startEngine(t, cfg, g)

	assert.Equal(t, uint32(0), slot)
	assert.Equal(t, 1, e.Bindless().Len())
	assert.Equal(t, 0, e.Bindless().Pending())
	tex, ok := e.Bindless().Texture(slot)
	require.True(t, ok)
	assert.Equal(t, uint32(4), tex.Width())
}

func TestEngineWatchedTextureUsesWatcher(t *testing.T) {
	cfg := testConfig(t)
	cfg.Assets.Watch = true
	f, err := os.Create(filepath.Join(cfg.Assets.TexturesDir, "grey.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, f.Close())

	g := &Game{FnInitialize: func(e *Engine) error {
		_, err := e.LoadTexture("grey.png")
		return err
	}}
	e := startEngine(t, cfg, g)
	require.NotNil(t, e.Watcher())
	assert.Equal(t, 1, e.Bindless().Len())

	require.NoError(t, e.Run())
	require.NoError(t, e.Shutdown())
	assert.Nil(t, e.Watcher())
}

func TestRenderPreviewShadesByObjectID(t *testing.T) {
	var updates int
	e := startEngine(t, testConfig(t), quadGame(&updates))
	require.NoError(t, e.Run())

	tracer := e.Context().Device.(*software.Device)
	a := e.Assembler()
	img, err := RenderPreview(tracer, a.TopLevelAS(), a.ObjDescs(), e.Camera(), 9, 9)
	require.NoError(t, err)

	center := img.NRGBAAt(4, 4)
	assert.Greater(t, center.R, uint8(200))
	assert.Equal(t, uint8(0), center.G)
	assert.Equal(t, previewSky, img.NRGBAAt(0, 0))

	_, err = RenderPreview(tracer, a.TopLevelAS(), a.ObjDescs(), e.Camera(), 0, 9)
	assert.Error(t, err)
}

func TestSavePreviewWritesPNG(t *testing.T) {
	cfg := testConfig(t)
	cfg.Application.Preview = filepath.Join(t.TempDir(), "preview.png")

	var updates int
	e := startEngine(t, cfg, quadGame(&updates))
	require.NoError(t, e.Run())

	f, err := os.Open(cfg.Application.Preview)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 9, 9), img.Bounds())
	assert.Equal(t, color.NRGBAModel.Convert(img.At(0, 0)), color.Color(previewSky))
}
