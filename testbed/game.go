package testbed

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/anima-rt/engine"
	"github.com/spaghettifunk/anima-rt/engine/assets"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/scene"
)

// ringSize is the number of cubes orbiting the center, all sharing one mesh.
const ringSize = 8

type TestGame struct {
	*engine.Game
}

type gameState struct {
	cube  *metadata.Mesh
	plane *metadata.Mesh

	floor  *scene.Entity
	parent *scene.Entity
	child  *scene.Entity
	moon   *scene.Entity
	ring   []*scene.Entity

	// Bindless slot of the floor texture.
	checkerSlot uint32
	elapsed     float64
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "testbed",
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

/**
 * @brief Builds the demo scene: a textured floor, a three-level hierarchy of
 * cubes, and a ring of cubes that reuse one mesh so a single BLAS backs many
 * instances.
 */
func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogInfo("initializing testbed...")
	s := g.state()

	slot, err := g.loadChecker(e)
	if err != nil {
		return err
	}
	s.checkerSlot = slot

	s.cube = GenerateCube(2, 2, 2, 1, 1, "test_cube")
	s.plane = GeneratePlane(40, 40, 4, 4, 8, 8, "floor")

	floorMaterial := metadata.NewMaterial("floor", math.NewVec4(0.8, 0.8, 0.8, 1))
	floorMaterial.AlbedoTexture = int32(slot)
	red := metadata.NewMaterial("red", math.NewVec4(0.9, 0.2, 0.2, 1))
	green := metadata.NewMaterial("green", math.NewVec4(0.2, 0.9, 0.3, 1))
	blue := metadata.NewMaterial("blue", math.NewVec4(0.2, 0.4, 0.9, 1))

	sc := e.Scene()
	s.floor = sc.CreateRenderable("floor", math.NewVec3(0, -1, 0), []*metadata.Mesh{s.plane}, floorMaterial)
	s.floor.Transform.SetRotation(math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), -math32.Pi/2))

	s.parent = sc.CreateRenderable("parent", math.NewVec3(0, 1, 0), []*metadata.Mesh{s.cube}, red)
	s.child = sc.CreateRenderable("child", math.NewVec3(4, 0, 0), []*metadata.Mesh{s.cube}, green)
	s.child.Transform.SetScale(math.NewVec3(0.5, 0.5, 0.5))
	s.moon = sc.CreateRenderable("moon", math.NewVec3(3, 0, 0), []*metadata.Mesh{s.cube}, blue)
	s.moon.Transform.SetScale(math.NewVec3(0.5, 0.5, 0.5))
	if err := sc.SetParent(s.child, s.parent); err != nil {
		return err
	}
	if err := sc.SetParent(s.moon, s.child); err != nil {
		return err
	}

	for i := 0; i < ringSize; i++ {
		angle := 2 * math32.Pi * float32(i) / ringSize
		position := math.NewVec3(10*math32.Cos(angle), 0, 10*math32.Sin(angle))
		material := red
		if i%2 == 1 {
			material = blue
		}
		s.ring = append(s.ring, sc.CreateRenderable(fmt.Sprintf("ring_%d", i), position, []*metadata.Mesh{s.cube}, material))
	}

	camera := e.Camera()
	camera.SetPosition(math.NewVec3(0, 8, 22))
	camera.LookAt(math.NewVec3(0, 0, 0))

	core.LogInfo("testbed scene has %d entities", sc.Len())
	return nil
}

// loadChecker loads checker.png from the textures directory, or generates one when it is missing.
func (g *TestGame) loadChecker(e *engine.Engine) (uint32, error) {
	slot, err := e.LoadTexture("checker.png")
	if err == nil {
		return slot, nil
	}
	core.LogDebug("checker.png not loaded (%s), generating one", err)

	img := CheckerImage(64, 8, [4]byte{230, 230, 230, 255}, [4]byte{60, 60, 60, 255})
	tex, err := assets.UploadImage(e.Context(), img, "checker", assets.DefaultTextureOptions())
	if err != nil {
		return 0, err
	}
	defer tex.Release()
	return e.Bindless().AddTexture(tex)
}

// CheckerImage builds a size x size RGBA8 checkerboard with square cells of cell pixels.
func CheckerImage(size, cell uint32, a, b [4]byte) *assets.Image {
	img := &assets.Image{Width: size, Height: size, Pixels: make([]byte, size*size*4)}
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			copy(img.Pixels[(y*size+x)*4:], c[:])
		}
	}
	return img
}

/**
 * @brief Spins the hierarchy and bobs the ring. Every change here reaches the
 * next top-level build through the transforms' dirty propagation.
 */
func (g *TestGame) Update(e *engine.Engine, deltaTime float64) error {
	s := g.state()
	s.elapsed += deltaTime

	spin := math.NewQuatFromAxisAngle(math.NewVec3Up(), float32(0.5*deltaTime))
	s.parent.Transform.Rotate(spin)
	s.child.Transform.Rotate(spin.Mul(spin))

	for i, entity := range s.ring {
		position := entity.Transform.Position()
		position.Y = math32.Sin(float32(s.elapsed) + float32(i))
		entity.Transform.SetPosition(position)
	}
	return nil
}

func (g *TestGame) Shutdown(e *engine.Engine) error {
	core.LogInfo("shutting down testbed after %d frames", e.FrameCount())
	return nil
}
