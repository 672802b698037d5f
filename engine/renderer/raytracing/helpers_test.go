package raytracing

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
)

type entity struct {
	world     math.Mat4
	meshes    []*metadata.Mesh
	materials []*metadata.Material
}

func (e *entity) WorldTransform() math.Mat4       { return e.world }
func (e *entity) Meshes() []*metadata.Mesh        { return e.meshes }
func (e *entity) Materials() []*metadata.Material { return e.materials }

type testScene struct {
	entities []*entity
}

func (s *testScene) Renderables() iter.Seq[metadata.Renderable] {
	return func(yield func(metadata.Renderable) bool) {
		for _, e := range s.entities {
			if !yield(e) {
				return
			}
		}
	}
}

func (s *testScene) add(at math.Vec3, meshes []*metadata.Mesh, materials ...*metadata.Material) *entity {
	e := &entity{world: math.NewMat4Translation(at), meshes: meshes, materials: materials}
	s.entities = append(s.entities, e)
	return e
}

func newDevice(t *testing.T, opts software.Options) (*gpu.Context, *software.Device) {
	t.Helper()
	dev := software.New(opts)
	ctx, err := gpu.NewContext(dev)
	require.NoError(t, err)
	return ctx, dev
}

// stripMesh zigzags n vertices into n-2 triangles.
func stripMesh(name string, n int) *metadata.Mesh {
	vertices := make([]math.Vertex3D, n)
	for i := range vertices {
		vertices[i].Position = math.NewVec3(float32(i%2), float32(i/2), 0)
	}
	indices := make([]uint32, 0, 3*(n-2))
	for i := 0; i+2 < n; i++ {
		indices = append(indices, uint32(i), uint32(i+1), uint32(i+2))
	}
	return metadata.NewMesh(name, vertices, indices)
}

// quadMesh is a 2x2 quad in the XY plane facing +Z.
func quadMesh(name string) *metadata.Mesh {
	vertices := []math.Vertex3D{
		{Position: math.NewVec3(-1, -1, 0)},
		{Position: math.NewVec3(1, -1, 0)},
		{Position: math.NewVec3(1, 1, 0)},
		{Position: math.NewVec3(-1, 1, 0)},
	}
	return metadata.NewMesh(name, vertices, []uint32{0, 1, 2, 0, 2, 3})
}

func colour(r, g, b float32) *metadata.Material {
	return metadata.NewMaterial("", math.NewVec4(r, g, b, 1))
}
