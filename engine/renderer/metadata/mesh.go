package metadata

import (
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/math"
)

/**
 * @brief Triangle geometry owned by the scene. Meshes are shared between
 * entities by pointer and are immutable once the ray-tracing assembler has
 * packed them.
 */
type Mesh struct {
	/** @brief Stable identifier; the arena and BLAS set are keyed by it. */
	ID   uuid.UUID
	Name string
	/** @brief The vertices; indices address them starting at 0. */
	Vertices []math.Vertex3D
	/** @brief Triangle list indices. */
	Indices []uint32
	/** @brief Local-space bounds of the vertices. */
	Extents math.Extents3D
}

// NewMesh creates a mesh with a fresh identifier and computed extents.
func NewMesh(name string, vertices []math.Vertex3D, indices []uint32) *Mesh {
	return &Mesh{
		ID:       uuid.New(),
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		Extents:  math.GeometryExtents(vertices),
	}
}

func (m *Mesh) VertexCount() uint32 {
	return uint32(len(m.Vertices))
}

func (m *Mesh) IndexCount() uint32 {
	return uint32(len(m.Indices))
}

func (m *Mesh) TriangleCount() uint32 {
	return uint32(len(m.Indices) / 3)
}
