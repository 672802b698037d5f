package raytracing

import (
	"fmt"
	stdmath "math"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

const (
	DefaultMaxVertices uint64 = 15_000_000
	DefaultMaxIndices  uint64 = 15_000_000
)

var (
	VertexStride = gpu.SizeOf[math.Vertex3D]()
	IndexStride  = gpu.SizeOf[uint32]()
)

/** @brief Element offsets of one mesh inside the shared buffers. */
type Offsets struct {
	VertexOffset uint32
	IndexOffset  uint32
}

/**
 * @brief MeshArena packs every mesh into one shared vertex buffer and one
 * shared index buffer, allocated once at a fixed capacity. Each mesh id is
 * packed at most once; its offsets never change afterwards.
 */
type MeshArena struct {
	ctx         *gpu.Context
	vertices    *gpu.Buffer
	indices     *gpu.Buffer
	maxVertices uint64
	maxIndices  uint64

	// write cursors, in bytes
	vertexCursor uint64
	indexCursor  uint64

	offsets map[uuid.UUID]Offsets
}

func NewMeshArena(ctx *gpu.Context, maxVertices, maxIndices uint64) (*MeshArena, error) {
	if maxVertices == 0 {
		maxVertices = DefaultMaxVertices
	}
	if maxIndices == 0 {
		maxIndices = DefaultMaxIndices
	}
	if maxVertices > stdmath.MaxUint32 || maxIndices > stdmath.MaxUint32 {
		return nil, fmt.Errorf("arena capacity of %d vertices and %d indices exceeds 32-bit offsets", maxVertices, maxIndices)
	}
	usage := gpu.BufferUsageStorage | gpu.BufferUsageDeviceAddress | gpu.BufferUsageAccelerationInput
	vertices, err := gpu.NewBuffer(ctx, gpu.BufferDesc{
		Size:  maxVertices * VertexStride,
		Usage: usage | gpu.BufferUsageVertex,
		Label: "arena-vertices",
	})
	if err != nil {
		return nil, err
	}
	indices, err := gpu.NewBuffer(ctx, gpu.BufferDesc{
		Size:  maxIndices * IndexStride,
		Usage: usage | gpu.BufferUsageIndex,
		Label: "arena-indices",
	})
	if err != nil {
		vertices.Destroy()
		return nil, err
	}
	core.LogDebug("mesh arena allocated for %d vertices and %d indices", maxVertices, maxIndices)
	return &MeshArena{
		ctx:         ctx,
		vertices:    vertices,
		indices:     indices,
		maxVertices: maxVertices,
		maxIndices:  maxIndices,
		offsets:     make(map[uuid.UUID]Offsets),
	}, nil
}

/**
 * @brief Copies the mesh into the shared buffers and returns its offsets.
 * A mesh that is already packed returns its recorded offsets and copies
 * nothing. Running out of room fails with core.ErrArenaExhausted.
 */
func (a *MeshArena) Pack(mesh *metadata.Mesh) (Offsets, error) {
	if off, ok := a.offsets[mesh.ID]; ok {
		return off, nil
	}

	vertexCount := uint64(len(mesh.Vertices))
	indexCount := uint64(len(mesh.Indices))
	if a.vertexCursor/VertexStride+vertexCount > a.maxVertices || a.indexCursor/IndexStride+indexCount > a.maxIndices {
		err := fmt.Errorf("%w: mesh '%s' (%d vertices, %d indices) does not fit, %d/%d vertices and %d/%d indices used",
			core.ErrArenaExhausted, mesh.Name, vertexCount, indexCount,
			a.vertexCursor/VertexStride, a.maxVertices, a.indexCursor/IndexStride, a.maxIndices)
		core.LogError(err.Error())
		return Offsets{}, err
	}

	if err := a.vertices.FillAt(a.vertexCursor, gpu.Bytes(mesh.Vertices)); err != nil {
		return Offsets{}, fmt.Errorf("failed to pack vertices of mesh '%s': %w", mesh.Name, err)
	}
	if err := a.indices.FillAt(a.indexCursor, gpu.Bytes(mesh.Indices)); err != nil {
		return Offsets{}, fmt.Errorf("failed to pack indices of mesh '%s': %w", mesh.Name, err)
	}

	off := Offsets{
		VertexOffset: uint32(a.vertexCursor / VertexStride),
		IndexOffset:  uint32(a.indexCursor / IndexStride),
	}
	a.offsets[mesh.ID] = off
	a.vertexCursor += vertexCount * VertexStride
	a.indexCursor += indexCount * IndexStride
	return off, nil
}

// Offsets returns the recorded offsets of a packed mesh.
func (a *MeshArena) Offsets(id uuid.UUID) (Offsets, bool) {
	off, ok := a.offsets[id]
	return off, ok
}

func (a *MeshArena) VertexBuffer() *gpu.Buffer { return a.vertices }
func (a *MeshArena) IndexBuffer() *gpu.Buffer  { return a.indices }

// Cursors returns the current write positions in bytes.
func (a *MeshArena) Cursors() (vertex, index uint64) {
	return a.vertexCursor, a.indexCursor
}

// Len returns the number of packed meshes.
func (a *MeshArena) Len() int {
	return len(a.offsets)
}

func (a *MeshArena) Destroy() {
	if a.vertices != nil {
		a.vertices.Destroy()
		a.vertices = nil
	}
	if a.indices != nil {
		a.indices.Destroy()
		a.indices = nil
	}
	clear(a.offsets)
}
