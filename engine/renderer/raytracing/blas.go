package raytracing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

/**
 * @brief BLASSet holds one bottom-level structure per mesh id. Geometry is
 * immutable once its structure exists, so a mesh is built at most once.
 */
type BLASSet struct {
	ctx *gpu.Context
	// 3x4 identity shared by every geometry description
	identity *gpu.Buffer
	handles  []gpu.AccelHandle
	index    map[uuid.UUID]int
}

func NewBLASSet(ctx *gpu.Context) (*BLASSet, error) {
	identity, err := gpu.NewBuffer(ctx, gpu.BufferDesc{
		Size:   48,
		Usage:  gpu.BufferUsageDeviceAddress | gpu.BufferUsageAccelerationInput,
		Memory: gpu.MemoryHostVisible,
		Label:  "blas-identity-transform",
	})
	if err != nil {
		return nil, err
	}
	m := math.NewMat4Identity().Affine3x4()
	if err := identity.Fill(gpu.Bytes(m[:])); err != nil {
		identity.Destroy()
		return nil, err
	}
	return &BLASSet{
		ctx:      ctx,
		identity: identity,
		index:    make(map[uuid.UUID]int),
	}, nil
}

/**
 * @brief Builds a structure for every mesh that has none yet. Each mesh must
 * already be packed in the arena. A failure for any mesh fails the whole
 * pass and discards the structures built during it, leaving the set as it
 * was. Meshes with less than one triangle are skipped.
 */
func (s *BLASSet) Build(arena *MeshArena, meshes []*metadata.Mesh) error {
	var built []uuid.UUID
	rollback := func() {
		for _, id := range built {
			s.ctx.Device.DestroyAccel(s.handles[s.index[id]])
			delete(s.index, id)
		}
		s.handles = s.handles[:len(s.handles)-len(built)]
	}

	vertexBase := arena.VertexBuffer().Address()
	indexBase := arena.IndexBuffer().Address()
	for _, mesh := range meshes {
		if _, ok := s.index[mesh.ID]; ok {
			continue
		}
		if mesh.TriangleCount() == 0 || len(mesh.Vertices) == 0 {
			core.LogWarn("mesh '%s' has no triangles and gets no BLAS", mesh.Name)
			continue
		}
		off, ok := arena.Offsets(mesh.ID)
		if !ok {
			rollback()
			err := fmt.Errorf("%w: mesh '%s' is not packed in the arena", core.ErrAccelerationBuildFailure, mesh.Name)
			core.LogError(err.Error())
			return err
		}

		h, err := s.ctx.Device.BuildBottomLevel(gpu.BottomLevelDesc{
			Geometry: gpu.TriangleGeometry{
				VertexAddress:    vertexBase + gpu.DeviceAddress(uint64(off.VertexOffset)*VertexStride),
				VertexStride:     VertexStride,
				MaxVertex:        mesh.VertexCount() - 1,
				IndexAddress:     indexBase + gpu.DeviceAddress(uint64(off.IndexOffset)*IndexStride),
				TriangleCount:    mesh.TriangleCount(),
				TransformAddress: s.identity.Address(),
				Opaque:           true,
			},
			Label: "blas-" + mesh.Name,
		})
		if err != nil {
			rollback()
			err = fmt.Errorf("failed to build BLAS for mesh '%s': %w", mesh.Name, err)
			core.LogError(err.Error())
			return err
		}
		s.index[mesh.ID] = len(s.handles)
		s.handles = append(s.handles, h)
		built = append(built, mesh.ID)
	}
	if len(built) > 0 {
		core.LogDebug("built %d BLAS (%d total)", len(built), len(s.handles))
	}
	return nil
}

func (s *BLASSet) Has(id uuid.UUID) bool {
	_, ok := s.index[id]
	return ok
}

// Index returns the position of a mesh's structure in build order.
func (s *BLASSet) Index(id uuid.UUID) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

func (s *BLASSet) Handle(id uuid.UUID) (gpu.AccelHandle, bool) {
	i, ok := s.index[id]
	if !ok {
		return 0, false
	}
	return s.handles[i], true
}

// Address returns the device address instances use to reference the mesh's structure.
func (s *BLASSet) Address(id uuid.UUID) (gpu.DeviceAddress, bool) {
	h, ok := s.Handle(id)
	if !ok {
		return 0, false
	}
	return s.ctx.Device.AccelAddress(h), true
}

func (s *BLASSet) Len() int {
	return len(s.handles)
}

func (s *BLASSet) Destroy() {
	for _, h := range s.handles {
		s.ctx.Device.DestroyAccel(h)
	}
	s.handles = nil
	clear(s.index)
	if s.identity != nil {
		s.identity.Destroy()
		s.identity = nil
	}
}
