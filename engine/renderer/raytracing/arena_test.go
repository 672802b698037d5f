package raytracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
)

func TestArenaPacksAtIncreasingOffsets(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 1000, 3000)
	require.NoError(t, err)

	a := stripMesh("a", 300)
	b := stripMesh("b", 500)
	offA, err := arena.Pack(a)
	require.NoError(t, err)
	offB, err := arena.Pack(b)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), offA.VertexOffset)
	assert.Equal(t, uint32(0), offA.IndexOffset)
	assert.Equal(t, uint32(300), offB.VertexOffset)
	assert.Equal(t, a.IndexCount(), offB.IndexOffset)

	again, err := arena.Pack(a)
	require.NoError(t, err)
	assert.Equal(t, Offsets{VertexOffset: 0, IndexOffset: offA.IndexOffset}, again)

	vertices := dev.BufferData(arena.VertexBuffer().Handle())
	start := uint64(offB.VertexOffset) * VertexStride
	assert.Equal(t, gpu.Bytes(b.Vertices), vertices[start:start+uint64(len(b.Vertices))*VertexStride])
	indices := dev.BufferData(arena.IndexBuffer().Handle())
	start = uint64(offB.IndexOffset) * IndexStride
	assert.Equal(t, gpu.Bytes(b.Indices), indices[start:start+uint64(len(b.Indices))*IndexStride])
}

func TestArenaRepackAdvancesCursorOnce(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 100, 300)
	require.NoError(t, err)
	mesh := stripMesh("m", 10)

	first, err := arena.Pack(mesh)
	require.NoError(t, err)
	v, i := arena.Cursors()
	copies := dev.Stats().BufferCopies

	second, err := arena.Pack(mesh)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	v2, i2 := arena.Cursors()
	assert.Equal(t, v, v2)
	assert.Equal(t, i, i2)
	assert.Equal(t, copies, dev.Stats().BufferCopies, "nothing is copied for a packed mesh")
	assert.Equal(t, uint64(10)*VertexStride, v)
	assert.Equal(t, 1, arena.Len())
}

func TestArenaExhausted(t *testing.T) {
	ctx, _ := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 12, 100)
	require.NoError(t, err)

	_, err = arena.Pack(stripMesh("fits", 8))
	require.NoError(t, err)
	before, _ := arena.Cursors()

	_, err = arena.Pack(stripMesh("too big", 8))
	assert.ErrorIs(t, err, core.ErrArenaExhausted)
	assert.ErrorIs(t, err, core.ErrResourceExhausted)
	after, _ := arena.Cursors()
	assert.Equal(t, before, after)

	small, err := NewMeshArena(ctx, 100, 5)
	require.NoError(t, err)
	_, err = small.Pack(stripMesh("indices", 4))
	assert.ErrorIs(t, err, core.ErrArenaExhausted)
}

func TestArenaAllocationFailure(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{MemoryBudget: 1024})
	_, err := NewMeshArena(ctx, 10, 10_000)
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
	assert.Equal(t, 0, dev.Stats().LiveBuffers)
}

func TestArenaRejectsCapacityBeyondOffsets(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	_, err := NewMeshArena(ctx, 1<<32, 16)
	assert.Error(t, err)
	_, err = NewMeshArena(ctx, 16, 1<<32)
	assert.Error(t, err)
	assert.Equal(t, 0, dev.Stats().LiveBuffers)
}

func TestBLASBuiltOncePerMesh(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 100, 300)
	require.NoError(t, err)
	set, err := NewBLASSet(ctx)
	require.NoError(t, err)

	a, b := quadMesh("a"), stripMesh("b", 6)
	for _, m := range []*metadata.Mesh{a, b} {
		_, err := arena.Pack(m)
		require.NoError(t, err)
	}
	require.NoError(t, set.Build(arena, []*metadata.Mesh{a, b, a}))
	require.NoError(t, set.Build(arena, []*metadata.Mesh{b, a}))

	assert.Equal(t, uint64(2), dev.Stats().BottomLevelBuilds)
	assert.Equal(t, 2, set.Len())
	ia, ok := set.Index(a.ID)
	require.True(t, ok)
	assert.Equal(t, 0, ia)
	addr, ok := set.Address(b.ID)
	require.True(t, ok)
	assert.NotZero(t, addr)
}

func TestBLASPassFailsAsAWhole(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 100, 300)
	require.NoError(t, err)
	set, err := NewBLASSet(ctx)
	require.NoError(t, err)

	packed, unpacked := quadMesh("packed"), quadMesh("unpacked")
	_, err = arena.Pack(packed)
	require.NoError(t, err)

	err = set.Build(arena, []*metadata.Mesh{packed, unpacked})
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
	assert.Equal(t, 0, set.Len())
	assert.False(t, set.Has(packed.ID))
	assert.Equal(t, 0, dev.Stats().LiveAccels)
}

func TestBLASSkipsMeshesWithoutTriangles(t *testing.T) {
	ctx, _ := newDevice(t, software.Options{})
	arena, err := NewMeshArena(ctx, 100, 300)
	require.NoError(t, err)
	set, err := NewBLASSet(ctx)
	require.NoError(t, err)

	empty := metadata.NewMesh("empty", nil, nil)
	_, err = arena.Pack(empty)
	require.NoError(t, err)
	require.NoError(t, set.Build(arena, []*metadata.Mesh{empty}))
	assert.False(t, set.Has(empty.ID))
}
