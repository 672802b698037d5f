package raytracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-rt/engine/renderer/software"
)

var smallArena = Options{MaxVertices: 4096, MaxIndices: 16384}

func TestAssemblerTwoEntityScenario(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	scene := &testScene{}
	scene.add(math.NewVec3(0, 0, -5), []*metadata.Mesh{quadMesh("a")}, colour(1, 0, 0))
	scene.add(math.NewVec3(0, 0, -9), []*metadata.Mesh{quadMesh("b")}, colour(0, 1, 0))

	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)
	assert.Equal(t, StateReady, asm.State())
	require.NoError(t, asm.Update())

	assert.Len(t, asm.ObjDescs(), 2)
	n, ok := dev.InstanceCount(asm.TopLevelAS())
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, asm.InstanceCount())
}

func TestAssemblerInstanceCountIsNTimesM(t *testing.T) {
	const entities, meshesPerEntity = 4, 3
	ctx, dev := newDevice(t, software.Options{})
	scene := &testScene{}
	var order []*metadata.Mesh
	for e := 0; e < entities; e++ {
		var meshes []*metadata.Mesh
		var materials []*metadata.Material
		for m := 0; m < meshesPerEntity; m++ {
			mesh := stripMesh("strip", 4+e*meshesPerEntity+m)
			meshes = append(meshes, mesh)
			materials = append(materials, colour(float32(e), float32(m), 0))
			order = append(order, mesh)
		}
		scene.add(math.NewVec3(float32(e)*3, 0, 0), meshes, materials...)
	}

	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)
	require.NoError(t, asm.Update())

	count, ok := dev.InstanceCount(asm.TopLevelAS())
	require.True(t, ok)
	require.Equal(t, entities*meshesPerEntity, count)
	require.Len(t, asm.ObjDescs(), count)
	require.Len(t, asm.Instances(), count)

	for i, inst := range asm.Instances() {
		assert.Equal(t, uint32(i), inst.CustomIndex, "object id is the position in both lists")
		off, ok := asm.Arena().Offsets(order[i].ID)
		require.True(t, ok)
		desc := asm.ObjDescs()[i]
		assert.Equal(t, off.VertexOffset, desc.VertexOffset)
		assert.Equal(t, off.IndexOffset, desc.IndexOffset)
		assert.Equal(t, math.NewVec4(float32(i/meshesPerEntity), float32(i%meshesPerEntity), 0, 1), desc.Albedo)
		addr, _ := asm.BLAS().Address(order[i].ID)
		assert.Equal(t, addr, inst.BLASAddress)
	}

	uploaded := dev.BufferData(asm.ObjDescBuffer().Handle())
	assert.Equal(t, gpu.Bytes(asm.ObjDescs()), uploaded[:count*metadata.ObjDescSize])
}

func TestSharedMeshIsPackedOnce(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	shared := quadMesh("shared")
	scene := &testScene{}
	for i := 0; i < 5; i++ {
		scene.add(math.NewVec3(float32(i)*3, 0, 0), []*metadata.Mesh{shared})
	}
	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)
	require.NoError(t, asm.Update())

	assert.Equal(t, 1, asm.Arena().Len())
	assert.Equal(t, uint64(1), dev.Stats().BottomLevelBuilds)
	assert.Equal(t, 5, asm.InstanceCount())
	for _, d := range asm.ObjDescs() {
		assert.Equal(t, metadata.NoTexture, d.TextureIndex)
		assert.Equal(t, math.NewVec4One(), d.Albedo, "renderables without materials use the default material")
	}
}

func TestMeshesWithoutBLASAreSkipped(t *testing.T) {
	ctx, _ := newDevice(t, software.Options{})
	scene := &testScene{}
	scene.add(math.NewVec3Zero(), []*metadata.Mesh{quadMesh("built")}, colour(1, 1, 1))
	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)

	late := quadMesh("late")
	scene.add(math.NewVec3(0, 0, -3), []*metadata.Mesh{late}, colour(0, 0, 1))
	require.NoError(t, asm.Update())
	assert.Equal(t, 1, asm.InstanceCount())

	require.NoError(t, asm.Refresh())
	require.NoError(t, asm.Update())
	assert.Equal(t, 2, asm.InstanceCount())
	assert.True(t, asm.BLAS().Has(late.ID))
}

// Reusing the last material when a renderer has fewer materials than
// meshes is the established behaviour; this pins it down.
func TestMaterialsClampToLast(t *testing.T) {
	ctx, _ := newDevice(t, software.Options{})
	red, green := colour(1, 0, 0), colour(0, 1, 0)
	scene := &testScene{}
	scene.add(math.NewVec3Zero(), []*metadata.Mesh{quadMesh("0"), quadMesh("1"), quadMesh("2")}, red, green)

	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)
	require.NoError(t, asm.Update())

	descs := asm.ObjDescs()
	require.Len(t, descs, 3)
	assert.Equal(t, red.AlbedoColour, descs[0].Albedo)
	assert.Equal(t, green.AlbedoColour, descs[1].Albedo)
	assert.Equal(t, green.AlbedoColour, descs[2].Albedo)
}

func TestHitResolvesObjDescByObjectID(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	near, far := colour(1, 0, 0), colour(0, 0, 1)
	far.AlbedoTexture = 7
	scene := &testScene{}
	scene.add(math.NewVec3(5, 0, -4), []*metadata.Mesh{quadMesh("near")}, near)
	scene.add(math.NewVec3(0, 0, -10), []*metadata.Mesh{stripMesh("filler", 5), quadMesh("far")}, colour(0, 1, 0), far)

	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)
	require.NoError(t, asm.Update())

	hit, ok, err := dev.TraceRay(asm.TopLevelAS(), software.NewRay(math.NewVec3(-0.5, 0.5, 0), math.NewVec3(0, 0, -1)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 10, hit.Distance, 1e-4)

	desc := asm.ObjDescs()[hit.CustomIndex]
	assert.Equal(t, far.AlbedoColour, desc.Albedo)
	assert.Equal(t, int32(7), desc.TextureIndex)

	// the hit triangle's indices, read back through the ObjDesc offsets
	indices := dev.BufferData(asm.BigIndexBuffer().Handle())
	assert.Equal(t, uint32(1), hit.PrimitiveIndex)
	first := (uint64(desc.IndexOffset) + uint64(hit.PrimitiveIndex)*3) * IndexStride
	assert.Equal(t, gpu.Bytes([]uint32{0, 2, 3}), indices[first:first+3*IndexStride])
}

func TestUpdateFollowsTransforms(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	scene := &testScene{}
	e := scene.add(math.NewVec3(0, 0, -5), []*metadata.Mesh{quadMesh("q")})
	asm, err := New(ctx, scene, smallArena)
	require.NoError(t, err)

	ray := software.NewRay(math.NewVec3(0.5, -0.5, 0), math.NewVec3(0, 0, -1))
	for _, z := range []float32{-5, -8, -2} {
		e.world = math.NewMat4Translation(math.NewVec3(0, 0, z))
		require.NoError(t, asm.Update())
		hit, ok, err := dev.TraceRay(asm.TopLevelAS(), ray)
		require.NoError(t, err)
		require.True(t, ok)
		assert.InDelta(t, -z, hit.Distance, 1e-4)
	}
	stats := dev.Stats()
	assert.Equal(t, uint64(3), stats.TopLevelBuilds, "every update is a full rebuild")
	assert.Zero(t, stats.TopLevelRefits)
	assert.Equal(t, 2, stats.LiveAccels, "one BLAS and the current TLAS")
}

func TestRefitKeepsHandleAndSurvivesFailure(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	scene := &testScene{}
	e := scene.add(math.NewVec3(0, 0, -5), []*metadata.Mesh{quadMesh("q")}, colour(1, 0, 0))
	opts := smallArena
	opts.Refit = true
	asm, err := New(ctx, scene, opts)
	require.NoError(t, err)

	require.NoError(t, asm.Update())
	first := asm.TopLevelAS()
	e.world = math.NewMat4Translation(math.NewVec3(0, 0, -7))
	require.NoError(t, asm.Update())
	assert.Equal(t, first, asm.TopLevelAS())
	assert.Equal(t, uint64(1), dev.Stats().TopLevelRefits)

	// a new entity in front of the old one changes the instance count
	blue := &entity{world: math.NewMat4Translation(math.NewVec3(0, 0, -3)), meshes: e.meshes, materials: []*metadata.Material{colour(0, 0, 1)}}
	scene.entities = append([]*entity{blue}, scene.entities...)
	liveBuffer := asm.ObjDescBuffer()
	err = asm.Update()
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
	assert.Equal(t, first, asm.TopLevelAS(), "a failed refit leaves the previous structure valid")

	n, ok := dev.InstanceCount(asm.TopLevelAS())
	require.True(t, ok)
	require.Len(t, asm.ObjDescs(), n)
	assert.Equal(t, 1, asm.InstanceCount())
	assert.Equal(t, math.NewVec4(1, 0, 0, 1), asm.ObjDescs()[0].Albedo)
	assert.Same(t, liveBuffer, asm.ObjDescBuffer())
	assert.Equal(t, gpu.Bytes(asm.ObjDescs()), dev.BufferData(liveBuffer.Handle())[:metadata.ObjDescSize])

	hit, ok, err := dev.TraceRay(asm.TopLevelAS(), software.NewRay(math.NewVec3(0.5, -0.5, 0), math.NewVec3(0, 0, -1)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 7, hit.Distance, 1e-4)
}

func TestFailedRebuildInvalidatesHandle(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{MemoryBudget: 1 << 20})
	scene := &testScene{}
	mesh := quadMesh("q")
	scene.add(math.NewVec3Zero(), []*metadata.Mesh{mesh})
	scene.add(math.NewVec3(3, 0, 0), []*metadata.Mesh{mesh})
	asm, err := New(ctx, scene, Options{MaxVertices: 64, MaxIndices: 192})
	require.NoError(t, err)
	require.NoError(t, asm.Update())

	second := scene.entities[1]
	scene.entities = scene.entities[:1]
	require.NoError(t, asm.Update())

	// use up the rest of the budget so only the one-instance TLAS fits
	stats := dev.Stats()
	_, err = dev.CreateBuffer(gpu.BufferDesc{Size: (1 << 20) - stats.BytesAllocated})
	require.NoError(t, err)

	scene.entities = append(scene.entities, second)
	err = asm.Update()
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
	assert.ErrorIs(t, err, core.ErrOutOfDeviceMemory)
	assert.Zero(t, asm.TopLevelAS(), "the old structure was freed before the failed build")
	assert.Empty(t, asm.ObjDescs())
	assert.Zero(t, asm.InstanceCount())

	// the next successful build makes both lists live again
	scene.entities = scene.entities[:1]
	require.NoError(t, asm.Update())
	n, ok := dev.InstanceCount(asm.TopLevelAS())
	require.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Len(t, asm.ObjDescs(), 1)
}

func TestNewRequiresRayTracing(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{DisableRayTracing: true})
	_, err := New(ctx, &testScene{}, smallArena)
	assert.ErrorIs(t, err, core.ErrAccelerationUnsupported)
	assert.Equal(t, 0, dev.Stats().LiveBuffers)
}

func TestNewFailsWhenSceneOverflowsArena(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	scene := &testScene{}
	scene.add(math.NewVec3Zero(), []*metadata.Mesh{stripMesh("big", 100)})
	_, err := New(ctx, scene, Options{MaxVertices: 50, MaxIndices: 1000})
	assert.ErrorIs(t, err, core.ErrArenaExhausted)
	stats := dev.Stats()
	assert.Equal(t, 0, stats.LiveBuffers)
	assert.Equal(t, 0, stats.LiveAccels)
}

func TestEmptySceneBuildsEmptyTLAS(t *testing.T) {
	ctx, dev := newDevice(t, software.Options{})
	asm, err := New(ctx, &testScene{}, smallArena)
	require.NoError(t, err)
	require.NoError(t, asm.Update())
	n, ok := dev.InstanceCount(asm.TopLevelAS())
	require.True(t, ok)
	assert.Zero(t, n)

	asm.Destroy()
	assert.Equal(t, StateUninitialized, asm.State())
	assert.Equal(t, 0, dev.Stats().LiveBuffers)
	assert.Equal(t, 0, dev.Stats().LiveAccels)
}
