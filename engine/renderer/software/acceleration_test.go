package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

// quad builds a BLAS for a 2x2 quad in the XY plane, centred on the origin.
func quad(t *testing.T, d *Device) gpu.AccelHandle {
	t.Helper()
	positions := []math.Vec3{
		math.NewVec3(-1, -1, 0),
		math.NewVec3(1, -1, 0),
		math.NewVec3(1, 1, 0),
		math.NewVec3(-1, 1, 0),
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	vb := hostBuffer(t, d, gpu.Bytes(positions))
	ib := hostBuffer(t, d, gpu.Bytes(indices))

	h, err := d.BuildBottomLevel(gpu.BottomLevelDesc{
		Geometry: gpu.TriangleGeometry{
			VertexAddress: d.BufferAddress(vb),
			VertexStride:  12,
			MaxVertex:     3,
			IndexAddress:  d.BufferAddress(ib),
			TriangleCount: 2,
			Opaque:        true,
		},
		Label: "quad",
	})
	require.NoError(t, err)
	return h
}

func instances(d *Device, blas gpu.AccelHandle, depths ...float32) []byte {
	out := make([]byte, len(depths)*gpu.AccelInstanceSize)
	for i, z := range depths {
		gpu.AccelInstance{
			Transform:   math.NewMat4Translation(math.NewVec3(0, 0, z)).Affine3x4(),
			CustomIndex: uint32(i),
			Mask:        0xFF,
			BLASAddress: d.AccelAddress(blas),
		}.Encode(out[i*gpu.AccelInstanceSize:])
	}
	return out
}

func TestTraceRayFindsClosestInstance(t *testing.T) {
	d := New(Options{})
	blas := quad(t, d)
	buf := hostBuffer(t, d, instances(d, blas, -10, -5))

	tlas, err := d.BuildTopLevel(gpu.TopLevelDesc{InstanceAddress: d.BufferAddress(buf), InstanceCount: 2})
	require.NoError(t, err)
	n, ok := d.InstanceCount(tlas)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	hit, ok, err := d.TraceRay(tlas, NewRay(math.NewVec3(0.5, -0.5, 0), math.NewVec3(0, 0, -1)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), hit.InstanceIndex)
	assert.Equal(t, uint32(1), hit.CustomIndex)
	assert.Equal(t, uint32(0), hit.PrimitiveIndex)
	assert.InDelta(t, 5, hit.Distance, 1e-4)

	_, ok, err = d.TraceRay(tlas, NewRay(math.NewVec3(3, 0, 0), math.NewVec3(0, 0, -1)))
	require.NoError(t, err)
	assert.False(t, ok)

	ray := NewRay(math.NewVec3(0.5, -0.5, 0), math.NewVec3(0, 0, -1))
	ray.Mask = 0
	_, ok, err = d.TraceRay(tlas, ray)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTopLevelRefit(t *testing.T) {
	d := New(Options{})
	blas := quad(t, d)
	buf := hostBuffer(t, d, instances(d, blas, -5))
	addr := d.BufferAddress(buf)

	tlas, err := d.BuildTopLevel(gpu.TopLevelDesc{InstanceAddress: addr, InstanceCount: 1})
	require.NoError(t, err)

	mem, err := d.MapBuffer(buf)
	require.NoError(t, err)
	copy(mem, instances(d, blas, -20))
	d.UnmapBuffer(buf)

	refit, err := d.BuildTopLevel(gpu.TopLevelDesc{InstanceAddress: addr, InstanceCount: 1, Mode: gpu.BuildModeUpdate, Src: tlas})
	require.NoError(t, err)
	assert.Equal(t, tlas, refit)
	assert.Equal(t, uint64(1), d.Stats().TopLevelRefits)

	hit, ok, err := d.TraceRay(tlas, NewRay(math.NewVec3(0.5, -0.5, 0), math.NewVec3(0, 0, -1)))
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 20, hit.Distance, 1e-4)

	_, err = d.BuildTopLevel(gpu.TopLevelDesc{InstanceAddress: addr, InstanceCount: 0, Mode: gpu.BuildModeUpdate, Src: tlas})
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
}

func TestBottomLevelRejectsBadGeometry(t *testing.T) {
	d := New(Options{})
	vb := hostBuffer(t, d, gpu.Bytes([]math.Vec3{{}, {X: 1}, {Y: 1}}))
	ib := hostBuffer(t, d, gpu.Bytes([]uint32{0, 1, 7}))

	_, err := d.BuildBottomLevel(gpu.BottomLevelDesc{Geometry: gpu.TriangleGeometry{
		VertexAddress: d.BufferAddress(vb),
		VertexStride:  12,
		MaxVertex:     2,
		IndexAddress:  d.BufferAddress(ib),
		TriangleCount: 1,
	}})
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)

	_, err = d.BuildTopLevel(gpu.TopLevelDesc{InstanceAddress: d.BufferAddress(vb), InstanceCount: 1})
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
}

func TestRayTracingDisabled(t *testing.T) {
	d := New(Options{DisableRayTracing: true})
	assert.False(t, d.Features().RayTracing)
	_, err := d.BuildBottomLevel(gpu.BottomLevelDesc{})
	assert.ErrorIs(t, err, core.ErrAccelerationUnsupported)
	assert.ErrorIs(t, err, core.ErrAccelerationBuildFailure)
}

func TestBVHRefitKeepsTopology(t *testing.T) {
	bounds := make([]math.Extents3D, 20)
	for i := range bounds {
		p := math.NewVec3(float32(i), 0, 0)
		bounds[i] = math.NewExtents3DEmpty().Grow(p).Grow(p.Add(math.NewVec3One()))
	}
	b := buildBVH(bounds)
	nodes := len(b.nodes)
	assert.Greater(t, nodes, 1)
	assert.True(t, b.bounds().Max.Compare(math.NewVec3(20, 1, 1), 0))

	for i := range bounds {
		bounds[i].Max.Y = 5
	}
	b.refit(bounds)
	assert.Equal(t, nodes, len(b.nodes))
	assert.Equal(t, float32(5), b.bounds().Max.Y)
}
