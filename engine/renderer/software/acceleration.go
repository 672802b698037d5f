package software

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
)

type accelLevel int

const (
	bottomLevel accelLevel = iota
	topLevel
)

type instance struct {
	record   gpu.AccelInstance
	blas     *accel
	toWorld  math.Mat4
	toObject math.Mat4
}

type accel struct {
	level   accelLevel
	label   string
	address uint64
	size    uint64
	bvh     *bvh

	triangles [][3]math.Vec3
	instances []instance
}

/** @brief A ray in world space. Mask is matched against each instance mask. */
type Ray struct {
	Origin    math.Vec3
	Direction math.Vec3
	TMin      float32
	TMax      float32
	Mask      uint8
}

func NewRay(origin, direction math.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction, TMax: math32.MaxFloat32, Mask: 0xFF}
}

/** @brief The closest hit of a ray query, as a hit shader would see it. */
type Hit struct {
	InstanceIndex  uint32
	CustomIndex    uint32
	PrimitiveIndex uint32
	Distance       float32
	Barycentrics   math.Vec2
}

func (d *Device) buildFailure(label string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: '%s': %s", core.ErrAccelerationBuildFailure, label, fmt.Sprintf(format, args...))
}

/**
 * @brief Reads the triangles from device memory the way a driver would and
 * builds a BVH over them. The geometry is copied, so the source buffers may
 * change afterwards without affecting the structure.
 */
func (d *Device) BuildBottomLevel(desc gpu.BottomLevelDesc) (gpu.AccelHandle, error) {
	if !d.features.RayTracing {
		return 0, core.ErrAccelerationUnsupported
	}
	g := desc.Geometry
	if g.TriangleCount == 0 {
		return 0, d.buildFailure(desc.Label, "no triangles")
	}
	if g.VertexStride < 12 {
		return 0, d.buildFailure(desc.Label, "vertex stride %d is smaller than a position", g.VertexStride)
	}
	indices, err := d.resolve(g.IndexAddress, uint64(g.TriangleCount)*12)
	if err != nil {
		return 0, d.buildFailure(desc.Label, "index data: %s", err)
	}
	vertices, err := d.resolve(g.VertexAddress, uint64(g.MaxVertex)*g.VertexStride+12)
	if err != nil {
		return 0, d.buildFailure(desc.Label, "vertex data: %s", err)
	}
	transform := math.NewMat4Identity()
	if g.TransformAddress != 0 {
		raw, err := d.resolve(g.TransformAddress, 48)
		if err != nil {
			return 0, d.buildFailure(desc.Label, "transform data: %s", err)
		}
		transform = math.NewMat4FromAffine3x4(readAffine(raw))
	}

	a := &accel{level: bottomLevel, label: desc.Label, triangles: make([][3]math.Vec3, g.TriangleCount)}
	bounds := make([]math.Extents3D, g.TriangleCount)
	for tri := range a.triangles {
		box := math.NewExtents3DEmpty()
		for k := 0; k < 3; k++ {
			idx := binary.LittleEndian.Uint32(indices[(tri*3+k)*4:])
			if idx > g.MaxVertex {
				return 0, d.buildFailure(desc.Label, "index %d of triangle %d exceeds max vertex %d", idx, tri, g.MaxVertex)
			}
			p := readVec3(vertices[uint64(idx)*g.VertexStride:]).Transform(transform)
			a.triangles[tri][k] = p
			box = box.Grow(p)
		}
		bounds[tri] = box
	}
	a.bvh = buildBVH(bounds)

	if err := d.commitAccel(a); err != nil {
		return 0, err
	}
	d.stats.BottomLevelBuilds++
	h := gpu.AccelHandle(d.handle())
	d.accels[h] = a
	return h, nil
}

/**
 * @brief Builds a BVH over the instances' world bounds. A refit re-reads the
 * instance records into the structure named by desc.Src and recomputes its
 * bounds; the instance count must not change.
 */
func (d *Device) BuildTopLevel(desc gpu.TopLevelDesc) (gpu.AccelHandle, error) {
	if !d.features.RayTracing {
		return 0, core.ErrAccelerationUnsupported
	}
	var raw []byte
	if desc.InstanceCount > 0 {
		var err error
		raw, err = d.resolve(desc.InstanceAddress, uint64(desc.InstanceCount)*gpu.AccelInstanceSize)
		if err != nil {
			return 0, d.buildFailure(desc.Label, "instance data: %s", err)
		}
	}
	instances := make([]instance, desc.InstanceCount)
	bounds := make([]math.Extents3D, desc.InstanceCount)
	for i := range instances {
		rec := gpu.DecodeAccelInstance(raw[i*gpu.AccelInstanceSize:])
		blas := d.accelByAddress(rec.BLASAddress)
		if blas == nil || blas.level != bottomLevel {
			return 0, d.buildFailure(desc.Label, "instance %d references unknown BLAS 0x%x", i, uint64(rec.BLASAddress))
		}
		toWorld := math.NewMat4FromAffine3x4(rec.Transform)
		toObject, ok := toWorld.InverseAffine()
		if !ok {
			return 0, d.buildFailure(desc.Label, "instance %d has a singular transform", i)
		}
		instances[i] = instance{record: rec, blas: blas, toWorld: toWorld, toObject: toObject}
		bounds[i] = blas.bvh.bounds().Transform(toWorld)
	}

	if desc.Mode == gpu.BuildModeUpdate {
		src, ok := d.accels[desc.Src]
		if !ok || src.level != topLevel {
			return 0, d.buildFailure(desc.Label, "refit source %d: %s", desc.Src, core.ErrInvalidHandle)
		}
		if len(src.instances) != len(instances) {
			return 0, d.buildFailure(desc.Label, "refit with %d instances, structure was built with %d", len(instances), len(src.instances))
		}
		src.instances = instances
		src.bvh.refit(bounds)
		d.stats.TopLevelRefits++
		return desc.Src, nil
	}

	a := &accel{level: topLevel, label: desc.Label, instances: instances, bvh: buildBVH(bounds)}
	if err := d.commitAccel(a); err != nil {
		return 0, err
	}
	d.stats.TopLevelBuilds++
	h := gpu.AccelHandle(d.handle())
	d.accels[h] = a
	return h, nil
}

// commitAccel accounts the structure's memory and gives it an address.
func (d *Device) commitAccel(a *accel) error {
	a.size = uint64(len(a.bvh.nodes))*48 + uint64(len(a.triangles))*36 + uint64(len(a.instances))*gpu.AccelInstanceSize
	if err := d.allocate(a.size, a.label); err != nil {
		return fmt.Errorf("%w: %w", core.ErrAccelerationBuildFailure, err)
	}
	a.address = d.address(a.size)
	return nil
}

func (d *Device) accelByAddress(addr gpu.DeviceAddress) *accel {
	for _, a := range d.accels {
		if gpu.DeviceAddress(a.address) == addr {
			return a
		}
	}
	return nil
}

func (d *Device) DestroyAccel(h gpu.AccelHandle) {
	a, ok := d.accels[h]
	if !ok {
		return
	}
	d.free(a.size)
	delete(d.accels, h)
}

func (d *Device) AccelAddress(h gpu.AccelHandle) gpu.DeviceAddress {
	if a, ok := d.accels[h]; ok {
		return gpu.DeviceAddress(a.address)
	}
	return 0
}

// InstanceCount reports how many instances a top-level structure holds.
func (d *Device) InstanceCount(h gpu.AccelHandle) (int, bool) {
	a, ok := d.accels[h]
	if !ok || a.level != topLevel {
		return 0, false
	}
	return len(a.instances), true
}

/**
 * @brief Returns the closest hit of the ray against a top-level structure.
 * Each candidate instance is entered by transforming the ray into object
 * space; the direction is not renormalized so distances stay in world units.
 */
func (d *Device) TraceRay(h gpu.AccelHandle, ray Ray) (Hit, bool, error) {
	tlas, ok := d.accels[h]
	if !ok || tlas.level != topLevel {
		return Hit{}, false, fmt.Errorf("trace ray against %d: %w", h, core.ErrInvalidHandle)
	}

	var best Hit
	found := tlas.bvh.closest(ray.Origin, ray.Direction, ray.TMin, ray.TMax, func(i int32, tMax float32) (float32, bool) {
		inst := &tlas.instances[i]
		if inst.record.Mask&ray.Mask == 0 {
			return 0, false
		}
		o := ray.Origin.Transform(inst.toObject)
		dir := ray.Direction.TransformDirection(inst.toObject)
		tris := inst.blas.triangles

		hit := false
		inst.blas.bvh.closest(o, dir, ray.TMin, tMax, func(p int32, tMax float32) (float32, bool) {
			t, u, v, ok := intersectTriangle(o, dir, tris[p], ray.TMin, tMax)
			if !ok {
				return 0, false
			}
			best = Hit{
				InstanceIndex:  uint32(i),
				CustomIndex:    inst.record.CustomIndex,
				PrimitiveIndex: uint32(p),
				Distance:       t,
				Barycentrics:   math.NewVec2(u, v),
			}
			hit = true
			return t, true
		})
		if !hit {
			return 0, false
		}
		return best.Distance, true
	})
	return best, found, nil
}

// intersectTriangle is the Möller-Trumbore test. Hits at exactly tMax are rejected.
func intersectTriangle(o, dir math.Vec3, tri [3]math.Vec3, tMin, tMax float32) (float32, float32, float32, bool) {
	e1 := tri[1].Sub(tri[0])
	e2 := tri[2].Sub(tri[0])
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < 1e-12 {
		return 0, 0, 0, false
	}
	inv := 1 / det
	s := o.Sub(tri[0])
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t := e2.Dot(q) * inv
	if t < tMin || t >= tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

func readVec3(b []byte) math.Vec3 {
	return math.NewVec3(
		math32.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math32.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math32.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	)
}

func readAffine(b []byte) [12]float32 {
	var out [12]float32
	for i := range out {
		out[i] = math32.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
