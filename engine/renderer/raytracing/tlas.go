package raytracing

import (
	"fmt"

	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

/**
 * @brief TLASBuilder rebuilds the instance list, the ObjDesc list and the
 * top-level structure from the scene. Instance i always has custom index i
 * and is described by ObjDescs()[i].
 *
 * Each build collects and uploads into a back set of lists and buffers. The
 * back set becomes the live one only once the structure is built, so a failed
 * build never changes what the live structure's object ids resolve to.
 */
type TLASBuilder struct {
	ctx    *gpu.Context
	handle gpu.AccelHandle

	instances []gpu.AccelInstance
	objDescs  []metadata.ObjDesc
	front     recordBuffers

	nextInstances []gpu.AccelInstance
	nextObjDescs  []metadata.ObjDesc
	back          recordBuffers

	scratch []byte
}

// recordBuffers holds the instance records and ObjDescs of one build.
type recordBuffers struct {
	instances *gpu.Buffer
	objDescs  *gpu.Buffer
	// capacity of both buffers, in records
	records int
}

func NewTLASBuilder(ctx *gpu.Context) *TLASBuilder {
	return &TLASBuilder{ctx: ctx}
}

/**
 * @brief Collects one instance per (renderable, mesh) pair whose mesh has a
 * BLAS, in scene order and mesh order. Meshes take the material at the same
 * position; when a renderable has fewer materials than meshes the last
 * material is reused. Meshes without a BLAS are skipped.
 */
func (b *TLASBuilder) collect(scene metadata.Scene, arena *MeshArena, blas *BLASSet) {
	instances := b.nextInstances[:0]
	objDescs := b.nextObjDescs[:0]
	fallback := metadata.DefaultMaterial()

	for r := range scene.Renderables() {
		transform := r.WorldTransform().Affine3x4()
		materials := r.Materials()
		for i, mesh := range r.Meshes() {
			address, ok := blas.Address(mesh.ID)
			if !ok {
				continue
			}
			off, _ := arena.Offsets(mesh.ID)

			material := fallback
			if len(materials) > 0 {
				material = materials[min(i, len(materials)-1)]
			}

			objectID := uint32(len(instances))
			instances = append(instances, gpu.AccelInstance{
				Transform:   transform,
				CustomIndex: objectID,
				Mask:        0xFF,
				Flags:       gpu.InstanceFlagTriangleCullDisable,
				BLASAddress: address,
			})
			objDescs = append(objDescs, metadata.ObjDesc{
				Albedo:       material.AlbedoColour,
				VertexOffset: off.VertexOffset,
				IndexOffset:  off.IndexOffset,
				TextureIndex: material.AlbedoTexture,
			})
		}
	}
	b.nextInstances = instances
	b.nextObjDescs = objDescs
}

/**
 * @brief Rebuilds the lists and uploads them, then builds the top-level
 * structure. With update set and a previous structure present it is refit in
 * place; if the refit fails the previous structure and its lists stay live.
 * Otherwise the old structure is destroyed first; if the new build fails,
 * TopLevelAS returns 0 and the lists are empty until the next successful
 * build. A failed upload leaves the previous build untouched.
 */
func (b *TLASBuilder) Build(scene metadata.Scene, arena *MeshArena, blas *BLASSet, update bool) error {
	b.collect(scene, arena, blas)
	if err := b.upload(); err != nil {
		return err
	}

	desc := gpu.TopLevelDesc{
		InstanceAddress: b.back.instances.Address(),
		InstanceCount:   uint32(len(b.nextInstances)),
		Label:           "tlas",
	}
	if update && b.handle != 0 {
		desc.Mode = gpu.BuildModeUpdate
		desc.Src = b.handle
	} else if b.handle != 0 {
		b.ctx.Device.DestroyAccel(b.handle)
		b.handle = 0
		b.instances = b.instances[:0]
		b.objDescs = b.objDescs[:0]
	}

	h, err := b.ctx.Device.BuildTopLevel(desc)
	if err != nil {
		err = fmt.Errorf("failed to build TLAS with %d instances: %w", len(b.nextInstances), err)
		core.LogError(err.Error())
		return err
	}
	b.handle = h
	b.instances, b.nextInstances = b.nextInstances, b.instances
	b.objDescs, b.nextObjDescs = b.nextObjDescs, b.objDescs
	b.front, b.back = b.back, b.front
	return nil
}

// upload writes the collected records into the back buffers, growing them when needed.
func (b *TLASBuilder) upload() error {
	count := len(b.nextInstances)
	if count > b.back.records || b.back.instances == nil {
		if err := b.grow(&b.back, max(count, 1)); err != nil {
			return err
		}
	}
	if count == 0 {
		return nil
	}

	need := count * gpu.AccelInstanceSize
	if cap(b.scratch) < need {
		b.scratch = make([]byte, need)
	}
	b.scratch = b.scratch[:need]
	for i, inst := range b.nextInstances {
		inst.Encode(b.scratch[i*gpu.AccelInstanceSize:])
	}
	if err := b.back.instances.Fill(b.scratch); err != nil {
		return err
	}
	return b.back.objDescs.Fill(gpu.Bytes(b.nextObjDescs))
}

func (b *TLASBuilder) grow(set *recordBuffers, records int) error {
	size := 1
	for size < records {
		size <<= 1
	}
	instances, err := gpu.NewBuffer(b.ctx, gpu.BufferDesc{
		Size:   uint64(size) * gpu.AccelInstanceSize,
		Usage:  gpu.BufferUsageDeviceAddress | gpu.BufferUsageAccelerationInput,
		Memory: gpu.MemoryHostVisible,
		Label:  "tlas-instances",
	})
	if err != nil {
		return err
	}
	objDescs, err := gpu.NewBuffer(b.ctx, gpu.BufferDesc{
		Size:   uint64(size) * metadata.ObjDescSize,
		Usage:  gpu.BufferUsageStorage | gpu.BufferUsageDeviceAddress,
		Memory: gpu.MemoryHostVisible,
		Label:  "obj-descs",
	})
	if err != nil {
		instances.Destroy()
		return err
	}
	set.destroy()
	set.instances = instances
	set.objDescs = objDescs
	set.records = size
	return nil
}

func (set *recordBuffers) destroy() {
	if set.instances != nil {
		set.instances.Destroy()
		set.instances = nil
	}
	if set.objDescs != nil {
		set.objDescs.Destroy()
		set.objDescs = nil
	}
	set.records = 0
}

func (b *TLASBuilder) Handle() gpu.AccelHandle { return b.handle }

// Instances returns the records of the last build, indexed by object id.
func (b *TLASBuilder) Instances() []gpu.AccelInstance { return b.instances }

// ObjDescs returns the descriptors of the last build, indexed by object id.
func (b *TLASBuilder) ObjDescs() []metadata.ObjDesc { return b.objDescs }

func (b *TLASBuilder) ObjDescBuffer() *gpu.Buffer { return b.front.objDescs }

func (b *TLASBuilder) Destroy() {
	if b.handle != 0 {
		b.ctx.Device.DestroyAccel(b.handle)
		b.handle = 0
	}
	b.front.destroy()
	b.back.destroy()
}
