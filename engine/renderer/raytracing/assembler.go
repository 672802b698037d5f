package raytracing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

type State int

const (
	/** @brief No BLAS has been built yet. */
	StateUninitialized State = iota
	/** @brief Every scene mesh has a BLAS; the TLAS may be rebuilt any number of times. */
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Options struct {
	MaxVertices uint64
	MaxIndices  uint64
	/** @brief Refit the TLAS in place instead of rebuilding it when one exists. */
	Refit bool
}

/**
 * @brief Assembler owns the mesh arena, the BLAS set and the TLAS built from
 * one scene. Construction packs every mesh and builds every BLAS; Update then
 * rebuilds the TLAS from the current transforms on every call.
 */
type Assembler struct {
	ctx   *gpu.Context
	scene metadata.Scene
	opts  Options
	state State

	arena *MeshArena
	blas  *BLASSet
	tlas  *TLASBuilder
}

func New(ctx *gpu.Context, scene metadata.Scene, opts Options) (*Assembler, error) {
	if !ctx.Features().RayTracing {
		err := fmt.Errorf("device '%s': %w", ctx.Device.Name(), core.ErrAccelerationUnsupported)
		core.LogWarn(err.Error())
		return nil, err
	}
	arena, err := NewMeshArena(ctx, opts.MaxVertices, opts.MaxIndices)
	if err != nil {
		return nil, err
	}
	blas, err := NewBLASSet(ctx)
	if err != nil {
		arena.Destroy()
		return nil, err
	}
	a := &Assembler{
		ctx:   ctx,
		scene: scene,
		opts:  opts,
		state: StateUninitialized,
		arena: arena,
		blas:  blas,
		tlas:  NewTLASBuilder(ctx),
	}
	if err := a.Refresh(); err != nil {
		a.Destroy()
		return nil, err
	}
	a.state = StateReady
	core.LogInfo("ray-tracing assembler ready: %d meshes packed, %d BLAS", arena.Len(), blas.Len())
	return a, nil
}

/**
 * @brief Re-scans the scene, packs meshes the arena has not seen and builds
 * their BLAS. Call it after meshes are added to the scene.
 */
func (a *Assembler) Refresh() error {
	seen := make(map[uuid.UUID]struct{})
	var fresh []*metadata.Mesh
	for r := range a.scene.Renderables() {
		for _, mesh := range r.Meshes() {
			if _, ok := seen[mesh.ID]; ok {
				continue
			}
			seen[mesh.ID] = struct{}{}
			if a.blas.Has(mesh.ID) {
				continue
			}
			if _, err := a.arena.Pack(mesh); err != nil {
				return err
			}
			fresh = append(fresh, mesh)
		}
	}
	return a.blas.Build(a.arena, fresh)
}

/**
 * @brief Rebuilds the TLAS from the scene's current state. A failure means
 * the frame must not use ray tracing.
 */
func (a *Assembler) Update() error {
	if a.state != StateReady {
		return fmt.Errorf("assembler is %s: %w", a.state, core.ErrAccelerationBuildFailure)
	}
	return a.tlas.Build(a.scene, a.arena, a.blas, a.opts.Refit)
}

func (a *Assembler) State() State                   { return a.state }
func (a *Assembler) TopLevelAS() gpu.AccelHandle    { return a.tlas.Handle() }
func (a *Assembler) BigVertexBuffer() *gpu.Buffer   { return a.arena.VertexBuffer() }
func (a *Assembler) BigIndexBuffer() *gpu.Buffer    { return a.arena.IndexBuffer() }
func (a *Assembler) ObjDescs() []metadata.ObjDesc   { return a.tlas.ObjDescs() }
func (a *Assembler) ObjDescBuffer() *gpu.Buffer     { return a.tlas.ObjDescBuffer() }
func (a *Assembler) Instances() []gpu.AccelInstance { return a.tlas.Instances() }
func (a *Assembler) InstanceCount() int             { return len(a.tlas.Instances()) }
func (a *Assembler) Arena() *MeshArena              { return a.arena }
func (a *Assembler) BLAS() *BLASSet                 { return a.blas }

// Destroy frees every structure and buffer. The GPU must be idle.
func (a *Assembler) Destroy() {
	a.tlas.Destroy()
	a.blas.Destroy()
	a.arena.Destroy()
	a.state = StateUninitialized
}
