package scene

import (
	"errors"
	"iter"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-rt/engine/core"
	"github.com/spaghettifunk/anima-rt/engine/math"
	"github.com/spaghettifunk/anima-rt/engine/renderer/metadata"
)

var ErrForeignEntity = errors.New("entity belongs to another scene")

/**
 * @brief The meshes an entity draws, paired with materials by position.
 */
type MeshRenderer struct {
	Meshes    []*metadata.Mesh
	Materials []*metadata.Material
}

/**
 * @brief An entity is a node of the scene hierarchy. It always has a
 * transform; the mesh renderer is optional.
 */
type Entity struct {
	ID           uuid.UUID
	Name         string
	Transform    *math.Transform
	MeshRenderer *MeshRenderer

	scene *Scene
}

func (e *Entity) WorldTransform() math.Mat4 {
	return e.Transform.GetWorld()
}

func (e *Entity) Meshes() []*metadata.Mesh {
	if e.MeshRenderer == nil {
		return nil
	}
	return e.MeshRenderer.Meshes
}

func (e *Entity) Materials() []*metadata.Material {
	if e.MeshRenderer == nil {
		return nil
	}
	return e.MeshRenderer.Materials
}

// Parent returns the parent entity, or nil for a root.
func (e *Entity) Parent() *Entity {
	p := e.Transform.Parent()
	if p == nil {
		return nil
	}
	return e.scene.byTransform[p]
}

/**
 * @brief Scene keeps entities in insertion order, which is the order every
 * iteration yields them in.
 */
type Scene struct {
	entities    []*Entity
	byID        map[uuid.UUID]*Entity
	byTransform map[*math.Transform]*Entity
}

func New() *Scene {
	return &Scene{
		byID:        make(map[uuid.UUID]*Entity),
		byTransform: make(map[*math.Transform]*Entity),
	}
}

func (s *Scene) CreateEntity(name string) *Entity {
	e := &Entity{
		ID:        uuid.New(),
		Name:      name,
		Transform: math.TransformCreate(),
		scene:     s,
	}
	s.entities = append(s.entities, e)
	s.byID[e.ID] = e
	s.byTransform[e.Transform] = e
	return e
}

// CreateRenderable creates an entity at position drawing the given meshes.
func (s *Scene) CreateRenderable(name string, position math.Vec3, meshes []*metadata.Mesh, materials ...*metadata.Material) *Entity {
	e := s.CreateEntity(name)
	e.Transform.SetPosition(position)
	e.MeshRenderer = &MeshRenderer{Meshes: meshes, Materials: materials}
	return e
}

// SetParent attaches child under parent, or makes it a root when parent is nil.
func (s *Scene) SetParent(child, parent *Entity) error {
	if child.scene != s || (parent != nil && parent.scene != s) {
		return ErrForeignEntity
	}
	var pt *math.Transform
	if parent != nil {
		pt = parent.Transform
	}
	return child.Transform.SetParent(pt)
}

/**
 * @brief Removes the entity. Its children become roots and keep their local
 * transforms.
 */
func (s *Scene) Remove(e *Entity) {
	if _, ok := s.byID[e.ID]; !ok {
		return
	}
	for _, c := range e.Transform.Children() {
		if err := c.SetParent(nil); err != nil {
			core.LogWarn("failed to detach child of '%s': %s", e.Name, err)
		}
	}
	if err := e.Transform.SetParent(nil); err != nil {
		core.LogWarn("failed to detach '%s': %s", e.Name, err)
	}
	for i, other := range s.entities {
		if other == e {
			s.entities = append(s.entities[:i], s.entities[i+1:]...)
			break
		}
	}
	delete(s.byID, e.ID)
	delete(s.byTransform, e.Transform)
	e.scene = nil
}

func (s *Scene) Get(id uuid.UUID) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *Scene) Len() int {
	return len(s.entities)
}

// Entities yields every entity in insertion order.
func (s *Scene) Entities() iter.Seq[*Entity] {
	return func(yield func(*Entity) bool) {
		for _, e := range s.entities {
			if !yield(e) {
				return
			}
		}
	}
}

// Renderables yields the entities carrying a mesh renderer, in insertion order.
func (s *Scene) Renderables() iter.Seq[metadata.Renderable] {
	return func(yield func(metadata.Renderable) bool) {
		for _, e := range s.entities {
			if e.MeshRenderer == nil {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

/**
 * @brief Visits the hierarchy depth-first: roots in insertion order, each
 * followed by its descendants. Returning false skips the entity's subtree.
 */
func (s *Scene) Walk(fn func(e *Entity, depth int) bool) {
	depths := make(map[*math.Transform]int)
	for _, root := range s.entities {
		if root.Transform.Parent() != nil {
			continue
		}
		root.Transform.Walk(func(t *math.Transform) bool {
			depth := 0
			if p := t.Parent(); p != nil {
				depth = depths[p] + 1
			}
			depths[t] = depth
			e, ok := s.byTransform[t]
			if !ok {
				return false
			}
			return fn(e, depth)
		})
	}
}
