package math

import (
	"errors"

	"github.com/spaghettifunk/anima-rt/engine/containers"
)

var ErrTransformCycle = errors.New("transform parent would create a cycle")

/**
 * @brief Represents the transform of an object in the world.
 * Transforms form a tree: each node keeps a reference to its parent and its
 * children. Local and world matrices are cached. Changing a node's local
 * properties invalidates its own world matrix and those of every descendant;
 * a dirty node always has dirty descendants, so invalidation stops at the
 * first node that is already dirty.
 */
type Transform struct {
	position Vec3
	rotation Quaternion
	scale    Vec3

	local      Mat4
	world      Mat4
	localDirty bool
	worldDirty bool

	parent   *Transform
	children []*Transform
}

func TransformCreate() *Transform {
	return TransformFromPositionRotationScale(NewVec3Zero(), NewQuatIdentity(), NewVec3One())
}

func TransformFromPosition(position Vec3) *Transform {
	return TransformFromPositionRotationScale(position, NewQuatIdentity(), NewVec3One())
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) *Transform {
	return &Transform{
		position:   position,
		rotation:   rotation,
		scale:      scale,
		local:      NewMat4Identity(),
		world:      NewMat4Identity(),
		localDirty: true,
		worldDirty: true,
	}
}

func (t *Transform) Position() Vec3       { return t.position }
func (t *Transform) Rotation() Quaternion { return t.rotation }
func (t *Transform) Scale() Vec3          { return t.scale }
func (t *Transform) Parent() *Transform   { return t.parent }

// Children returns the direct children in attachment order.
func (t *Transform) Children() []*Transform {
	out := make([]*Transform, len(t.children))
	copy(out, t.children)
	return out
}

func (t *Transform) SetPosition(position Vec3) {
	t.position = position
	t.markLocalDirty()
}

func (t *Transform) Translate(translation Vec3) {
	t.position = t.position.Add(translation)
	t.markLocalDirty()
}

func (t *Transform) SetRotation(rotation Quaternion) {
	t.rotation = rotation
	t.markLocalDirty()
}

func (t *Transform) Rotate(rotation Quaternion) {
	t.rotation = t.rotation.Mul(rotation)
	t.markLocalDirty()
}

func (t *Transform) SetScale(scale Vec3) {
	t.scale = scale
	t.markLocalDirty()
}

func (t *Transform) SetPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) {
	t.position = position
	t.rotation = rotation
	t.scale = scale
	t.markLocalDirty()
}

// SetParent re-parents t. A nil parent detaches it.
func (t *Transform) SetParent(parent *Transform) error {
	for p := parent; p != nil; p = p.parent {
		if p == t {
			return ErrTransformCycle
		}
	}
	if t.parent != nil {
		siblings := t.parent.children
		for i, c := range siblings {
			if c == t {
				t.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	t.parent = parent
	if parent != nil {
		parent.children = append(parent.children, t)
	}
	t.invalidateWorld()
	return nil
}

// Dirty reports whether the cached world matrix must be recomputed.
func (t *Transform) Dirty() bool {
	return t.worldDirty
}

// GetLocal returns the local matrix: scale, then rotation, then translation.
func (t *Transform) GetLocal() Mat4 {
	if t == nil {
		return NewMat4Identity()
	}
	if t.localDirty {
		s := NewMat4Scale(t.scale)
		r := t.rotation.ToMat4()
		tr := NewMat4Translation(t.position)
		t.local = s.Mul(r).Mul(tr)
		t.localDirty = false
	}
	return t.local
}

// GetWorld returns the cached world matrix, recomputing only the dirty part
// of the ancestor chain, top-down.
func (t *Transform) GetWorld() Mat4 {
	if t == nil {
		return NewMat4Identity()
	}
	if !t.worldDirty {
		return t.world
	}

	chain := containers.NewStack[*Transform](8)
	for n := t; n != nil && n.worldDirty; n = n.parent {
		chain.Push(n)
	}
	for n, ok := chain.Pop(); ok; n, ok = chain.Pop() {
		if n.parent != nil {
			n.world = n.GetLocal().Mul(n.parent.world)
		} else {
			n.world = n.GetLocal()
		}
		n.worldDirty = false
	}
	return t.world
}

// Walk visits t and its descendants depth-first, parents before children and
// children in attachment order. Returning false from fn skips that node's subtree.
func (t *Transform) Walk(fn func(*Transform) bool) {
	stack := containers.NewStack[*Transform](16)
	stack.Push(t)
	for n, ok := stack.Pop(); ok; n, ok = stack.Pop() {
		if !fn(n) {
			continue
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack.Push(n.children[i])
		}
	}
}

func (t *Transform) markLocalDirty() {
	t.localDirty = true
	t.invalidateWorld()
}

func (t *Transform) invalidateWorld() {
	stack := containers.NewStack[*Transform](16)
	stack.Push(t)
	for n, ok := stack.Pop(); ok; n, ok = stack.Pop() {
		if n.worldDirty && n != t {
			continue
		}
		n.worldDirty = true
		for _, c := range n.children {
			stack.Push(c)
		}
	}
}
