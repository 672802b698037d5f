package software

import (
	"cmp"
	"slices"

	"github.com/spaghettifunk/anima-rt/engine/containers"
	"github.com/spaghettifunk/anima-rt/engine/math"
)

const bvhLeafSize = 4

/**
 * @brief A flattened BVH node. Inner nodes store both child indices, which
 * are always greater than the node's own index. A leaf has count > 0 and
 * covers prims[first : first+count].
 */
type bvhNode struct {
	bounds      math.Extents3D
	left, right int32
	first       int32
	count       int32
}

func (n *bvhNode) leaf() bool {
	return n.count > 0
}

type bvh struct {
	nodes []bvhNode
	prims []int32
}

// buildBVH splits primitives at the centroid median of the widest axis.
func buildBVH(bounds []math.Extents3D) *bvh {
	b := &bvh{prims: make([]int32, len(bounds))}
	for i := range b.prims {
		b.prims[i] = int32(i)
	}
	if len(bounds) == 0 {
		return b
	}

	type task struct {
		node, start, end int32
	}
	b.nodes = append(b.nodes, bvhNode{})
	tasks := containers.NewStack[task](32)
	tasks.Push(task{node: 0, start: 0, end: int32(len(bounds))})

	for t, ok := tasks.Pop(); ok; t, ok = tasks.Pop() {
		box := math.NewExtents3DEmpty()
		centroids := math.NewExtents3DEmpty()
		for _, p := range b.prims[t.start:t.end] {
			box = box.Union(bounds[p])
			centroids = centroids.Grow(bounds[p].Center())
		}

		count := t.end - t.start
		axis := widestAxis(centroids)
		if count <= bvhLeafSize || centroids.Max.Axis(axis) <= centroids.Min.Axis(axis) {
			b.nodes[t.node] = bvhNode{bounds: box, first: t.start, count: count}
			continue
		}

		span := b.prims[t.start:t.end]
		slices.SortFunc(span, func(x, y int32) int {
			return cmp.Compare(bounds[x].Center().Axis(axis), bounds[y].Center().Axis(axis))
		})
		mid := t.start + count/2
		left := int32(len(b.nodes))
		b.nodes = append(b.nodes, bvhNode{}, bvhNode{})
		b.nodes[t.node] = bvhNode{bounds: box, left: left, right: left + 1}
		tasks.Push(task{node: left + 1, start: mid, end: t.end})
		tasks.Push(task{node: left, start: t.start, end: mid})
	}
	return b
}

// refit recomputes every node's bounds bottom-up, keeping the topology.
func (b *bvh) refit(bounds []math.Extents3D) {
	for i := len(b.nodes) - 1; i >= 0; i-- {
		n := &b.nodes[i]
		if n.leaf() {
			box := math.NewExtents3DEmpty()
			for _, p := range b.prims[n.first : n.first+n.count] {
				box = box.Union(bounds[p])
			}
			n.bounds = box
			continue
		}
		n.bounds = b.nodes[n.left].bounds.Union(b.nodes[n.right].bounds)
	}
}

func (b *bvh) bounds() math.Extents3D {
	if len(b.nodes) == 0 {
		return math.NewExtents3DEmpty()
	}
	return b.nodes[0].bounds
}

/**
 * @brief Walks every leaf whose box the ray enters before tMax and calls hit
 * for each primitive. hit returns the new closest distance when it accepts a
 * primitive, which shrinks the interval for the rest of the walk.
 */
func (b *bvh) closest(origin, dir math.Vec3, tMin, tMax float32, hit func(prim int32, tMax float32) (float32, bool)) bool {
	if len(b.nodes) == 0 {
		return false
	}
	inv := math.NewVec3(1/dir.X, 1/dir.Y, 1/dir.Z)
	found := false
	stack := containers.NewStack[int32](64)
	stack.Push(0)
	for i, ok := stack.Pop(); ok; i, ok = stack.Pop() {
		n := &b.nodes[i]
		if !hitBox(n.bounds, origin, inv, tMin, tMax) {
			continue
		}
		if !n.leaf() {
			stack.Push(n.right)
			stack.Push(n.left)
			continue
		}
		for _, p := range b.prims[n.first : n.first+n.count] {
			if t, ok := hit(p, tMax); ok {
				tMax = t
				found = true
			}
		}
	}
	return found
}

func widestAxis(e math.Extents3D) int {
	size := e.Max.Sub(e.Min)
	switch {
	case size.X >= size.Y && size.X >= size.Z:
		return 0
	case size.Y >= size.Z:
		return 1
	default:
		return 2
	}
}

// hitBox is the slab test. NaNs from axis-parallel rays leave the interval untouched.
func hitBox(e math.Extents3D, origin, inv math.Vec3, tMin, tMax float32) bool {
	if e.Empty() {
		return false
	}
	for a := 0; a < 3; a++ {
		t1 := (e.Min.Axis(a) - origin.Axis(a)) * inv.Axis(a)
		t2 := (e.Max.Axis(a) - origin.Axis(a)) * inv.Axis(a)
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tMax {
			tMax = t2
		}
		if tMin > tMax {
			return false
		}
	}
	return true
}
