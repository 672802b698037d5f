package metadata

import (
	"iter"

	"github.com/spaghettifunk/anima-rt/engine/math"
)

/**
 * @brief An entity carrying a mesh renderer, as seen by the renderer.
 * Meshes and materials pair up by position.
 */
type Renderable interface {
	WorldTransform() math.Mat4
	Meshes() []*Mesh
	Materials() []*Material
}

/**
 * @brief Read-only view of the scene for one build pass. Renderables must
 * yield entities in the same order on every call while the scene is unchanged.
 */
type Scene interface {
	Renderables() iter.Seq[Renderable]
}
