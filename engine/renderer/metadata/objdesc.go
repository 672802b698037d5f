package metadata

import "github.com/spaghettifunk/anima-rt/engine/math"

/**
 * @brief Per-instance record read by hit shaders. Element i describes the
 * TLAS instance whose custom index is i. The layout is std430 compatible:
 * 32 bytes, 16 byte aligned.
 */
type ObjDesc struct {
	/** @brief The material's albedo colour. */
	Albedo math.Vec4
	/** @brief First vertex of the mesh in the shared vertex buffer. */
	VertexOffset uint32
	/** @brief First index of the mesh in the shared index buffer. */
	IndexOffset uint32
	/** @brief Bindless slot of the albedo texture, or NoTexture. */
	TextureIndex int32
	_            uint32
}

/** @brief Size in bytes of one encoded ObjDesc. */
const ObjDescSize = 32
