package metadata

import "github.com/spaghettifunk/anima-rt/engine/math"

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/** @brief Bindless slot value meaning "no texture". */
const NoTexture int32 = -1

/**
 * @brief The surface properties ray-tracing hit shaders read through ObjDesc.
 */
type Material struct {
	/** @brief The material name. */
	Name string
	/** @brief The albedo colour, multiplied with the albedo texture when present. */
	AlbedoColour math.Vec4
	/** @brief Bindless slot of the albedo texture, or NoTexture. */
	AlbedoTexture int32
}

func NewMaterial(name string, albedo math.Vec4) *Material {
	return &Material{
		Name:          name,
		AlbedoColour:  albedo,
		AlbedoTexture: NoTexture,
	}
}

// DefaultMaterial is white and untextured.
func DefaultMaterial() *Material {
	return NewMaterial(DefaultMaterialName, math.NewVec4One())
}
