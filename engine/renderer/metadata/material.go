package metadata

import "github.com/go-gl/mathgl/mgl32"

/** @brief The name of the default material. */
const DefaultMaterialName string = "default"

/**
 * @brief Material parameter block as read by the geometry fragment shader (std140 uniform).
 */
type MaterialParams struct {
	BaseColor mgl32.Vec4
	Specular  mgl32.Vec4
	Occlusion float32
	Roughness float32
	Metallic  float32
	_         float32
}

/**
 * @brief A material owns one descriptor set bound at set 0 of the geometry pipeline.
 */
type Material struct {
	Name          string
	Params        MaterialParams
	ParamsBuffer  BufferHandle
	DescriptorSet DescriptorSetHandle
}
