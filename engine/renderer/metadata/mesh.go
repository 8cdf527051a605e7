package metadata

/**
 * @brief A contiguous index range of a mesh drawn with one material.
 */
type Surface struct {
	FirstIndex uint32
	IndexCount uint32
	Material   *Material
}

/**
 * @brief Device-resident geometry. Vertices are read by address in the vertex stage, so
 * only the index buffer is bound.
 */
type Mesh struct {
	Name          string
	Vertices      BufferHandle
	VertexAddress DeviceAddress
	Indices       BufferHandle
	Surfaces      []Surface
}

/**
 * @brief One mesh drawn TransformCount times, once per model matrix in the models buffer.
 */
type RenderInstance struct {
	ID             string
	Name           string
	Mesh           *Mesh
	ModelsBuffer   BufferHandle
	ModelsAddress  DeviceAddress
	TransformCount uint32
}

// Renderable reports whether the instance has everything a draw needs. Callers evaluate it
// once per frame and pass the results to the passes.
func (ri *RenderInstance) Renderable() bool {
	if ri == nil || ri.Mesh == nil {
		return false
	}
	if !ri.Mesh.Vertices.IsValid() || !ri.Mesh.Indices.IsValid() || ri.Mesh.VertexAddress == 0 {
		return false
	}
	return ri.ModelsBuffer.IsValid() && ri.ModelsAddress != 0 && ri.TransformCount > 0
}

// Renderables evaluates Renderable for every instance.
func Renderables(instances []*RenderInstance) []bool {
	out := make([]bool, len(instances))
	for i, ri := range instances {
		out[i] = ri.Renderable()
	}
	return out
}
