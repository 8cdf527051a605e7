package deferred

import (
	"github.com/go-gl/mathgl/mgl32"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// WorkgroupSize is the local size of lighting.comp in x and y.
const WorkgroupSize uint32 = 16

// DispatchCount is the number of workgroups covering extent pixels. The last group can
// overhang, so the shader clips invocations outside the image.
func DispatchCount(extent, workgroup uint32) uint32 {
	return umath.DivCeil(extent, workgroup)
}

// FrameInputs is what the scene hands the pipeline each frame. The camera, atmosphere and
// model buffers must already have their copies recorded on the same command buffer.
type FrameInputs struct {
	CameraAddress  metadata.DeviceAddress
	CameraPosition mgl32.Vec3

	Instances []*metadata.RenderInstance
	// Renderable runs parallel to Instances, see metadata.Renderables.
	Renderable []bool

	Directional []metadata.DirectionalLight
	Spot        []metadata.SpotLight
}

// Targets are the long-lived resources the lighting descriptors point at. They are
// written into the descriptor set at construction and on Resize only.
type Targets struct {
	Output     metadata.ImageHandle
	Camera     metadata.BufferHandle
	Atmosphere metadata.BufferHandle
}

// Stats describes the last recorded frame.
type Stats struct {
	GeometryDraws    uint32
	ShadowDraws      uint32
	ActiveShadowMaps uint32
	Directional      uint32
	Spot             uint32
	GeometrySkipped  bool
	// SkippedSurfaces have no material set and were not drawn.
	SkippedSurfaces uint32
	Dispatch        [3]uint32
}

// GeometryPushConstants is the per-draw block of gbuffer.vert. The three addresses are
// dereferenced by the shader as-is.
type GeometryPushConstants struct {
	VertexAddress metadata.DeviceAddress
	ModelsAddress metadata.DeviceAddress
	CameraAddress metadata.DeviceAddress
}

// LightingPushConstants is the block of lighting.comp.
type LightingPushConstants struct {
	Extent           [2]uint32
	DirectionalCount uint32
	SpotCount        uint32
	BiasConstant     float32
	BiasSlope        float32
	ActiveShadowMaps uint32
	_                uint32
}
