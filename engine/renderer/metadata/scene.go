package metadata

import "github.com/go-gl/mathgl/mgl32"

/**
 * @brief Camera block as laid out in the camera storage buffer (std430).
 */
type CameraData struct {
	View           mgl32.Mat4
	Projection     mgl32.Mat4
	ViewProjection mgl32.Mat4
	/** @brief World position; w is unused. */
	Position mgl32.Vec4
}

/**
 * @brief Atmosphere block shared by the lighting pass and the sky pass (std430).
 */
type AtmosphereData struct {
	SunDirection     mgl32.Vec3
	SunIntensity     float32
	AmbientColor     mgl32.Vec3
	AmbientIntensity float32
}

type DirectionalLight struct {
	Color     mgl32.Vec3
	Strength  float32
	Direction mgl32.Vec3
}

// DirectionalLightRecord is the std430 layout of one directional light.
type DirectionalLightRecord struct {
	Color     mgl32.Vec3
	Strength  float32
	Direction mgl32.Vec3
	_         float32
}

func (l DirectionalLight) Pack() DirectionalLightRecord {
	return DirectionalLightRecord{
		Color:     l.Color,
		Strength:  l.Strength,
		Direction: l.Direction.Normalize(),
	}
}

type SpotLight struct {
	Color     mgl32.Vec3
	Strength  float32
	Position  mgl32.Vec3
	Direction mgl32.Vec3
	// FalloffRadians is the half-angle of the cone.
	FalloffRadians float32
	Range          float32
}

// SpotLightRecord is the std430 layout of one spot light.
type SpotLightRecord struct {
	Color          mgl32.Vec3
	Strength       float32
	Position       mgl32.Vec3
	FalloffRadians float32
	Direction      mgl32.Vec3
	Range          float32
}

func (l SpotLight) Pack() SpotLightRecord {
	return SpotLightRecord{
		Color:          l.Color,
		Strength:       l.Strength,
		Position:       l.Position,
		FalloffRadians: l.FalloffRadians,
		Direction:      l.Direction.Normalize(),
		Range:          l.Range,
	}
}
