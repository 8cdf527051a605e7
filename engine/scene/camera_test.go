package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
)

func assertVec3(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "component %d: want %v, got %v", i, want, got)
	}
}

func TestDefaultCameraLooksDownNegativeZ(t *testing.T) {
	c := NewCamera()
	assertVec3(t, mgl32.Vec3{0, 0, -1}, c.Forward())
	assertVec3(t, mgl32.Vec3{1, 0, 0}, c.Right())
	assert.True(t, c.View().ApproxEqual(mgl32.Ident4()))
}

func TestViewInvertsPosition(t *testing.T) {
	c := NewCamera()
	c.SetPosition(mgl32.Vec3{3, 4, 5})
	origin := c.View().Mul4x1(mgl32.Vec4{3, 4, 5, 1})
	assertVec3(t, mgl32.Vec3{}, origin.Vec3())
}

func TestYawTurnsForward(t *testing.T) {
	c := NewCamera()
	c.Yaw(mgl32.DegToRad(90))
	assertVec3(t, mgl32.Vec3{-1, 0, 0}, c.Forward())

	c.MoveForward(2)
	assertVec3(t, mgl32.Vec3{-2, 0, 0}, c.Position())
}

func TestPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.EulerRotation().X(), 1e-6)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.EulerRotation().X(), 1e-6)
}

func TestViewportSetsAspect(t *testing.T) {
	c := NewCamera()
	c.SetViewport(metadata.Extent2D{Width: 800, Height: 400})
	assert.Equal(t, float32(2), c.Aspect)
	c.SetViewport(metadata.Extent2D{})
	assert.Equal(t, float32(2), c.Aspect)
}

func TestDataCombinesMatrices(t *testing.T) {
	c := NewCamera()
	c.SetPosition(mgl32.Vec3{0, 1, 2})
	d := c.Data()
	assert.True(t, d.ViewProjection.ApproxEqual(d.Projection.Mul4(d.View)))
	assert.Equal(t, mgl32.Vec4{0, 1, 2, 1}, d.Position)
}
