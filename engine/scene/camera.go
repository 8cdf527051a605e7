package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// pitchLimit is 89 degrees, short of gimbal lock.
const pitchLimit = float32(1.55334306)

/**
 * @brief A perspective camera described by a position and pitch/yaw angles.
 * NOTE: use the setters so the view matrix is rebuilt when needed.
 */
type Camera struct {
	position mgl32.Vec3
	/** @brief Pitch (x) and yaw (y) in radians. Roll is not used. */
	euler mgl32.Vec3

	FovY   float32
	Near   float32
	Far    float32
	Aspect float32

	isDirty bool
	world   mgl32.Mat4
	view    mgl32.Mat4
}

func NewCamera() *Camera {
	c := &Camera{}
	c.Reset()
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{}
	c.euler = mgl32.Vec3{}
	c.FovY = mgl32.DegToRad(70)
	c.Near = 0.1
	c.Far = 1000
	c.Aspect = 16.0 / 9.0
	c.world = mgl32.Ident4()
	c.view = mgl32.Ident4()
	c.isDirty = false
}

func (c *Camera) Position() mgl32.Vec3 { return c.position }

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) EulerRotation() mgl32.Vec3 { return c.euler }

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.euler = rotation
	c.euler[0] = umath.Clamp(c.euler[0], -pitchLimit, pitchLimit)
	c.isDirty = true
}

// SetViewport derives the aspect ratio from the render extent. A zero extent is ignored.
func (c *Camera) SetViewport(extent metadata.Extent2D) {
	if extent.IsZero() {
		return
	}
	c.Aspect = float32(extent.Width) / float32(extent.Height)
}

func (c *Camera) update() {
	if !c.isDirty {
		return
	}
	rotation := mgl32.HomogRotate3DY(c.euler.Y()).Mul4(mgl32.HomogRotate3DX(c.euler.X()))
	c.world = mgl32.Translate3D(c.position.X(), c.position.Y(), c.position.Z()).Mul4(rotation)
	c.view = c.world.Inv()
	c.isDirty = false
}

func (c *Camera) View() mgl32.Mat4 {
	c.update()
	return c.view
}

func (c *Camera) Projection() mgl32.Mat4 {
	return umath.Perspective(c.FovY, c.Aspect, c.Near, c.Far)
}

func (c *Camera) direction(local mgl32.Vec3) mgl32.Vec3 {
	c.update()
	return c.world.Mul4x1(local.Vec4(0)).Vec3().Normalize()
}

func (c *Camera) Forward() mgl32.Vec3 { return c.direction(mgl32.Vec3{0, 0, -1}) }

func (c *Camera) Backward() mgl32.Vec3 { return c.direction(mgl32.Vec3{0, 0, 1}) }

func (c *Camera) Left() mgl32.Vec3 { return c.direction(mgl32.Vec3{-1, 0, 0}) }

func (c *Camera) Right() mgl32.Vec3 { return c.direction(mgl32.Vec3{1, 0, 0}) }

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.position = c.position.Add(direction.Mul(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32) { c.move(c.Forward(), amount) }

func (c *Camera) MoveBackward(amount float32) { c.move(c.Backward(), amount) }

func (c *Camera) MoveLeft(amount float32) { c.move(c.Left(), amount) }

func (c *Camera) MoveRight(amount float32) { c.move(c.Right(), amount) }

func (c *Camera) MoveUp(amount float32) { c.move(mgl32.Vec3{0, 1, 0}, amount) }

func (c *Camera) MoveDown(amount float32) { c.move(mgl32.Vec3{0, -1, 0}, amount) }

func (c *Camera) Yaw(amount float32) {
	c.euler[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.euler[0] = umath.Clamp(c.euler[0]+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

// Data is the camera block the shaders read.
func (c *Camera) Data() metadata.CameraData {
	view := c.View()
	projection := c.Projection()
	return metadata.CameraData{
		View:           view,
		Projection:     projection,
		ViewProjection: projection.Mul4(view),
		Position:       c.position.Vec4(1),
	}
}
