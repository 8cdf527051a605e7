package math

import "github.com/go-gl/mathgl/mgl32"

// clipCorrection maps OpenGL clip space (y up, z in [-1,1]) to Vulkan clip space
// (y down, z in [0,1]).
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Perspective is mgl32.Perspective for Vulkan clip space. fovy is in radians.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	return clipCorrection.Mul4(mgl32.Perspective(fovy, aspect, near, far))
}

// Ortho is mgl32.Ortho for Vulkan clip space.
func Ortho(left, right, bottom, top, near, far float32) mgl32.Mat4 {
	return clipCorrection.Mul4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// LookAt builds a view matrix looking along forward, picking an up vector that is not
// parallel to it.
func LookAt(eye, forward mgl32.Vec3) mgl32.Mat4 {
	up := mgl32.Vec3{0, 1, 0}
	if f := forward.Normalize(); f.Dot(up) > 0.99 || f.Dot(up) < -0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	return mgl32.LookAtV(eye, eye.Add(forward), up)
}
