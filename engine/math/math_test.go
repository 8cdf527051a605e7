package math

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestDivCeil(t *testing.T) {
	assert.Equal(t, uint32(120), DivCeil[uint32](1920, 16))
	assert.Equal(t, uint32(121), DivCeil[uint32](1921, 16))
	assert.Equal(t, uint32(1), DivCeil[uint32](1, 16))
	assert.Equal(t, 0, DivCeil(0, 16))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, float32(0.5), Clamp[float32](0.5, 0, 1))
}

func TestVertexLayout(t *testing.T) {
	assert.Equal(t, uintptr(48), unsafe.Sizeof(Vertex3D{}))
}

func TestCubeNormalsPointOutwards(t *testing.T) {
	vertices, indices := GenerateCube(2, 2, 2, mgl32.Vec4{1, 1, 1, 1})
	assert.Len(t, vertices, 24)
	assert.Len(t, indices, 36)
	for _, v := range vertices {
		// every face normal agrees in sign with the position on its axis
		assert.Greater(t, v.Normal.Dot(v.Position), float32(0))
	}
}

func TestTransformWorld(t *testing.T) {
	parent := TransformFromPosition(mgl32.Vec3{10, 0, 0})
	child := TransformFromPosition(mgl32.Vec3{0, 1, 0})
	child.Parent = parent

	p := child.World().Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, 10, p.X(), 1e-6)
	assert.InDelta(t, 1, p.Y(), 1e-6)
}

func TestPerspectiveDepthRange(t *testing.T) {
	proj := Perspective(mgl32.DegToRad(60), 1, 0.1, 100)

	near := proj.Mul4x1(mgl32.Vec4{0, 0, -0.1, 1})
	far := proj.Mul4x1(mgl32.Vec4{0, 0, -100, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-5)

	up := proj.Mul4x1(mgl32.Vec4{0, 1, -1, 1})
	assert.Less(t, up.Y(), float32(0), "y points down in clip space")
}

func TestLookAtStraightDown(t *testing.T) {
	view := LookAt(mgl32.Vec3{0, 10, 0}, mgl32.Vec3{0, -1, 0})
	p := view.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.InDelta(t, -10, p.Z(), 1e-5)
}
