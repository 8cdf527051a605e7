package math

import "github.com/go-gl/mathgl/mgl32"

// Vertex3D matches the std430 vertex record read through buffer device addresses:
// the texture coordinates ride in the padding slots of position and normal.
type Vertex3D struct {
	Position mgl32.Vec3
	UVX      float32
	Normal   mgl32.Vec3
	UVY      float32
	Color    mgl32.Vec4
}

// GeometryGenerateNormals assigns flat face normals to every triangle of an indexed
// triangle list.
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		normal := edge1.Cross(edge2).Normalize()

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateCube returns a unit-centred box with 24 vertices (4 per face) and 36 indices,
// wound counter-clockwise when seen from outside.
func GenerateCube(width, height, depth float32, color mgl32.Vec4) ([]Vertex3D, []uint32) {
	hw, hh, hd := width*0.5, height*0.5, depth*0.5

	type face struct {
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{[4]mgl32.Vec3{{-hw, -hh, hd}, {hw, -hh, hd}, {hw, hh, hd}, {-hw, hh, hd}}},     // front
		{[4]mgl32.Vec3{{hw, -hh, -hd}, {-hw, -hh, -hd}, {-hw, hh, -hd}, {hw, hh, -hd}}}, // back
		{[4]mgl32.Vec3{{-hw, -hh, -hd}, {-hw, -hh, hd}, {-hw, hh, hd}, {-hw, hh, -hd}}}, // left
		{[4]mgl32.Vec3{{hw, -hh, hd}, {hw, -hh, -hd}, {hw, hh, -hd}, {hw, hh, hd}}},     // right
		{[4]mgl32.Vec3{{-hw, hh, hd}, {hw, hh, hd}, {hw, hh, -hd}, {-hw, hh, -hd}}},     // top
		{[4]mgl32.Vec3{{-hw, -hh, -hd}, {hw, -hh, -hd}, {hw, -hh, hd}, {-hw, -hh, hd}}}, // bottom
	}
	uvs := [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

	vertices := make([]Vertex3D, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(vertices))
		for c, p := range f.corners {
			vertices = append(vertices, Vertex3D{
				Position: p,
				UVX:      uvs[c][0],
				UVY:      uvs[c][1],
				Color:    color,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	GeometryGenerateNormals(vertices, indices)
	return vertices, indices
}

// GeneratePlane returns an XZ plane facing +Y.
func GeneratePlane(width, depth float32, color mgl32.Vec4) ([]Vertex3D, []uint32) {
	hw, hd := width*0.5, depth*0.5
	vertices := []Vertex3D{
		{Position: mgl32.Vec3{-hw, 0, hd}, UVX: 0, UVY: 1, Color: color},
		{Position: mgl32.Vec3{hw, 0, hd}, UVX: 1, UVY: 1, Color: color},
		{Position: mgl32.Vec3{hw, 0, -hd}, UVX: 1, UVY: 0, Color: color},
		{Position: mgl32.Vec3{-hw, 0, -hd}, UVX: 0, UVY: 0, Color: color},
	}
	indices := []uint32{0, 1, 2, 0, 2, 3}
	GeometryGenerateNormals(vertices, indices)
	return vertices, indices
}
