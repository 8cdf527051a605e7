package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/staged"
)

// meshBuffers keeps the staging side of a mesh next to the device side, so the geometry
// can be edited and uploaded again.
type meshBuffers struct {
	mesh     *metadata.Mesh
	vertices *staged.Buffer[umath.Vertex3D]
	indices  *staged.Buffer[uint32]
}

func (m *meshBuffers) destroy() {
	if m.indices != nil {
		m.indices.Destroy()
	}
	if m.vertices != nil {
		m.vertices.Destroy()
	}
	m.mesh.Vertices, m.mesh.Indices, m.mesh.VertexAddress = 0, 0, 0
}

// UploadMesh copies the geometry to device memory with one immediate submission and
// returns a mesh with a single surface drawn with material.
func (s *Scene) UploadMesh(name string, vertices []umath.Vertex3D, indices []uint32, material *metadata.Material) (*metadata.Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		err := core.Newf("scene: mesh %s has no geometry", name)
		core.LogError(err.Error())
		return nil, err
	}

	m := &meshBuffers{mesh: &metadata.Mesh{Name: name}}
	var err error
	if m.vertices, err = staged.New[umath.Vertex3D](s.device, name+"-vertices", uint64(len(vertices)), metadata.BufferUsageStorage); err != nil {
		return nil, core.Wrapf(err, "scene: mesh %s", name)
	}
	if m.indices, err = staged.New[uint32](s.device, name+"-indices", uint64(len(indices)), metadata.BufferUsageIndex); err != nil {
		m.destroy()
		return nil, core.Wrapf(err, "scene: mesh %s", name)
	}
	m.vertices.Overwrite(vertices)
	m.indices.Overwrite(indices)

	if err := s.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		m.vertices.RecordCopyToDevice(cmd)
		m.indices.RecordCopyToDevice(cmd)
		staged.RecordTotalCopyBarrier(cmd, metadata.StageAllCommands, metadata.AccessShaderRead|metadata.AccessIndexRead)
	}); err != nil {
		m.destroy()
		err = core.Wrapf(err, "scene: upload of mesh %s", name)
		core.LogError(err.Error())
		return nil, err
	}

	m.mesh.Vertices = m.vertices.DeviceBuffer()
	m.mesh.VertexAddress = m.vertices.DeviceAddress()
	m.mesh.Indices = m.indices.DeviceBuffer()
	m.mesh.Surfaces = []metadata.Surface{{
		FirstIndex: 0,
		IndexCount: uint32(len(indices)),
		Material:   material,
	}}
	s.meshes = append(s.meshes, m)
	core.LogDebug("scene: uploaded mesh %s, %d vertices, %d indices", name, len(vertices), len(indices))
	return m.mesh, nil
}

func (s *Scene) UploadCube(name string, size float32, color mgl32.Vec4, material *metadata.Material) (*metadata.Mesh, error) {
	vertices, indices := umath.GenerateCube(size, size, size, color)
	return s.UploadMesh(name, vertices, indices, material)
}

func (s *Scene) UploadPlane(name string, width, depth float32, color mgl32.Vec4, material *metadata.Material) (*metadata.Mesh, error) {
	vertices, indices := umath.GeneratePlane(width, depth, color)
	return s.UploadMesh(name, vertices, indices, material)
}
