package scene

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// DefaultMaterialParams is a white, fully rough dielectric.
var DefaultMaterialParams = metadata.MaterialParams{
	BaseColor: mgl32.Vec4{1, 1, 1, 1},
	Specular:  mgl32.Vec4{0.04, 0.04, 0.04, 1},
	Occlusion: 1,
	Roughness: 1,
	Metallic:  0,
}

// CreateMaterial writes params into a host-visible uniform buffer and points a new
// descriptor set, allocated against layout, at it.
func (s *Scene) CreateMaterial(name string, params metadata.MaterialParams, allocator metadata.DescriptorAllocator, layout metadata.DescriptorSetLayoutHandle) (*metadata.Material, error) {
	size := uint64(unsafe.Sizeof(params))
	buffer, err := s.device.CreateBuffer(metadata.BufferCreateInfo{
		Name:     "material-" + name,
		Size:     size,
		Usage:    metadata.BufferUsageUniform,
		Location: metadata.MemoryHostVisible,
	})
	if err != nil {
		err = core.Wrapf(err, "scene: material %s buffer", name)
		core.LogError(err.Error())
		return nil, err
	}
	mapped, err := s.device.MappedBytes(buffer)
	if err != nil {
		s.device.DestroyBuffer(buffer)
		return nil, core.Wrapf(err, "scene: material %s buffer", name)
	}
	copy(mapped, metadata.ValueBytes(&params))

	set, err := allocator.Allocate(layout)
	if err != nil {
		s.device.DestroyBuffer(buffer)
		err = core.Wrapf(err, "scene: material %s descriptor set", name)
		core.LogError(err.Error())
		return nil, err
	}
	s.device.UpdateDescriptorSet(set, []metadata.DescriptorWrite{{
		Binding: 0,
		Type:    metadata.DescriptorTypeUniformBuffer,
		Buffers: []metadata.DescriptorBufferInfo{{Buffer: buffer, Range: size}},
	}})

	material := &metadata.Material{
		Name:          name,
		Params:        params,
		ParamsBuffer:  buffer,
		DescriptorSet: set,
	}
	s.materials = append(s.materials, material)
	return material, nil
}

func (s *Scene) DefaultMaterial(allocator metadata.DescriptorAllocator, layout metadata.DescriptorSetLayoutHandle) (*metadata.Material, error) {
	for _, m := range s.materials {
		if m.Name == metadata.DefaultMaterialName {
			return m, nil
		}
	}
	return s.CreateMaterial(metadata.DefaultMaterialName, DefaultMaterialParams, allocator, layout)
}
