package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/config"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScene(t *testing.T, mutate func(cfg *config.Config)) (*rendertest.Device, *Scene) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	device := rendertest.NewDevice()
	s, err := New(device, cfg)
	require.NoError(t, err)
	return device, s
}

func newMaterialLayout(t *testing.T, device *rendertest.Device) metadata.DescriptorSetLayoutHandle {
	t.Helper()
	layout, err := device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name: "material",
		Bindings: []metadata.DescriptorBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageFragment},
		},
	})
	require.NoError(t, err)
	return layout
}

func record(t *testing.T, device *rendertest.Device, fn func(cmd metadata.CommandBuffer)) {
	t.Helper()
	cmd, err := device.AllocateCommandBuffer("test")
	require.NoError(t, err)
	require.NoError(t, cmd.Begin(true))
	fn(cmd)
	require.NoError(t, cmd.End())
}

func TestUploadCubeLandsOnDevice(t *testing.T) {
	device, s := newScene(t, nil)
	allocator := rendertest.NewAllocator(device)
	material, err := s.DefaultMaterial(allocator, newMaterialLayout(t, device))
	require.NoError(t, err)

	mesh, err := s.UploadCube("cube", 2, mgl32.Vec4{1, 0, 0, 1}, material)
	require.NoError(t, err)

	assert.NotZero(t, mesh.VertexAddress)
	require.Len(t, mesh.Surfaces, 1)
	assert.Equal(t, uint32(36), mesh.Surfaces[0].IndexCount)
	assert.Same(t, material, mesh.Surfaces[0].Material)

	vertices, indices := umath.GenerateCube(2, 2, 2, mgl32.Vec4{1, 0, 0, 1})
	assert.Equal(t, metadata.AsBytes(vertices), device.Buffer(mesh.Vertices).Bytes)
	assert.Equal(t, metadata.AsBytes(indices), device.Buffer(mesh.Indices).Bytes)
	assert.Equal(t, 1, device.Submits)
	assert.Empty(t, device.Violations)
}

func TestUploadEmptyMeshFails(t *testing.T) {
	_, s := newScene(t, nil)
	_, err := s.UploadMesh("empty", nil, nil, nil)
	assert.Error(t, err)
}

func TestDefaultMaterialIsShared(t *testing.T) {
	device, s := newScene(t, nil)
	allocator := rendertest.NewAllocator(device)
	layout := newMaterialLayout(t, device)

	a, err := s.DefaultMaterial(allocator, layout)
	require.NoError(t, err)
	b, err := s.DefaultMaterial(allocator, layout)
	require.NoError(t, err)
	assert.Same(t, a, b)

	set := device.DescriptorSet(a.DescriptorSet)
	require.NotNil(t, set)
	require.Len(t, set.Writes, 1)
	assert.Equal(t, a.ParamsBuffer, set.Writes[0].Buffers[0].Buffer)
	assert.Equal(t, metadata.ValueBytes(&DefaultMaterialParams), device.Buffer(a.ParamsBuffer).Bytes)
}

func TestInstancesWithoutTransformsAreNotRenderable(t *testing.T) {
	device, s := newScene(t, nil)
	mesh, err := s.UploadPlane("floor", 10, 10, mgl32.Vec4{1, 1, 1, 1}, nil)
	require.NoError(t, err)

	empty, err := s.AddInstance("empty", mesh, 4)
	require.NoError(t, err)
	placed, err := s.AddInstance("placed", mesh, 4)
	require.NoError(t, err)
	placed.Transforms = append(placed.Transforms,
		umath.TransformFromPosition(mgl32.Vec3{1, 0, 0}),
		umath.TransformFromPosition(mgl32.Vec3{0, 0, 5}))

	record(t, device, s.RecordUploads)
	in := s.FrameInputs()

	require.Len(t, in.Instances, 2)
	assert.Equal(t, []bool{false, true}, in.Renderable)
	assert.Equal(t, uint32(0), empty.TransformCount)
	assert.Equal(t, uint32(2), placed.TransformCount)
	assert.NotEqual(t, empty.ID, placed.ID)

	models := metadata.AsBytes([]mgl32.Mat4{placed.Transforms[0].World(), placed.Transforms[1].World()})
	assert.Equal(t, models, device.Buffer(placed.ModelsBuffer).Bytes[:len(models)])
	assert.Empty(t, device.Violations)
}

func TestRecordUploadsCopiesCamera(t *testing.T) {
	device, s := newScene(t, nil)
	s.Camera.SetPosition(mgl32.Vec3{0, 2, 10})

	record(t, device, s.RecordUploads)
	in := s.FrameInputs()

	want := s.Camera.Data()
	assert.Equal(t, metadata.ValueBytes(&want), device.Buffer(s.CameraBuffer()).Bytes)
	assert.Equal(t, device.BufferAddress(s.CameraBuffer()), in.CameraAddress)
	assert.Equal(t, mgl32.Vec3{0, 2, 10}, in.CameraPosition)

	atmosphere := device.Buffer(s.AtmosphereBuffer()).Bytes
	assert.Len(t, atmosphere, 32)
}

func TestInstanceLimit(t *testing.T) {
	_, s := newScene(t, func(cfg *config.Config) { cfg.Limits.MaxInstances = 1 })
	mesh := &metadata.Mesh{Name: "m"}

	_, err := s.AddInstance("a", mesh, 1)
	require.NoError(t, err)
	_, err = s.AddInstance("b", mesh, 1)
	assert.Error(t, err)
}

func TestRemoveInstance(t *testing.T) {
	device, s := newScene(t, nil)
	inst, err := s.AddInstance("a", &metadata.Mesh{Name: "m"}, 2)
	require.NoError(t, err)
	live := device.Live()

	assert.Same(t, inst, s.Instance(inst.ID))
	assert.True(t, s.RemoveInstance(inst.ID))
	assert.False(t, s.RemoveInstance(inst.ID))
	assert.Nil(t, s.Instance(inst.ID))
	assert.Equal(t, live-2, device.Live())
}

func TestDestroyReleasesEverything(t *testing.T) {
	device, s := newScene(t, nil)
	allocator := rendertest.NewAllocator(device)
	layout := newMaterialLayout(t, device)
	material, err := s.DefaultMaterial(allocator, layout)
	require.NoError(t, err)
	mesh, err := s.UploadCube("cube", 1, mgl32.Vec4{1, 1, 1, 1}, material)
	require.NoError(t, err)
	_, err = s.AddInstance("cube", mesh, 8)
	require.NoError(t, err)

	s.Destroy()
	allocator.Destroy()
	device.DestroyDescriptorSetLayout(layout)
	assert.Equal(t, 0, device.Live())
	assert.Empty(t, device.Destroy())
}
