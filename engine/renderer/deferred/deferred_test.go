package deferred

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeShaders(string) ([]byte, error) {
	return []byte{0x03, 0x02, 0x23, 0x07}, nil
}

type fixture struct {
	device    *rendertest.Device
	allocator *rendertest.Allocator
	pipeline  *Pipeline
	targets   Targets
	mesh      *metadata.Mesh
	models    metadata.BufferHandle
}

func newOutput(t *testing.T, device *rendertest.Device, extent metadata.Extent2D) metadata.ImageHandle {
	t.Helper()
	h, err := device.CreateImage(metadata.ImageCreateInfo{
		Name:   "draw",
		Format: metadata.FormatR16G16B16A16Sfloat,
		Extent: extent,
		Usage:  metadata.ImageUsageStorage | metadata.ImageUsageTransferSrc | metadata.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	return h
}

func newBuffer(t *testing.T, device *rendertest.Device, name string, size uint64) metadata.BufferHandle {
	t.Helper()
	h, err := device.CreateBuffer(metadata.BufferCreateInfo{
		Name:  name,
		Size:  size,
		Usage: metadata.BufferUsageStorage | metadata.BufferUsageDeviceAddress | metadata.BufferUsageIndex,
	})
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T, mutate func(cfg *Config)) *fixture {
	t.Helper()
	device := rendertest.NewDevice()
	allocator := rendertest.NewAllocator(device)
	extent := metadata.Extent2D{Width: 1920, Height: 1080}

	targets := Targets{
		Output:     newOutput(t, device, extent),
		Camera:     newBuffer(t, device, "camera", uint64(unsafe.Sizeof(metadata.CameraData{}))),
		Atmosphere: newBuffer(t, device, "atmosphere", uint64(unsafe.Sizeof(metadata.AtmosphereData{}))),
	}
	cfg := ConfigFrom(config.Default(), extent, fakeShaders, nil)
	cfg.Shadow.Resolution = 64
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(device, allocator, cfg, targets)
	require.NoError(t, err)

	vertices := newBuffer(t, device, "vertices", 48*24)
	indices := newBuffer(t, device, "indices", 4*36)
	mesh := &metadata.Mesh{
		Name:          "cube",
		Vertices:      vertices,
		VertexAddress: device.BufferAddress(vertices),
		Indices:       indices,
	}
	for i := 0; i < 2; i++ {
		set, err := allocator.Allocate(p.MaterialLayout())
		require.NoError(t, err)
		mesh.Surfaces = append(mesh.Surfaces, metadata.Surface{
			FirstIndex: uint32(i * 18),
			IndexCount: 18,
			Material:   &metadata.Material{Name: "m", DescriptorSet: set},
		})
	}

	return &fixture{
		device:    device,
		allocator: allocator,
		pipeline:  p,
		targets:   targets,
		mesh:      mesh,
		models:    newBuffer(t, device, "models", 64*4),
	}
}

func (f *fixture) instance(count uint32) *metadata.RenderInstance {
	return &metadata.RenderInstance{
		Name:           "cube",
		Mesh:           f.mesh,
		ModelsBuffer:   f.models,
		ModelsAddress:  f.device.BufferAddress(f.models),
		TransformCount: count,
	}
}

func (f *fixture) record(t *testing.T, in *FrameInputs) {
	t.Helper()
	f.device.ResetCounters()
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		f.pipeline.RecordDrawCommands(cmd, in)
	}))
	require.Empty(t, f.device.Violations)
}

func (f *fixture) lightingPushConstants(t *testing.T) LightingPushConstants {
	t.Helper()
	for i := len(f.device.PushConstants) - 1; i >= 0; i-- {
		pc := f.device.PushConstants[i]
		if pc.Stages == metadata.ShaderStageCompute {
			require.Len(t, pc.Data, int(unsafe.Sizeof(LightingPushConstants{})))
			return *(*LightingPushConstants)(unsafe.Pointer(&pc.Data[0]))
		}
	}
	t.Fatal("no lighting push constants recorded")
	return LightingPushConstants{}
}

func indexOf(ops []string, op string, last bool) int {
	found := -1
	for i, o := range ops {
		if o == op {
			found = i
			if !last {
				return i
			}
		}
	}
	return found
}

func TestDispatchCount(t *testing.T) {
	assert.Equal(t, uint32(120), DispatchCount(1920, 16))
	assert.Equal(t, uint32(121), DispatchCount(1921, 16))
	assert.Equal(t, uint32(68), DispatchCount(1080, 16))
}

func TestPushConstantSizes(t *testing.T) {
	assert.Equal(t, uintptr(24), unsafe.Sizeof(GeometryPushConstants{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(LightingPushConstants{}))
}

func TestZeroRenderablesSkipsGeometry(t *testing.T) {
	f := newFixture(t, nil)
	in := &FrameInputs{
		Instances: []*metadata.RenderInstance{{Name: "no-mesh"}},
		Directional: []metadata.DirectionalLight{
			{Color: mgl32.Vec3{1, 1, 1}, Strength: 1, Direction: mgl32.Vec3{0, -1, 0}},
		},
	}
	in.Renderable = metadata.Renderables(in.Instances)
	f.record(t, in)

	assert.Empty(t, f.device.Draws)
	depth := f.device.Image(f.pipeline.DepthTarget())
	assert.Equal(t, FarDepth, depth.ClearDepth)
	assert.Equal(t, metadata.LayoutDepthReadOnly, depth.Layout)
	assert.True(t, f.pipeline.Stats().GeometrySkipped)
	for _, c := range f.device.Commands {
		if c.Op == "begin-rendering" {
			assert.NotEqual(t, "geometry", c.Detail)
		}
	}

	// the lighting pass still runs over the whole output
	require.Len(t, f.device.Dispatches, 1)
	assert.Equal(t, rendertest.Dispatch{X: 120, Y: 68, Z: 1}, f.device.Dispatches[0])
	assert.Equal(t, metadata.LayoutGeneral, f.device.Image(f.targets.Output).Layout)
}

func TestGeometryPassDrawsEverySurface(t *testing.T) {
	f := newFixture(t, nil)
	in := &FrameInputs{
		CameraAddress:  f.device.BufferAddress(f.targets.Camera),
		CameraPosition: mgl32.Vec3{0, 2, 5},
		Instances:      []*metadata.RenderInstance{f.instance(3), {Name: "broken"}, f.instance(1)},
	}
	in.Renderable = metadata.Renderables(in.Instances)
	f.record(t, in)

	require.Len(t, f.device.Draws, 4)
	for i, d := range f.device.Draws {
		assert.Equal(t, "geometry", d.Pass)
		if i < 2 {
			assert.Equal(t, uint32(3), d.InstanceCount)
		} else {
			assert.Equal(t, uint32(1), d.InstanceCount)
		}
	}
	assert.Equal(t, uint32(4), f.pipeline.Stats().GeometryDraws)
	assert.False(t, f.pipeline.Stats().GeometrySkipped)

	geometry := f.device.PushConstants[0]
	want := GeometryPushConstants{
		VertexAddress: f.mesh.VertexAddress,
		ModelsAddress: f.device.BufferAddress(f.models),
		CameraAddress: f.device.BufferAddress(f.targets.Camera),
	}
	assert.Equal(t, metadata.ValueBytes(&want), geometry.Data)

	depth := f.device.Image(f.pipeline.DepthTarget())
	assert.Equal(t, FarDepth, depth.ClearDepth)
	for _, h := range f.pipeline.GBuffer().Images() {
		assert.Equal(t, metadata.LayoutShaderReadOnly, f.device.Image(h).Layout)
	}

	ops := f.device.Ops()
	assert.Equal(t, "barrier", ops[1], "uploads are made visible before anything reads them")
	assert.Less(t, indexOf(ops, "draw", true), indexOf(ops, "dispatch", false))
	assert.Less(t, indexOf(ops, "clear-color", false), indexOf(ops, "dispatch", false))
}

func TestSurfaceWithoutMaterialIsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.mesh.Surfaces[1].Material = nil
	in := &FrameInputs{
		CameraAddress: f.device.BufferAddress(f.targets.Camera),
		Instances:     []*metadata.RenderInstance{f.instance(2)},
	}
	in.Renderable = metadata.Renderables(in.Instances)
	f.record(t, in)

	require.Len(t, f.device.Draws, 1)
	assert.Equal(t, f.mesh.Surfaces[0].FirstIndex, f.device.Draws[0].FirstIndex)
	stats := f.pipeline.Stats()
	assert.Equal(t, uint32(1), stats.GeometryDraws)
	assert.Equal(t, uint32(1), stats.SkippedSurfaces)
}

func TestFrameOrdersEveryWrite(t *testing.T) {
	f := newFixture(t, nil)
	host, err := f.device.CreateBuffer(metadata.BufferCreateInfo{
		Name:     "host",
		Size:     4096,
		Usage:    metadata.BufferUsageTransferSrc,
		Location: metadata.MemoryHostVisible,
	})
	require.NoError(t, err)

	in := &FrameInputs{
		CameraAddress:  f.device.BufferAddress(f.targets.Camera),
		CameraPosition: mgl32.Vec3{0, 2, 5},
		Instances:      []*metadata.RenderInstance{f.instance(2)},
		Directional: []metadata.DirectionalLight{
			{Direction: mgl32.Vec3{0, -1, 0}, Strength: 1},
		},
		Spot: []metadata.SpotLight{
			{Position: mgl32.Vec3{0, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
		},
	}
	in.Renderable = metadata.Renderables(in.Instances)

	f.device.ResetCounters()
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		// scene uploads land in the same command buffer, ahead of the passes
		for _, dst := range []metadata.BufferHandle{f.targets.Camera, f.models} {
			cmd.CopyBuffer(host, dst, []metadata.BufferCopy{{Size: f.device.BufferSize(dst)}})
		}
		f.pipeline.RecordDrawCommands(cmd, in)
	}))
	require.Empty(t, f.device.Violations)
	assert.Empty(t, f.device.Hazards)

	stats := f.pipeline.Stats()
	assert.Equal(t, uint32(2), stats.GeometryDraws)
	assert.Equal(t, uint32(4), stats.ShadowDraws)

	ops := f.device.Ops()
	clear := indexOf(ops, "clear-color", false)
	dispatch := indexOf(ops, "dispatch", false)
	require.Greater(t, clear, 0)
	assert.Contains(t, ops[clear+1:dispatch], "transition", "the output clear is ordered before the lighting stores")
}

func TestLightUploadAndEmptyCategory(t *testing.T) {
	f := newFixture(t, nil)
	in := &FrameInputs{
		Directional: []metadata.DirectionalLight{
			{Direction: mgl32.Vec3{0, -1, 0}, Strength: 1},
			{Direction: mgl32.Vec3{1, -1, 0}, Strength: 2},
		},
		Spot: []metadata.SpotLight{
			{Position: mgl32.Vec3{0, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
		},
	}
	f.record(t, in)

	pc := f.lightingPushConstants(t)
	assert.Equal(t, uint32(2), pc.DirectionalCount)
	assert.Equal(t, uint32(1), pc.SpotCount)
	assert.Equal(t, uint32(3), pc.ActiveShadowMaps)
	assert.Equal(t, [2]uint32{1920, 1080}, pc.Extent)

	records := f.device.Buffer(f.pipeline.DirectionalLights().DeviceBuffer()).Bytes
	packed := []metadata.DirectionalLightRecord{in.Directional[0].Pack(), in.Directional[1].Pack()}
	assert.Equal(t, metadata.AsBytes(packed), records[:64])

	// next frame has no spot lights: the spot buffer must report nothing on the device
	in.Spot = nil
	f.record(t, in)
	assert.Equal(t, uint64(0), f.pipeline.SpotLights().DeviceSizeQueuedBytes())
	pc = f.lightingPushConstants(t)
	assert.Equal(t, uint32(0), pc.SpotCount)
	assert.Equal(t, uint32(2), pc.ActiveShadowMaps)
}

func TestShadowCastersFollowLightOrder(t *testing.T) {
	f := newFixture(t, nil)
	dir := []metadata.DirectionalLight{
		{Direction: mgl32.Vec3{0, -1, 0}},
		{Direction: mgl32.Vec3{1, -1, 0}},
	}
	spot := []metadata.SpotLight{
		{Position: mgl32.Vec3{0, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
		{Position: mgl32.Vec3{1, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
		{Position: mgl32.Vec3{2, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
	}
	in := &FrameInputs{
		Instances:   []*metadata.RenderInstance{f.instance(1)},
		Directional: dir,
		Spot:        spot,
	}
	in.Renderable = metadata.Renderables(in.Instances)
	f.record(t, in)

	stats := f.pipeline.Stats()
	assert.Equal(t, uint32(5), stats.ActiveShadowMaps)
	// 5 maps x 1 instance x 2 surfaces
	assert.Equal(t, uint32(10), stats.ShadowDraws)
	assert.Equal(t, uint32(2), stats.Directional)
	assert.Equal(t, uint32(3), stats.Spot)
}

func TestLightsBeyondBufferCapacityAreDropped(t *testing.T) {
	f := newFixture(t, func(cfg *Config) { cfg.MaxDirectionalLights = 1 })
	in := &FrameInputs{
		Directional: []metadata.DirectionalLight{
			{Direction: mgl32.Vec3{0, -1, 0}},
			{Direction: mgl32.Vec3{1, -1, 0}},
		},
		Spot: []metadata.SpotLight{
			{Position: mgl32.Vec3{0, 4, 0}, Direction: mgl32.Vec3{0, -1, 0}, FalloffRadians: 0.5, Range: 10},
		},
	}
	f.record(t, in)

	pc := f.lightingPushConstants(t)
	assert.Equal(t, uint32(1), pc.DirectionalCount)
	// shadow indices stay aligned with the buffers: one directional, then the spot
	assert.Equal(t, uint32(2), pc.ActiveShadowMaps)
}

func TestResizeRebuildsTargets(t *testing.T) {
	f := newFixture(t, nil)
	before := f.device.Live()

	extent := metadata.Extent2D{Width: 1921, Height: 33}
	output := newOutput(t, f.device, extent)
	f.device.DestroyImage(f.targets.Output)
	require.NoError(t, f.pipeline.Resize(extent, output))
	f.targets.Output = output

	assert.Equal(t, extent, f.pipeline.Extent())
	assert.Equal(t, extent, f.device.ImageExtent(f.pipeline.DepthTarget()))

	f.record(t, &FrameInputs{})
	assert.Equal(t, rendertest.Dispatch{X: 121, Y: 3, Z: 1}, f.device.Dispatches[0])

	// one new gbuffer descriptor set from the pool, nothing else accumulates
	assert.Equal(t, before+1, f.device.Live())
}

func TestShadowBiasReachesLighting(t *testing.T) {
	f := newFixture(t, nil)
	bias := f.pipeline.ShadowBias()
	bias.Constant = 0.25
	f.pipeline.SetShadowBias(bias)
	f.record(t, &FrameInputs{})
	assert.Equal(t, float32(0.25), f.lightingPushConstants(t).BiasConstant)
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.pipeline.Destroy()
	f.allocator.Destroy()
	for _, h := range []metadata.BufferHandle{f.targets.Camera, f.targets.Atmosphere, f.models, f.mesh.Vertices, f.mesh.Indices} {
		f.device.DestroyBuffer(h)
	}
	f.device.DestroyImage(f.targets.Output)

	assert.Equal(t, 0, f.device.Live())
	assert.Empty(t, f.device.Violations)
}
