// Package shadow renders scene depth from every shadow-casting light into a fixed pool of
// depth maps, with the light matrices kept in one staged buffer.
package shadow

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/staged"
)

const (
	DepthFormat  = metadata.FormatD32Sfloat
	FarDepth     = float32(1.0)
	VertexShader = "shadow.vert"
)

type Bias struct {
	Constant float32
	Slope    float32
}

type Config struct {
	Capacity   uint32
	Resolution uint32
	Bias       Bias
	// Directional lights cover a DirectionalExtent half-width box, DirectionalDepth deep,
	// centred on the focus point.
	DirectionalExtent float32
	DirectionalDepth  float32
	SpotNear          float32

	Shaders    metadata.ShaderSource
	Reflection config.Reflection
}

// ConfigFrom picks the shadow settings out of the engine configuration.
func ConfigFrom(cfg *config.Config, shaders metadata.ShaderSource, reflection config.Reflection) Config {
	return Config{
		Capacity:          cfg.Shadows.Capacity,
		Resolution:        cfg.Shadows.Resolution,
		Bias:              Bias{Constant: cfg.Shadows.BiasConstant, Slope: cfg.Shadows.BiasSlope},
		DirectionalExtent: cfg.Shadows.DirectionalExtent,
		DirectionalDepth:  cfg.Shadows.DirectionalDepth,
		SpotNear:          cfg.Shadows.SpotNear,
		Shaders:           shaders,
		Reflection:        reflection,
	}
}

// PushConstants is the per-draw block of shadow.vert. The addresses are raw device
// pointers the shader dereferences without bounds checks.
type PushConstants struct {
	LightViewProjection mgl32.Mat4
	VertexAddress       metadata.DeviceAddress
	ModelsAddress       metadata.DeviceAddress
}

type Array struct {
	device metadata.Device
	cfg    Config

	maps     []metadata.ImageHandle
	sampler  metadata.SamplerHandle
	matrices *staged.Buffer[mgl32.Mat4]
	// host copy of the matrices staged this frame
	lightMatrices []mgl32.Mat4

	layout   metadata.DescriptorSetLayoutHandle
	set      metadata.DescriptorSetHandle
	vertex   *metadata.ShaderModule
	pipeline *metadata.ShaderPipeline

	focus mgl32.Vec3
	bias  Bias
}

func New(device metadata.Device, allocator metadata.DescriptorAllocator, cfg Config) (*Array, error) {
	if cfg.Capacity == 0 || cfg.Resolution == 0 {
		err := core.Newf("shadow array: capacity %d and resolution %d must be non-zero", cfg.Capacity, cfg.Resolution)
		core.LogError(err.Error())
		return nil, err
	}
	a := &Array{
		device: device,
		cfg:    cfg,
		bias:   cfg.Bias,
	}

	extent := metadata.Extent2D{Width: cfg.Resolution, Height: cfg.Resolution}
	for i := uint32(0); i < cfg.Capacity; i++ {
		img, err := device.CreateImage(metadata.ImageCreateInfo{
			Name:   fmt.Sprintf("shadow-map-%d", i),
			Format: DepthFormat,
			Extent: extent,
			Usage:  metadata.ImageUsageDepthAttachment | metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
		})
		if err != nil {
			return nil, a.fail(err, "depth map %d", i)
		}
		a.maps = append(a.maps, img)
	}

	sampler, err := device.CreateSampler(metadata.SamplerCreateInfo{
		Name:          "shadow",
		MagFilter:     metadata.FilterLinear,
		MinFilter:     metadata.FilterLinear,
		AddressMode:   metadata.AddressModeClampToBorder,
		CompareEnable: true,
		BorderWhite:   true,
	})
	if err != nil {
		return nil, a.fail(err, "sampler")
	}
	a.sampler = sampler

	matrices, err := staged.New[mgl32.Mat4](device, "shadow-matrices", uint64(cfg.Capacity), metadata.BufferUsageStorage)
	if err != nil {
		return nil, a.fail(err, "matrices buffer")
	}
	a.matrices = matrices

	layout, err := device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name: "shadow",
		Bindings: []metadata.DescriptorBinding{
			{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Count: cfg.Capacity, Stages: metadata.ShaderStageCompute, PartiallyBound: true},
			{Binding: 1, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageCompute},
		},
	})
	if err != nil {
		return nil, a.fail(err, "descriptor set layout")
	}
	a.layout = layout

	set, err := allocator.Allocate(layout)
	if err != nil {
		return nil, a.fail(err, "descriptor set")
	}
	a.set = set

	images := make([]metadata.DescriptorImageInfo, len(a.maps))
	for i, m := range a.maps {
		images[i] = metadata.DescriptorImageInfo{Image: m, Sampler: a.sampler, Layout: metadata.LayoutDepthReadOnly}
	}
	device.UpdateDescriptorSet(set, []metadata.DescriptorWrite{
		{Binding: 0, Type: metadata.DescriptorTypeCombinedImageSampler, Images: images},
		{Binding: 1, Type: metadata.DescriptorTypeStorageBuffer, Buffers: []metadata.DescriptorBufferInfo{{Buffer: a.matrices.DeviceBuffer()}}},
	})

	if err := a.createPipeline(); err != nil {
		return nil, a.fail(err, "pipeline")
	}
	return a, nil
}

func (a *Array) createPipeline() error {
	vertex, err := metadata.LoadShaderModule(a.device, a.cfg.Shaders, VertexShader, metadata.ShaderStageVertex)
	if err != nil {
		return err
	}
	a.vertex = vertex

	size := uint32(len(metadata.ValueBytes(&PushConstants{})))
	metadata.ValidatePushConstants(a.cfg.Reflection, VertexShader, size)

	h, err := a.device.CreateGraphicsPipeline(metadata.GraphicsPipelineCreateInfo{
		Name:          "shadow",
		Vertex:        vertex.Handle,
		PushConstants: []metadata.PushConstantRange{{Stages: metadata.ShaderStageVertex, Size: size}},
		DepthFormat:   DepthFormat,
		CullMode:      metadata.FaceCullModeNone,
		DepthTest:     true,
		DepthWrite:    true,
		DepthBias:     true,
	})
	if err != nil {
		return err
	}
	a.pipeline = &metadata.ShaderPipeline{Name: "shadow", Handle: h}
	return nil
}

func (a *Array) fail(err error, format string, args ...interface{}) error {
	a.Destroy()
	err = core.Wrapf(err, "shadow array: failed to create "+format, args...)
	core.LogError(err.Error())
	return err
}

// SetFocus moves the point directional shadow volumes are centred on.
func (a *Array) SetFocus(focus mgl32.Vec3) {
	a.focus = focus
}

// DirectionalMatrix looks along the light direction at focus from half the volume depth
// away, through an orthographic box.
func DirectionalMatrix(l metadata.DirectionalLight, focus mgl32.Vec3, extent, depth float32) mgl32.Mat4 {
	dir := l.Direction.Normalize()
	eye := focus.Sub(dir.Mul(depth * 0.5))
	view := umath.LookAt(eye, dir)
	proj := umath.Ortho(-extent, extent, -extent, extent, 0, depth)
	return proj.Mul4(view)
}

// SpotMatrix is a perspective frustum matching the cone, reaching out to the light range.
func SpotMatrix(l metadata.SpotLight, near float32) mgl32.Mat4 {
	fov := umath.Clamp(2*l.FalloffRadians, mgl32.DegToRad(1), mgl32.DegToRad(170))
	far := l.Range
	if far <= near {
		far = near + 1
	}
	view := umath.LookAt(l.Position, l.Direction.Normalize())
	proj := umath.Perspective(fov, 1, near, far)
	return proj.Mul4(view)
}

// RecordInitialize stages one matrix per light, directional lights first and then spot
// lights, each group in input order. The lighting pass depends on that order to tell the
// groups apart. Lights past capacity are dropped. Only the maps that will be drawn this
// frame are cleared; they end up ready for depth writes.
func (a *Array) RecordInitialize(cmd metadata.CommandBuffer, directional []metadata.DirectionalLight, spot []metadata.SpotLight) {
	total := len(directional) + len(spot)
	if total > int(a.cfg.Capacity) {
		core.LogWarn("shadow array: %d shadow casting lights for %d maps, dropping %d", total, a.cfg.Capacity, total-int(a.cfg.Capacity))
	}

	a.lightMatrices = a.lightMatrices[:0]
	for _, l := range directional {
		if len(a.lightMatrices) == int(a.cfg.Capacity) {
			break
		}
		a.lightMatrices = append(a.lightMatrices, DirectionalMatrix(l, a.focus, a.cfg.DirectionalExtent, a.cfg.DirectionalDepth))
	}
	for _, l := range spot {
		if len(a.lightMatrices) == int(a.cfg.Capacity) {
			break
		}
		a.lightMatrices = append(a.lightMatrices, SpotMatrix(l, a.cfg.SpotNear))
	}

	a.matrices.Overwrite(a.lightMatrices)
	a.matrices.RecordCopyToDevice(cmd)
	a.matrices.RecordTotalCopyBarrier(cmd, metadata.StageComputeShader, metadata.AccessShaderRead)

	active := a.activeMaps()
	if len(active) == 0 {
		return
	}
	cmd.TransitionImages(active, metadata.LayoutTransferDst)
	for _, m := range active {
		cmd.ClearDepthImage(m, FarDepth)
	}
	cmd.TransitionImages(active, metadata.LayoutDepthAttachment)
}

// RecordDrawCommands renders every renderable instance once per active map. renderable
// runs parallel to instances. It returns the number of draws recorded.
func (a *Array) RecordDrawCommands(cmd metadata.CommandBuffer, instances []*metadata.RenderInstance, renderable []bool) uint32 {
	active := a.activeMaps()
	if len(active) == 0 {
		return 0
	}
	if len(renderable) != len(instances) {
		core.LogWarn("shadow array: %d renderable flags for %d instances", len(renderable), len(instances))
	}

	extent := metadata.Extent2D{Width: a.cfg.Resolution, Height: a.cfg.Resolution}
	var draws uint32
	for i, m := range active {
		cmd.BeginRendering(metadata.RenderingInfo{
			Name:   fmt.Sprintf("shadow-%d", i),
			Extent: extent,
			Depth:  &metadata.DepthAttachment{Image: m, LoadOp: metadata.LoadOpLoad},
		})
		cmd.BindPipeline(a.pipeline.Handle)
		cmd.SetViewportScissor(extent)
		cmd.SetDepthBias(a.bias.Constant, a.bias.Slope)

		for j, inst := range instances {
			if j >= len(renderable) || !renderable[j] {
				continue
			}
			pc := PushConstants{
				LightViewProjection: a.lightMatrices[i],
				VertexAddress:       inst.Mesh.VertexAddress,
				ModelsAddress:       inst.ModelsAddress,
			}
			cmd.PushConstants(a.pipeline.Handle, metadata.ShaderStageVertex, 0, metadata.ValueBytes(&pc))
			cmd.BindIndexBuffer(inst.Mesh.Indices, 0)
			for _, s := range inst.Mesh.Surfaces {
				cmd.DrawIndexed(s.IndexCount, inst.TransformCount, s.FirstIndex, 0, 0)
				draws++
			}
		}
		cmd.EndRendering()
	}
	return draws
}

// RecordTransitionActiveShadowMaps moves only the maps drawn this frame. Inactive maps
// hold stale depth and must not be sampled.
func (a *Array) RecordTransitionActiveShadowMaps(cmd metadata.CommandBuffer, layout metadata.ImageLayout) {
	if active := a.activeMaps(); len(active) > 0 {
		cmd.TransitionImages(active, layout)
	}
}

func (a *Array) activeMaps() []metadata.ImageHandle {
	return a.maps[:a.ActiveCount()]
}

func (a *Array) ActiveCount() uint32 {
	if a.matrices == nil {
		return 0
	}
	return uint32(a.matrices.StagedCount())
}

// LightMatrices returns the matrices staged by the last RecordInitialize.
func (a *Array) LightMatrices() []mgl32.Mat4 {
	return append([]mgl32.Mat4(nil), a.lightMatrices...)
}

func (a *Array) Map(i uint32) metadata.ImageHandle { return a.maps[i] }

func (a *Array) Capacity() uint32 { return a.cfg.Capacity }

func (a *Array) Resolution() uint32 { return a.cfg.Resolution }

func (a *Array) DescriptorSet() metadata.DescriptorSetHandle { return a.set }

func (a *Array) DescriptorLayout() metadata.DescriptorSetLayoutHandle { return a.layout }

func (a *Array) MatricesBuffer() *staged.Buffer[mgl32.Mat4] { return a.matrices }

func (a *Array) Bias() Bias { return a.bias }

func (a *Array) SetBias(b Bias) { a.bias = b }

func (a *Array) Destroy() {
	var shaders []metadata.Shader
	if a.vertex != nil {
		shaders = append(shaders, a.vertex)
	}
	if a.pipeline != nil {
		shaders = append(shaders, a.pipeline)
	}
	metadata.DestroyShaders(a.device, shaders...)
	a.vertex = nil
	a.pipeline = nil

	if a.layout.IsValid() {
		a.device.DestroyDescriptorSetLayout(a.layout)
		a.layout = 0
	}
	if a.matrices != nil {
		a.matrices.Destroy()
		a.matrices = nil
	}
	if a.sampler.IsValid() {
		a.device.DestroySampler(a.sampler)
		a.sampler = 0
	}
	for _, m := range a.maps {
		a.device.DestroyImage(m)
	}
	a.maps = nil
	a.set = 0
}
