// Package deferred sequences the frame: light upload, shadow maps, the geometry pass into
// the GBuffer and the lighting compute pass that writes the output image.
package deferred

import (
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gbuffer"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/spaghettifunk/umbra/engine/renderer/staged"
)

const (
	DepthFormat = metadata.FormatD32Sfloat
	// FarDepth is what an empty depth target holds.
	FarDepth = float32(1.0)

	GeometryVertexShader   = "gbuffer.vert"
	GeometryFragmentShader = "gbuffer.frag"
	LightingShader         = "lighting.comp"
)

// Bindings of the per-frame lighting set (set 2).
const (
	bindingOutput uint32 = iota
	bindingCamera
	bindingAtmosphere
	bindingDirectional
	bindingSpot
	bindingDepth
)

type Config struct {
	Extent               metadata.Extent2D
	MaxDirectionalLights uint32
	MaxSpotLights        uint32
	Shadow               shadow.Config
	Shaders              metadata.ShaderSource
	Reflection           config.Reflection
}

// ConfigFrom picks the pipeline settings out of the engine configuration.
func ConfigFrom(cfg *config.Config, extent metadata.Extent2D, shaders metadata.ShaderSource, reflection config.Reflection) Config {
	return Config{
		Extent:               extent,
		MaxDirectionalLights: cfg.Limits.MaxDirectionalLights,
		MaxSpotLights:        cfg.Limits.MaxSpotLights,
		Shadow:               shadow.ConfigFrom(cfg, shaders, reflection),
		Shaders:              shaders,
		Reflection:           reflection,
	}
}

type Pipeline struct {
	device    metadata.Device
	allocator metadata.DescriptorAllocator
	cfg       Config
	targets   Targets

	gbuffer *gbuffer.GBuffer
	shadows *shadow.Array
	depth   metadata.ImageHandle

	directional *staged.Buffer[metadata.DirectionalLightRecord]
	spot        *staged.Buffer[metadata.SpotLightRecord]

	depthSampler   metadata.SamplerHandle
	materialLayout metadata.DescriptorSetLayoutHandle
	frameLayout    metadata.DescriptorSetLayoutHandle
	frameSet       metadata.DescriptorSetHandle

	geometryVertex   *metadata.ShaderModule
	geometryFragment *metadata.ShaderModule
	geometry         *metadata.ShaderPipeline
	lightingModule   *metadata.ShaderModule
	lighting         *metadata.ShaderPipeline

	stats Stats
}

func New(device metadata.Device, allocator metadata.DescriptorAllocator, cfg Config, targets Targets) (*Pipeline, error) {
	p := &Pipeline{
		device:    device,
		allocator: allocator,
		cfg:       cfg,
		targets:   targets,
	}

	var err error
	if p.directional, err = staged.New[metadata.DirectionalLightRecord](device, "directional-lights", uint64(cfg.MaxDirectionalLights), metadata.BufferUsageStorage); err != nil {
		return nil, p.fail(err, "directional light buffer")
	}
	if p.spot, err = staged.New[metadata.SpotLightRecord](device, "spot-lights", uint64(cfg.MaxSpotLights), metadata.BufferUsageStorage); err != nil {
		return nil, p.fail(err, "spot light buffer")
	}
	if p.shadows, err = shadow.New(device, allocator, cfg.Shadow); err != nil {
		return nil, p.fail(err, "shadow array")
	}
	if p.depthSampler, err = device.CreateSampler(metadata.SamplerCreateInfo{
		Name:        "depth",
		MagFilter:   metadata.FilterNearest,
		MinFilter:   metadata.FilterNearest,
		AddressMode: metadata.AddressModeClampToEdge,
	}); err != nil {
		return nil, p.fail(err, "depth sampler")
	}
	if err := p.createLayouts(); err != nil {
		return nil, p.fail(err, "descriptor layouts")
	}
	if p.frameSet, err = allocator.Allocate(p.frameLayout); err != nil {
		return nil, p.fail(err, "lighting descriptor set")
	}
	if err := p.createGeometryPipeline(); err != nil {
		return nil, p.fail(err, "geometry pipeline")
	}
	if err := p.createTargets(cfg.Extent); err != nil {
		return nil, p.fail(err, "render targets")
	}
	return p, nil
}

func (p *Pipeline) fail(err error, what string) error {
	p.Destroy()
	err = core.Wrapf(err, "deferred pipeline: failed to create %s", what)
	core.LogError(err.Error())
	return err
}

func (p *Pipeline) createLayouts() error {
	var err error
	p.materialLayout, err = p.device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name: "material",
		Bindings: []metadata.DescriptorBinding{
			{Binding: 0, Type: metadata.DescriptorTypeUniformBuffer, Count: 1, Stages: metadata.ShaderStageFragment},
		},
	})
	if err != nil {
		return err
	}
	p.frameLayout, err = p.device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name: "lighting",
		Bindings: []metadata.DescriptorBinding{
			{Binding: bindingOutput, Type: metadata.DescriptorTypeStorageImage, Count: 1, Stages: metadata.ShaderStageCompute},
			{Binding: bindingCamera, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageCompute},
			{Binding: bindingAtmosphere, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageCompute},
			{Binding: bindingDirectional, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageCompute},
			{Binding: bindingSpot, Type: metadata.DescriptorTypeStorageBuffer, Count: 1, Stages: metadata.ShaderStageCompute},
			{Binding: bindingDepth, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 1, Stages: metadata.ShaderStageCompute,
				ImmutableSamplers: []metadata.SamplerHandle{p.depthSampler}},
		},
	})
	return err
}

func (p *Pipeline) createGeometryPipeline() error {
	var err error
	if p.geometryVertex, err = metadata.LoadShaderModule(p.device, p.cfg.Shaders, GeometryVertexShader, metadata.ShaderStageVertex); err != nil {
		return err
	}
	if p.geometryFragment, err = metadata.LoadShaderModule(p.device, p.cfg.Shaders, GeometryFragmentShader, metadata.ShaderStageFragment); err != nil {
		return err
	}
	size := uint32(len(metadata.ValueBytes(&GeometryPushConstants{})))
	metadata.ValidatePushConstants(p.cfg.Reflection, GeometryVertexShader, size)

	h, err := p.device.CreateGraphicsPipeline(metadata.GraphicsPipelineCreateInfo{
		Name:          "geometry",
		Vertex:        p.geometryVertex.Handle,
		Fragment:      p.geometryFragment.Handle,
		SetLayouts:    []metadata.DescriptorSetLayoutHandle{p.materialLayout},
		PushConstants: []metadata.PushConstantRange{{Stages: metadata.ShaderStageVertex, Size: size}},
		ColorFormats:  gbuffer.Formats(),
		DepthFormat:   DepthFormat,
		CullMode:      metadata.FaceCullModeBack,
		DepthTest:     true,
		DepthWrite:    true,
	})
	if err != nil {
		return err
	}
	p.geometry = &metadata.ShaderPipeline{Name: "geometry", Handle: h}
	return nil
}

// createLightingPipeline depends on the GBuffer layout, so it is rebuilt with the GBuffer.
func (p *Pipeline) createLightingPipeline() error {
	var err error
	if p.lightingModule == nil {
		if p.lightingModule, err = metadata.LoadShaderModule(p.device, p.cfg.Shaders, LightingShader, metadata.ShaderStageCompute); err != nil {
			return err
		}
	}
	size := uint32(len(metadata.ValueBytes(&LightingPushConstants{})))
	metadata.ValidatePushConstants(p.cfg.Reflection, LightingShader, size)

	h, err := p.device.CreateComputePipeline(metadata.ComputePipelineCreateInfo{
		Name:    "lighting",
		Compute: p.lightingModule.Handle,
		SetLayouts: []metadata.DescriptorSetLayoutHandle{
			p.gbuffer.DescriptorLayout(),
			p.shadows.DescriptorLayout(),
			p.frameLayout,
		},
		PushConstants: []metadata.PushConstantRange{{Stages: metadata.ShaderStageCompute, Size: size}},
	})
	if err != nil {
		return err
	}
	p.lighting = &metadata.ShaderPipeline{Name: "lighting", Handle: h}
	return nil
}

// createTargets builds everything sized by the output: GBuffer, depth target, lighting
// pipeline, and the lighting set contents.
func (p *Pipeline) createTargets(extent metadata.Extent2D) error {
	var err error
	if p.gbuffer, err = gbuffer.New(p.device, p.allocator, extent); err != nil {
		return err
	}
	if p.depth, err = p.device.CreateImage(metadata.ImageCreateInfo{
		Name:   "depth",
		Format: DepthFormat,
		Extent: extent,
		Usage:  metadata.ImageUsageDepthAttachment | metadata.ImageUsageSampled | metadata.ImageUsageTransferDst,
	}); err != nil {
		return err
	}
	if err := p.createLightingPipeline(); err != nil {
		return err
	}
	p.cfg.Extent = extent
	p.writeFrameSet()
	return nil
}

func (p *Pipeline) destroyTargets() {
	if p.lighting != nil {
		p.lighting.Destroy(p.device)
		p.lighting = nil
	}
	if p.depth.IsValid() {
		p.device.DestroyImage(p.depth)
		p.depth = 0
	}
	if p.gbuffer != nil {
		p.gbuffer.Destroy()
		p.gbuffer = nil
	}
}

func (p *Pipeline) writeFrameSet() {
	p.device.UpdateDescriptorSet(p.frameSet, []metadata.DescriptorWrite{
		{Binding: bindingOutput, Type: metadata.DescriptorTypeStorageImage,
			Images: []metadata.DescriptorImageInfo{{Image: p.targets.Output, Layout: metadata.LayoutGeneral}}},
		{Binding: bindingCamera, Type: metadata.DescriptorTypeStorageBuffer,
			Buffers: []metadata.DescriptorBufferInfo{{Buffer: p.targets.Camera}}},
		{Binding: bindingAtmosphere, Type: metadata.DescriptorTypeStorageBuffer,
			Buffers: []metadata.DescriptorBufferInfo{{Buffer: p.targets.Atmosphere}}},
		{Binding: bindingDirectional, Type: metadata.DescriptorTypeStorageBuffer,
			Buffers: []metadata.DescriptorBufferInfo{{Buffer: p.directional.DeviceBuffer()}}},
		{Binding: bindingSpot, Type: metadata.DescriptorTypeStorageBuffer,
			Buffers: []metadata.DescriptorBufferInfo{{Buffer: p.spot.DeviceBuffer()}}},
		{Binding: bindingDepth, Type: metadata.DescriptorTypeCombinedImageSampler,
			Images: []metadata.DescriptorImageInfo{{Image: p.depth, Layout: metadata.LayoutDepthReadOnly}}},
	})
}

// Resize recreates every extent-sized resource for a new output image. The device must be
// idle.
func (p *Pipeline) Resize(extent metadata.Extent2D, output metadata.ImageHandle) error {
	p.destroyTargets()
	p.targets.Output = output
	if err := p.createTargets(extent); err != nil {
		err = core.Wrapf(err, "deferred pipeline: resize to %dx%d", extent.Width, extent.Height)
		core.LogError(err.Error())
		return err
	}
	core.LogDebug("deferred pipeline resized to %dx%d", extent.Width, extent.Height)
	return nil
}

func (p *Pipeline) Extent() metadata.Extent2D { return p.gbuffer.Extent() }

func (p *Pipeline) GBuffer() *gbuffer.GBuffer { return p.gbuffer }

func (p *Pipeline) Shadows() *shadow.Array { return p.shadows }

func (p *Pipeline) DepthTarget() metadata.ImageHandle { return p.depth }

// MaterialLayout is set 0 of the geometry pipeline; material descriptor sets are allocated
// against it.
func (p *Pipeline) MaterialLayout() metadata.DescriptorSetLayoutHandle { return p.materialLayout }

func (p *Pipeline) DirectionalLights() *staged.Buffer[metadata.DirectionalLightRecord] {
	return p.directional
}

func (p *Pipeline) SpotLights() *staged.Buffer[metadata.SpotLightRecord] { return p.spot }

func (p *Pipeline) Stats() Stats { return p.stats }

func (p *Pipeline) ShadowBias() shadow.Bias { return p.shadows.Bias() }

func (p *Pipeline) SetShadowBias(b shadow.Bias) { p.shadows.SetBias(b) }

func (p *Pipeline) Destroy() {
	p.destroyTargets()

	var shaders []metadata.Shader
	for _, s := range []*metadata.ShaderModule{p.geometryVertex, p.geometryFragment, p.lightingModule} {
		if s != nil {
			shaders = append(shaders, s)
		}
	}
	if p.geometry != nil {
		shaders = append(shaders, p.geometry)
	}
	metadata.DestroyShaders(p.device, shaders...)
	p.geometryVertex, p.geometryFragment, p.lightingModule, p.geometry = nil, nil, nil, nil

	if p.frameLayout.IsValid() {
		p.device.DestroyDescriptorSetLayout(p.frameLayout)
		p.frameLayout = 0
	}
	if p.materialLayout.IsValid() {
		p.device.DestroyDescriptorSetLayout(p.materialLayout)
		p.materialLayout = 0
	}
	if p.depthSampler.IsValid() {
		p.device.DestroySampler(p.depthSampler)
		p.depthSampler = 0
	}
	if p.shadows != nil {
		p.shadows.Destroy()
		p.shadows = nil
	}
	if p.spot != nil {
		p.spot.Destroy()
		p.spot = nil
	}
	if p.directional != nil {
		p.directional.Destroy()
		p.directional = nil
	}
	p.frameSet = 0
}
