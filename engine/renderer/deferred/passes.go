package deferred

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/staged"
)

var (
	gbufferClearColor = mgl32.Vec4{0, 0, 0, 0}
	outputClearColor  = mgl32.Vec4{0, 0, 0, 1}
)

// RecordDrawCommands records one frame. The output image is left in LayoutGeneral so the
// sky pass can keep writing to it.
func (p *Pipeline) RecordDrawCommands(cmd metadata.CommandBuffer, in *FrameInputs) {
	if p.gbuffer == nil || in == nil {
		core.LogError("deferred pipeline: nothing to record, render targets missing")
		return
	}
	p.stats = Stats{}

	// camera, atmosphere and model copies were recorded by the caller
	staged.RecordTotalCopyBarrier(cmd,
		metadata.StageVertexShader|metadata.StageComputeShader,
		metadata.AccessShaderRead|metadata.AccessUniformRead)

	directional, spot := p.recordLightUpload(cmd, in)

	p.shadows.SetFocus(in.CameraPosition)
	p.shadows.RecordInitialize(cmd, directional, spot)
	p.stats.ShadowDraws = p.shadows.RecordDrawCommands(cmd, in.Instances, in.Renderable)
	p.stats.ActiveShadowMaps = p.shadows.ActiveCount()

	p.recordGeometryPass(cmd, in)
	p.recordLightingPass(cmd)
}

// recordLightUpload stages both light categories and returns the lights that made it into
// the buffers, which are also the shadow casters.
func (p *Pipeline) recordLightUpload(cmd metadata.CommandBuffer, in *FrameInputs) ([]metadata.DirectionalLight, []metadata.SpotLight) {
	directional := in.Directional
	if n := p.directional.Capacity(); uint64(len(directional)) > n {
		core.LogWarn("deferred pipeline: %d directional lights, keeping %d", len(directional), n)
		directional = directional[:n]
	}
	spot := in.Spot
	if n := p.spot.Capacity(); uint64(len(spot)) > n {
		core.LogWarn("deferred pipeline: %d spot lights, keeping %d", len(spot), n)
		spot = spot[:n]
	}

	if len(directional) == 0 {
		p.directional.ClearStagedAndDevice()
	} else {
		records := make([]metadata.DirectionalLightRecord, len(directional))
		for i, l := range directional {
			records[i] = l.Pack()
		}
		p.directional.Overwrite(records)
		p.directional.RecordCopyToDevice(cmd)
	}

	if len(spot) == 0 {
		p.spot.ClearStagedAndDevice()
	} else {
		records := make([]metadata.SpotLightRecord, len(spot))
		for i, l := range spot {
			records[i] = l.Pack()
		}
		p.spot.Overwrite(records)
		p.spot.RecordCopyToDevice(cmd)
	}

	if len(directional) > 0 || len(spot) > 0 {
		staged.RecordTotalCopyBarrier(cmd, metadata.StageComputeShader, metadata.AccessShaderRead)
	}
	p.stats.Directional = uint32(p.directional.DeviceCountQueued())
	p.stats.Spot = uint32(p.spot.DeviceCountQueued())
	return directional, spot
}

func (p *Pipeline) recordGeometryPass(cmd metadata.CommandBuffer, in *FrameInputs) {
	p.gbuffer.RecordTransitionImages(cmd, metadata.LayoutColorAttachment)

	anyRenderable := false
	for i := range in.Instances {
		if i < len(in.Renderable) && in.Renderable[i] {
			anyRenderable = true
			break
		}
	}
	if !anyRenderable {
		// nothing to draw; the lighting pass still needs a depth buffer that reads as empty
		p.stats.GeometrySkipped = true
		cmd.TransitionImages([]metadata.ImageHandle{p.depth}, metadata.LayoutTransferDst)
		cmd.ClearDepthImage(p.depth, FarDepth)
		return
	}

	extent := p.gbuffer.Extent()
	cmd.TransitionImages([]metadata.ImageHandle{p.depth}, metadata.LayoutDepthAttachment)
	cmd.BeginRendering(metadata.RenderingInfo{
		Name:   "geometry",
		Extent: extent,
		Color:  p.gbuffer.ColorAttachments(metadata.LoadOpClear, gbufferClearColor),
		Depth:  &metadata.DepthAttachment{Image: p.depth, LoadOp: metadata.LoadOpClear, ClearDepth: FarDepth},
	})
	cmd.BindPipeline(p.geometry.Handle)
	cmd.SetViewportScissor(extent)

	for i, inst := range in.Instances {
		if i >= len(in.Renderable) || !in.Renderable[i] {
			continue
		}
		pc := GeometryPushConstants{
			VertexAddress: inst.Mesh.VertexAddress,
			ModelsAddress: inst.ModelsAddress,
			CameraAddress: in.CameraAddress,
		}
		cmd.PushConstants(p.geometry.Handle, metadata.ShaderStageVertex, 0, metadata.ValueBytes(&pc))
		cmd.BindIndexBuffer(inst.Mesh.Indices, 0)
		for _, s := range inst.Mesh.Surfaces {
			if s.Material == nil || !s.Material.DescriptorSet.IsValid() {
				p.stats.SkippedSurfaces++
				continue
			}
			cmd.BindDescriptorSets(p.geometry.Handle, 0, []metadata.DescriptorSetHandle{s.Material.DescriptorSet})
			cmd.DrawIndexed(s.IndexCount, inst.TransformCount, s.FirstIndex, 0, 0)
			p.stats.GeometryDraws++
		}
	}
	cmd.EndRendering()
}

func (p *Pipeline) recordLightingPass(cmd metadata.CommandBuffer) {
	output := []metadata.ImageHandle{p.targets.Output}
	cmd.TransitionImages(output, metadata.LayoutGeneral)
	cmd.ClearColorImage(p.targets.Output, outputClearColor)
	// the clear is a transfer write; the dispatch below stores to the same image
	cmd.TransitionImages(output, metadata.LayoutGeneral)

	p.gbuffer.RecordTransitionImages(cmd, metadata.LayoutShaderReadOnly)
	p.shadows.RecordTransitionActiveShadowMaps(cmd, metadata.LayoutDepthReadOnly)
	cmd.TransitionImages([]metadata.ImageHandle{p.depth}, metadata.LayoutDepthReadOnly)

	extent := p.gbuffer.Extent()
	bias := p.shadows.Bias()
	pc := LightingPushConstants{
		Extent:           [2]uint32{extent.Width, extent.Height},
		DirectionalCount: uint32(p.directional.DeviceCountQueued()),
		SpotCount:        uint32(p.spot.DeviceCountQueued()),
		BiasConstant:     bias.Constant,
		BiasSlope:        bias.Slope,
		ActiveShadowMaps: p.shadows.ActiveCount(),
	}

	cmd.BindPipeline(p.lighting.Handle)
	cmd.BindDescriptorSets(p.lighting.Handle, 0, []metadata.DescriptorSetHandle{
		p.gbuffer.DescriptorSet(),
		p.shadows.DescriptorSet(),
		p.frameSet,
	})
	cmd.PushConstants(p.lighting.Handle, metadata.ShaderStageCompute, 0, metadata.ValueBytes(&pc))

	x := DispatchCount(extent.Width, WorkgroupSize)
	y := DispatchCount(extent.Height, WorkgroupSize)
	cmd.Dispatch(x, y, 1)
	p.stats.Dispatch = [3]uint32{x, y, 1}
}
