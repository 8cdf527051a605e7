package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

// createPipelineLayout resolves set layouts and push constant ranges.
func (vb *VulkanBackend) createPipelineLayout(name string, setLayouts []metadata.DescriptorSetLayoutHandle, pushConstants []metadata.PushConstantRange) (vk.PipelineLayout, error) {
	layouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, h := range setLayouts {
		layout, err := vb.layout(h)
		if err != nil {
			return vk.NullPipelineLayout, core.Wrapf(err, "pipeline %s: set %d", name, i)
		}
		layouts[i] = layout
	}

	// NOTE: Vulkan only guarantees 128 bytes of push constants.
	ranges := make([]vk.PushConstantRange, len(pushConstants))
	for i, r := range pushConstants {
		if r.Offset+r.Size > metadata.MaxPushConstantSize {
			return vk.NullPipelineLayout, core.Newf("pipeline %s: push constant range %d ends at %d, past %d bytes",
				name, i, r.Offset+r.Size, metadata.MaxPushConstantSize)
		}
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(layouts)),
		PSetLayouts:            layouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}
	var pipelineLayout vk.PipelineLayout
	if err := ResultError(vk.CreatePipelineLayout(vb.context.Device.LogicalDevice, &pipelineLayoutCreateInfo, vb.context.Allocator, &pipelineLayout), "vkCreatePipelineLayout"); err != nil {
		return vk.NullPipelineLayout, core.Wrapf(err, "pipeline %s", name)
	}
	return pipelineLayout, nil
}

// CreateGraphicsPipeline builds a pipeline without vertex input: vertices are pulled from
// buffer device addresses handed over in push constants.
func (vb *VulkanBackend) CreateGraphicsPipeline(info metadata.GraphicsPipelineCreateInfo) (metadata.PipelineHandle, error) {
	vertex, err := vb.shaderModule(info.Vertex)
	if err != nil {
		return 0, core.Wrapf(err, "pipeline %s: vertex stage", info.Name)
	}
	stages := []vk.PipelineShaderStageCreateInfo{vertex.stageCreateInfo()}
	if info.Fragment.IsValid() {
		fragment, err := vb.shaderModule(info.Fragment)
		if err != nil {
			return 0, core.Wrapf(err, "pipeline %s: fragment stage", info.Name)
		}
		stages = append(stages, fragment.stageCreateInfo())
	}

	renderpass, err := vb.renderpasses.get(renderpassKeyFor(info.ColorFormats, info.DepthFormat, nil, metadata.LoadOpLoad))
	if err != nil {
		return 0, core.Wrapf(err, "pipeline %s", info.Name)
	}

	pipelineLayout, err := vb.createPipelineLayout(info.Name, info.SetLayouts, info.PushConstants)
	if err != nil {
		return 0, err
	}

	// Viewport and scissor are dynamic, only the counts matter here.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkanCullMode(info.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if info.DepthBias {
		rasterizerCreateInfo.DepthBiasEnable = vk.True
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.False,
		DepthWriteEnable:      vk.False,
		DepthCompareOp:        vk.CompareOpLessOrEqual,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MinDepthBounds:        0.0,
		MaxDepthBounds:        1.0,
	}
	if info.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if info.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	// G-buffer targets are written whole, no blending.
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(info.ColorFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	if info.DepthBias {
		dynamicStates = append(dynamicStates, vk.DynamicStateDepthBias)
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              pipelineLayout,
		RenderPass:          renderpass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(vb.context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, vb.context.Allocator, pipelines)
	if err := ResultError(res, "vkCreateGraphicsPipelines"); err != nil {
		vk.DestroyPipelineLayout(vb.context.Device.LogicalDevice, pipelineLayout, vb.context.Allocator)
		return 0, core.Wrapf(err, "pipeline %s", info.Name)
	}

	core.LogDebug("Graphics pipeline %s created!", info.Name)
	return vb.insertPipeline(info.Name, &VulkanPipeline{
		Handle:         pipelines[0],
		PipelineLayout: pipelineLayout,
		BindPoint:      vk.PipelineBindPointGraphics,
	}), nil
}

func (vb *VulkanBackend) CreateComputePipeline(info metadata.ComputePipelineCreateInfo) (metadata.PipelineHandle, error) {
	compute, err := vb.shaderModule(info.Compute)
	if err != nil {
		return 0, core.Wrapf(err, "pipeline %s: compute stage", info.Name)
	}
	pipelineLayout, err := vb.createPipelineLayout(info.Name, info.SetLayouts, info.PushConstants)
	if err != nil {
		return 0, err
	}

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              compute.stageCreateInfo(),
		Layout:             pipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}
	pipelines := make([]vk.Pipeline, 1)
	res := vk.CreateComputePipelines(vb.context.Device.LogicalDevice, vk.NullPipelineCache, 1,
		[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, vb.context.Allocator, pipelines)
	if err := ResultError(res, "vkCreateComputePipelines"); err != nil {
		vk.DestroyPipelineLayout(vb.context.Device.LogicalDevice, pipelineLayout, vb.context.Allocator)
		return 0, core.Wrapf(err, "pipeline %s", info.Name)
	}

	core.LogDebug("Compute pipeline %s created!", info.Name)
	return vb.insertPipeline(info.Name, &VulkanPipeline{
		Handle:         pipelines[0],
		PipelineLayout: pipelineLayout,
		BindPoint:      vk.PipelineBindPointCompute,
	}), nil
}

func (vb *VulkanBackend) insertPipeline(name string, pipeline *VulkanPipeline) metadata.PipelineHandle {
	var h metadata.PipelineHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.PipelineHandle(vb.pipelines.Insert(name, pipeline))
		return nil
	})
	return h
}

func (vb *VulkanBackend) pipeline(h metadata.PipelineHandle) (*VulkanPipeline, error) {
	var pipeline *VulkanPipeline
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		pipeline, err = vb.pipelines.Get(containers.Handle(h))
		return err
	})
	return pipeline, err
}

func (vb *VulkanBackend) DestroyPipeline(h metadata.PipelineHandle) {
	var pipeline *VulkanPipeline
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		pipeline, err = vb.pipelines.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy pipeline: %s", err)
		return
	}
	pipeline.destroy(vb.context)
}

func (pipeline *VulkanPipeline) destroy(context *VulkanContext) {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
	if pipeline.PipelineLayout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
		pipeline.PipelineLayout = vk.NullPipelineLayout
	}
}
