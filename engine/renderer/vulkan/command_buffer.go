package vulkan

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer records into a primary command buffer. Misuse found while recording
// is logged and the first such error is returned by End.
type VulkanCommandBuffer struct {
	backend *VulkanBackend
	name    string

	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	err error
}

var _ metadata.CommandBuffer = (*VulkanCommandBuffer)(nil)

func (vb *VulkanBackend) newCommandBuffer(name string) (*VulkanCommandBuffer, error) {
	cmd := &VulkanCommandBuffer{
		backend: vb,
		name:    name,
		State:   COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vb.context.Device.GraphicsCommandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	err := vb.locks.SafeCall(QueueManagement, func() error {
		return ResultError(vk.AllocateCommandBuffers(vb.context.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers")
	})
	if err != nil {
		return nil, core.Wrapf(err, "command buffer %s", name)
	}
	cmd.Handle = handles[0]
	cmd.State = COMMAND_BUFFER_STATE_READY
	return cmd, nil
}

func (cmd *VulkanCommandBuffer) free() {
	if cmd.Handle == nil {
		return
	}
	vb := cmd.backend
	_ = vb.locks.SafeCall(QueueManagement, func() error {
		vk.FreeCommandBuffers(vb.context.Device.LogicalDevice, vb.context.Device.GraphicsCommandPool, 1, []vk.CommandBuffer{cmd.Handle})
		return nil
	})
	cmd.Handle = nil
	cmd.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

// fail keeps the first recording error around for End.
func (cmd *VulkanCommandBuffer) fail(err error) {
	core.LogError("command buffer %s: %s", cmd.name, err)
	if cmd.err == nil {
		cmd.err = err
	}
}

func (cmd *VulkanCommandBuffer) recording(op string) bool {
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING && cmd.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cmd.fail(core.Newf("%s recorded outside Begin/End", op))
		return false
	}
	return true
}

func (cmd *VulkanCommandBuffer) Reset() error {
	if cmd.State == COMMAND_BUFFER_STATE_RECORDING || cmd.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return core.Newf("command buffer %s reset while recording", cmd.name)
	}
	if err := ResultError(vk.ResetCommandBuffer(cmd.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return core.Wrapf(err, "command buffer %s", cmd.name)
	}
	cmd.State = COMMAND_BUFFER_STATE_READY
	cmd.err = nil
	return nil
}

func (cmd *VulkanCommandBuffer) Begin(oneTimeSubmit bool) error {
	if cmd.State == COMMAND_BUFFER_STATE_RECORDING || cmd.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return core.Newf("command buffer %s already recording", cmd.name)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := ResultError(vk.BeginCommandBuffer(cmd.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return core.Wrapf(err, "command buffer %s", cmd.name)
	}
	cmd.State = COMMAND_BUFFER_STATE_RECORDING
	cmd.err = nil
	return nil
}

func (cmd *VulkanCommandBuffer) End() error {
	if cmd.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cmd.fail(core.Newf("ended inside a render pass"))
		vk.CmdEndRenderPass(cmd.Handle)
	} else if cmd.State != COMMAND_BUFFER_STATE_RECORDING {
		return core.Newf("command buffer %s is not recording", cmd.name)
	}
	if err := ResultError(vk.EndCommandBuffer(cmd.Handle), "vkEndCommandBuffer"); err != nil {
		return core.Wrapf(err, "command buffer %s", cmd.name)
	}
	cmd.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	if cmd.err != nil {
		return core.Wrapf(cmd.err, "command buffer %s", cmd.name)
	}
	return nil
}

func (cmd *VulkanCommandBuffer) UpdateSubmitted() {
	cmd.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (cmd *VulkanCommandBuffer) CopyBuffer(src, dst metadata.BufferHandle, regions []metadata.BufferCopy) {
	if !cmd.recording("copy") || len(regions) == 0 {
		return
	}
	s, err := cmd.backend.buffer(src)
	if err != nil {
		cmd.fail(err)
		return
	}
	d, err := cmd.backend.buffer(dst)
	if err != nil {
		cmd.fail(err)
		return
	}
	copies := make([]vk.BufferCopy, 0, len(regions))
	for _, r := range regions {
		if r.SrcOffset+r.Size > s.Size || r.DstOffset+r.Size > d.Size {
			cmd.fail(core.Newf("copy out of range: %+v (src=%d dst=%d bytes)", r, s.Size, d.Size))
			continue
		}
		copies = append(copies, vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		})
	}
	if len(copies) > 0 {
		vk.CmdCopyBuffer(cmd.Handle, s.Handle, d.Handle, uint32(len(copies)), copies)
	}
}

func (cmd *VulkanCommandBuffer) MemoryBarrier(srcStage metadata.PipelineStage, srcAccess metadata.Access, dstStage metadata.PipelineStage, dstAccess metadata.Access) {
	if !cmd.recording("barrier") {
		return
	}
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(srcAccess),
		DstAccessMask: vk.AccessFlags(dstAccess),
	}
	vk.CmdPipelineBarrier(cmd.Handle,
		vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}

func (cmd *VulkanCommandBuffer) TransitionImages(images []metadata.ImageHandle, layout metadata.ImageLayout) {
	if !cmd.recording("transition") || len(images) == 0 {
		return
	}
	barriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, h := range images {
		image, err := cmd.backend.image(h)
		if err != nil {
			cmd.fail(err)
			continue
		}
		barriers = append(barriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessMemoryWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit),
			OldLayout:           vulkanLayout(image.Layout),
			NewLayout:           vulkanLayout(layout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspectFor(image.Format),
				LevelCount: 1,
				LayerCount: 1,
			},
		})
		image.Layout = layout
	}
	if len(barriers) == 0 {
		return
	}
	vk.CmdPipelineBarrier(cmd.Handle,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, uint32(len(barriers)), barriers)
}

// clearable returns the image when it is in a layout clears are allowed in.
func (cmd *VulkanCommandBuffer) clearable(h metadata.ImageHandle, op string) *VulkanImage {
	if !cmd.recording(op) {
		return nil
	}
	image, err := cmd.backend.image(h)
	if err != nil {
		cmd.fail(err)
		return nil
	}
	if image.Layout != metadata.LayoutGeneral && image.Layout != metadata.LayoutTransferDst {
		cmd.fail(core.Newf("%s of image in layout %s", op, image.Layout))
		return nil
	}
	return image
}

func (cmd *VulkanCommandBuffer) ClearColorImage(h metadata.ImageHandle, color mgl32.Vec4) {
	image := cmd.clearable(h, "clear-color")
	if image == nil {
		return
	}
	rgba := [4]float32(color)
	clearValue := *(*vk.ClearColorValue)(unsafe.Pointer(&rgba))
	vk.CmdClearColorImage(cmd.Handle, image.Handle, vulkanLayout(image.Layout), &clearValue, 1, []vk.ImageSubresourceRange{{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LevelCount: 1,
		LayerCount: 1,
	}})
}

func (cmd *VulkanCommandBuffer) ClearDepthImage(h metadata.ImageHandle, depth float32) {
	image := cmd.clearable(h, "clear-depth")
	if image == nil {
		return
	}
	clearValue := vk.ClearDepthStencilValue{Depth: depth}
	vk.CmdClearDepthStencilImage(cmd.Handle, image.Handle, vulkanLayout(image.Layout), &clearValue, 1, []vk.ImageSubresourceRange{{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectDepthBit),
		LevelCount: 1,
		LayerCount: 1,
	}})
}

func (cmd *VulkanCommandBuffer) BlitImage(src, dst metadata.ImageHandle, srcExtent, dstExtent metadata.Extent2D) {
	if !cmd.recording("blit") {
		return
	}
	s, err := cmd.backend.image(src)
	if err != nil {
		cmd.fail(err)
		return
	}
	d, err := cmd.backend.image(dst)
	if err != nil {
		cmd.fail(err)
		return
	}
	if s.Layout != metadata.LayoutTransferSrc || d.Layout != metadata.LayoutTransferDst {
		cmd.fail(core.Newf("blit from layout %s to layout %s", s.Layout, d.Layout))
		return
	}
	subresource := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource,
		SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(srcExtent.Width), Y: int32(srcExtent.Height), Z: 1}},
		DstSubresource: subresource,
		DstOffsets:     [2]vk.Offset3D{{}, {X: int32(dstExtent.Width), Y: int32(dstExtent.Height), Z: 1}},
	}
	vk.CmdBlitImage(cmd.Handle,
		s.Handle, vk.ImageLayoutTransferSrcOptimal,
		d.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}

func (cmd *VulkanCommandBuffer) BeginRendering(info metadata.RenderingInfo) {
	if !cmd.recording("begin-rendering") {
		return
	}
	if cmd.State == COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cmd.fail(core.Newf("pass %s begun inside another pass", info.Name))
		return
	}

	formats := make([]metadata.Format, 0, len(info.Color))
	loads := make([]metadata.LoadOp, 0, len(info.Color))
	views := make([]vk.ImageView, 0, len(info.Color)+1)
	clearValues := make([]vk.ClearValue, 0, len(info.Color)+1)
	for _, a := range info.Color {
		image, err := cmd.backend.image(a.Image)
		if err != nil {
			cmd.fail(core.Wrapf(err, "pass %s", info.Name))
			return
		}
		if image.Layout != metadata.LayoutColorAttachment {
			cmd.fail(core.Newf("pass %s: color attachment in layout %s", info.Name, image.Layout))
		}
		formats = append(formats, image.Format)
		loads = append(loads, a.LoadOp)
		views = append(views, image.View)
		var clear vk.ClearValue
		clear.SetColor(a.ClearColor[:])
		clearValues = append(clearValues, clear)
	}

	depthFormat := metadata.FormatUndefined
	depthLoad := metadata.LoadOpLoad
	if info.Depth != nil {
		image, err := cmd.backend.image(info.Depth.Image)
		if err != nil {
			cmd.fail(core.Wrapf(err, "pass %s", info.Name))
			return
		}
		if image.Layout != metadata.LayoutDepthAttachment {
			cmd.fail(core.Newf("pass %s: depth attachment in layout %s", info.Name, image.Layout))
		}
		depthFormat = image.Format
		depthLoad = info.Depth.LoadOp
		views = append(views, image.View)
		var clear vk.ClearValue
		clear.SetDepthStencil(info.Depth.ClearDepth, 0)
		clearValues = append(clearValues, clear)
	}

	renderpass, err := cmd.backend.renderpasses.get(renderpassKeyFor(formats, depthFormat, loads, depthLoad))
	if err != nil {
		cmd.fail(core.Wrapf(err, "pass %s", info.Name))
		return
	}
	framebuffer, err := cmd.backend.framebuffers.get(renderpass, views, info.Extent.Width, info.Extent.Height)
	if err != nil {
		cmd.fail(core.Wrapf(err, "pass %s", info.Name))
		return
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderpass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vulkanExtent(info.Extent),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd.Handle, &beginInfo, vk.SubpassContentsInline)
	cmd.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (cmd *VulkanCommandBuffer) EndRendering() {
	if cmd.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cmd.fail(core.Newf("end rendering outside a pass"))
		return
	}
	vk.CmdEndRenderPass(cmd.Handle)
	cmd.State = COMMAND_BUFFER_STATE_RECORDING
}

func (cmd *VulkanCommandBuffer) BindPipeline(h metadata.PipelineHandle) {
	if !cmd.recording("bind-pipeline") {
		return
	}
	pipeline, err := cmd.backend.pipeline(h)
	if err != nil {
		cmd.fail(err)
		return
	}
	vk.CmdBindPipeline(cmd.Handle, pipeline.BindPoint, pipeline.Handle)
}

func (cmd *VulkanCommandBuffer) BindDescriptorSets(h metadata.PipelineHandle, firstSet uint32, sets []metadata.DescriptorSetHandle) {
	if !cmd.recording("bind-sets") || len(sets) == 0 {
		return
	}
	pipeline, err := cmd.backend.pipeline(h)
	if err != nil {
		cmd.fail(err)
		return
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, err := cmd.backend.descriptorSet(s)
		if err != nil {
			cmd.fail(err)
			return
		}
		vkSets[i] = set
	}
	vk.CmdBindDescriptorSets(cmd.Handle, pipeline.BindPoint, pipeline.PipelineLayout, firstSet, uint32(len(vkSets)), vkSets, 0, nil)
}

func (cmd *VulkanCommandBuffer) PushConstants(h metadata.PipelineHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	if !cmd.recording("push-constants") || len(data) == 0 {
		return
	}
	if offset+uint32(len(data)) > metadata.MaxPushConstantSize {
		cmd.fail(core.Newf("push constants of %d bytes at %d exceed %d bytes", len(data), offset, metadata.MaxPushConstantSize))
		return
	}
	pipeline, err := cmd.backend.pipeline(h)
	if err != nil {
		cmd.fail(err)
		return
	}
	vk.CmdPushConstants(cmd.Handle, pipeline.PipelineLayout, vk.ShaderStageFlags(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (cmd *VulkanCommandBuffer) SetViewportScissor(extent metadata.Extent2D) {
	if !cmd.recording("viewport") {
		return
	}
	viewport := vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vulkanExtent(extent),
	}
	vk.CmdSetViewport(cmd.Handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (cmd *VulkanCommandBuffer) SetDepthBias(constant, slope float32) {
	if !cmd.recording("depth-bias") {
		return
	}
	vk.CmdSetDepthBias(cmd.Handle, constant, 0.0, slope)
}

func (cmd *VulkanCommandBuffer) BindIndexBuffer(h metadata.BufferHandle, offset uint64) {
	if !cmd.recording("bind-index") {
		return
	}
	buffer, err := cmd.backend.buffer(h)
	if err != nil {
		cmd.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(cmd.Handle, buffer.Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (cmd *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if cmd.State != COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		cmd.fail(core.Newf("draw outside a pass"))
		return
	}
	vk.CmdDrawIndexed(cmd.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (cmd *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING {
		cmd.fail(core.Newf("dispatch outside recording or inside a pass"))
		return
	}
	vk.CmdDispatch(cmd.Handle, x, y, z)
}
