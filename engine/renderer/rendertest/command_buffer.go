package rendertest

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type CommandBuffer struct {
	device    *Device
	name      string
	recording bool
	pass      *metadata.RenderingInfo
	pipeline  metadata.PipelineHandle

	// bound descriptor sets by set number, per bind point
	graphicsSets map[uint32]metadata.DescriptorSetHandle
	computeSets  map[uint32]metadata.DescriptorSetHandle
	indexBuffer  metadata.BufferHandle
	pushed       []byte

	Resets    int
	Submitted int
}

var _ metadata.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) Name() string { return c.name }

func (c *CommandBuffer) Recording() bool { return c.recording }

func (c *CommandBuffer) Reset() error {
	if c.recording {
		return core.Newf("command buffer %s reset while recording", c.name)
	}
	c.Resets++
	c.pipeline = 0
	c.graphicsSets = nil
	c.computeSets = nil
	c.indexBuffer = 0
	c.pushed = nil
	return nil
}

func (c *CommandBuffer) Begin(oneTimeSubmit bool) error {
	if c.recording {
		return core.Newf("command buffer %s already recording", c.name)
	}
	c.recording = true
	c.device.log("begin", c.name)
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return core.Newf("command buffer %s is not recording", c.name)
	}
	if c.pass != nil {
		c.device.violation("%s ended inside pass %s", c.name, c.pass.Name)
	}
	c.recording = false
	c.device.log("end", c.name)
	return nil
}

func (c *CommandBuffer) checkRecording(op string) {
	if !c.recording {
		c.device.violation("%s recorded on %s outside Begin/End", op, c.name)
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst metadata.BufferHandle, regions []metadata.BufferCopy) {
	c.checkRecording("copy")
	s := c.device.Buffer(src)
	t := c.device.Buffer(dst)
	if s == nil || t == nil {
		c.device.violation("copy between unknown buffers")
		return
	}
	if len(regions) > 0 {
		c.device.readBuffer(src, "copy")
		c.device.writeBuffer(dst, "copy", metadata.AccessTransferWrite)
	}
	for _, r := range regions {
		if r.SrcOffset+r.Size > uint64(len(s.Bytes)) || r.DstOffset+r.Size > uint64(len(t.Bytes)) {
			c.device.violation("copy %s -> %s out of range: %+v", s.Info.Name, t.Info.Name, r)
			continue
		}
		copy(t.Bytes[r.DstOffset:r.DstOffset+r.Size], s.Bytes[r.SrcOffset:r.SrcOffset+r.Size])
		c.device.log("copy", "%s->%s %d", s.Info.Name, t.Info.Name, r.Size)
	}
}

func (c *CommandBuffer) MemoryBarrier(srcStage metadata.PipelineStage, srcAccess metadata.Access, dstStage metadata.PipelineStage, dstAccess metadata.Access) {
	c.checkRecording("barrier")
	c.device.Barriers++
	c.device.memoryBarrier(srcAccess)
	c.device.log("barrier", "%#x/%#x -> %#x/%#x", srcStage, srcAccess, dstStage, dstAccess)
}

func (c *CommandBuffer) TransitionImages(images []metadata.ImageHandle, layout metadata.ImageLayout) {
	c.checkRecording("transition")
	if len(images) == 0 {
		return
	}
	c.device.Barriers++
	for _, h := range images {
		img := c.device.Image(h)
		if img == nil {
			c.device.violation("transition of unknown image")
			continue
		}
		img.Layout = layout
	}
	c.device.imageBarrier(images)
	c.device.log("transition", "%d images -> %s", len(images), layout)
}

func (c *CommandBuffer) clearable(img *Image, op string) bool {
	if img.Layout != metadata.LayoutGeneral && img.Layout != metadata.LayoutTransferDst {
		c.device.violation("%s of %s in layout %s", op, img.Info.Name, img.Layout)
		return false
	}
	return true
}

func (c *CommandBuffer) ClearColorImage(image metadata.ImageHandle, color mgl32.Vec4) {
	c.checkRecording("clear-color")
	img := c.device.Image(image)
	if img == nil || !c.clearable(img, "clear-color") {
		return
	}
	c.device.writeImage(image, "clear-color", metadata.AccessTransferWrite)
	img.ClearColor = color
	img.Clears++
	c.device.log("clear-color", img.Info.Name)
}

func (c *CommandBuffer) ClearDepthImage(image metadata.ImageHandle, depth float32) {
	c.checkRecording("clear-depth")
	img := c.device.Image(image)
	if img == nil || !c.clearable(img, "clear-depth") {
		return
	}
	c.device.writeImage(image, "clear-depth", metadata.AccessTransferWrite)
	img.ClearDepth = depth
	img.Clears++
	c.device.log("clear-depth", img.Info.Name)
}

func (c *CommandBuffer) BlitImage(src, dst metadata.ImageHandle, srcExtent, dstExtent metadata.Extent2D) {
	c.checkRecording("blit")
	s := c.device.Image(src)
	t := c.device.Image(dst)
	if s == nil || t == nil {
		c.device.violation("blit between unknown images")
		return
	}
	if s.Layout != metadata.LayoutTransferSrc || t.Layout != metadata.LayoutTransferDst {
		c.device.violation("blit %s (%s) -> %s (%s)", s.Info.Name, s.Layout, t.Info.Name, t.Layout)
	}
	c.device.readImage(src, "blit")
	c.device.writeImage(dst, "blit", metadata.AccessTransferWrite)
	c.device.log("blit", "%s->%s", s.Info.Name, t.Info.Name)
}

func (c *CommandBuffer) BeginRendering(info metadata.RenderingInfo) {
	c.checkRecording("begin-rendering")
	if c.pass != nil {
		c.device.violation("pass %s begun inside %s", info.Name, c.pass.Name)
	}
	for _, a := range info.Color {
		img := c.device.Image(a.Image)
		if img == nil {
			c.device.violation("pass %s: unknown color attachment", info.Name)
			continue
		}
		if img.Layout != metadata.LayoutColorAttachment {
			c.device.violation("pass %s: color attachment %s in layout %s", info.Name, img.Info.Name, img.Layout)
		}
		c.device.writeImage(a.Image, info.Name, metadata.AccessColorAttachmentWrite)
		if a.LoadOp == metadata.LoadOpClear {
			img.ClearColor = a.ClearColor
			img.Clears++
		}
	}
	if info.Depth != nil {
		img := c.device.Image(info.Depth.Image)
		if img == nil {
			c.device.violation("pass %s: unknown depth attachment", info.Name)
		} else {
			if img.Layout != metadata.LayoutDepthAttachment {
				c.device.violation("pass %s: depth attachment %s in layout %s", info.Name, img.Info.Name, img.Layout)
			}
			c.device.writeImage(info.Depth.Image, info.Name, metadata.AccessDepthStencilAttachmentWrite)
			if info.Depth.LoadOp == metadata.LoadOpClear {
				img.ClearDepth = info.Depth.ClearDepth
				img.Clears++
			}
		}
	}
	pass := info
	c.pass = &pass
	c.device.log("begin-rendering", info.Name)
}

func (c *CommandBuffer) EndRendering() {
	c.checkRecording("end-rendering")
	if c.pass == nil {
		c.device.violation("end rendering outside a pass")
		return
	}
	c.device.log("end-rendering", c.pass.Name)
	c.pass = nil
}

func (c *CommandBuffer) BindPipeline(pipeline metadata.PipelineHandle) {
	c.checkRecording("bind-pipeline")
	p := c.device.Pipeline(pipeline)
	if p == nil {
		c.device.violation("bind of unknown pipeline")
		return
	}
	c.pipeline = pipeline
	c.device.log("bind-pipeline", p.Name)
}

func (c *CommandBuffer) BindDescriptorSets(pipeline metadata.PipelineHandle, firstSet uint32, sets []metadata.DescriptorSetHandle) {
	c.checkRecording("bind-sets")
	bound := &c.graphicsSets
	if p := c.device.Pipeline(pipeline); p != nil && p.Compute {
		bound = &c.computeSets
	}
	if *bound == nil {
		*bound = map[uint32]metadata.DescriptorSetHandle{}
	}
	for i, s := range sets {
		if c.device.DescriptorSet(s) == nil {
			c.device.violation("bind of unknown descriptor set")
		}
		(*bound)[firstSet+uint32(i)] = s
	}
	c.device.log("bind-sets", "first=%d count=%d", firstSet, len(sets))
}

func (c *CommandBuffer) PushConstants(pipeline metadata.PipelineHandle, stages metadata.ShaderStage, offset uint32, data []byte) {
	c.checkRecording("push-constants")
	if offset+uint32(len(data)) > metadata.MaxPushConstantSize {
		c.device.violation("push constants of %d bytes at %d exceed the limit", len(data), offset)
	}
	c.device.PushConstants = append(c.device.PushConstants, PushConstant{
		Pipeline: pipeline,
		Stages:   stages,
		Data:     append([]byte(nil), data...),
	})
	c.pushed = append([]byte(nil), data...)
	c.device.log("push-constants", "%d bytes", len(data))
}

func (c *CommandBuffer) SetViewportScissor(extent metadata.Extent2D) {
	c.checkRecording("viewport")
	c.device.log("viewport", "%dx%d", extent.Width, extent.Height)
}

func (c *CommandBuffer) SetDepthBias(constant, slope float32) {
	c.checkRecording("depth-bias")
	c.device.log("depth-bias", "%f %f", constant, slope)
}

func (c *CommandBuffer) BindIndexBuffer(buffer metadata.BufferHandle, offset uint64) {
	c.checkRecording("bind-index")
	if c.device.Buffer(buffer) == nil {
		c.device.violation("bind of unknown index buffer")
	}
	c.indexBuffer = buffer
	c.device.log("bind-index", "")
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.checkRecording("draw")
	pass := ""
	if c.pass == nil {
		c.device.violation("draw outside a pass")
	} else {
		pass = c.pass.Name
	}
	if !c.pipeline.IsValid() {
		c.device.violation("draw without a pipeline")
	}
	c.device.readBuffer(c.indexBuffer, "draw")
	c.device.readAddresses(c.pushed, "draw")
	for _, s := range c.graphicsSets {
		c.device.accessSet(s, "draw")
	}
	c.device.Draws = append(c.device.Draws, Draw{
		Pass:          pass,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
	})
	c.device.log("draw", pass)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.checkRecording("dispatch")
	if c.pass != nil {
		c.device.violation("dispatch inside pass %s", c.pass.Name)
	}
	c.device.readAddresses(c.pushed, "dispatch")
	for _, s := range c.computeSets {
		c.device.accessSet(s, "dispatch")
	}
	c.device.Dispatches = append(c.device.Dispatches, Dispatch{X: x, Y: y, Z: z})
	c.device.log("dispatch", "%dx%dx%d", x, y, z)
}
