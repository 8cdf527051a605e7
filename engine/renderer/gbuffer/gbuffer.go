// Package gbuffer holds the per-pixel surface attributes the geometry pass writes and the
// lighting pass reads.
package gbuffer

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type Attachment int

const (
	Diffuse Attachment = iota
	Specular
	Normal
	WorldPosition
	OcclusionRoughnessMetallic
	AttachmentCount
)

var attachmentNames = [AttachmentCount]string{
	"gbuffer-diffuse",
	"gbuffer-specular",
	"gbuffer-normal",
	"gbuffer-world-position",
	"gbuffer-orm",
}

var attachmentFormats = [AttachmentCount]metadata.Format{
	metadata.FormatR8G8B8A8Unorm,
	metadata.FormatR8G8B8A8Unorm,
	metadata.FormatR16G16B16A16Sfloat,
	metadata.FormatR32G32B32A32Sfloat,
	metadata.FormatR8G8B8A8Unorm,
}

func (a Attachment) String() string {
	if a < 0 || a >= AttachmentCount {
		return "gbuffer-unknown"
	}
	return attachmentNames[a]
}

func (a Attachment) Format() metadata.Format {
	return attachmentFormats[a]
}

// Formats lists the attachment formats in binding order, as pipelines writing the
// GBuffer declare them.
func Formats() []metadata.Format {
	return append([]metadata.Format(nil), attachmentFormats[:]...)
}

type GBuffer struct {
	device metadata.Device

	images   [AttachmentCount]metadata.ImageHandle
	samplers [AttachmentCount]metadata.SamplerHandle
	layout   metadata.DescriptorSetLayoutHandle
	set      metadata.DescriptorSetHandle
	extent   metadata.Extent2D
}

// New allocates every attachment at extent. Samplers are immutable in the descriptor set
// layout, so the set is written once here and never again.
func New(device metadata.Device, allocator metadata.DescriptorAllocator, extent metadata.Extent2D) (*GBuffer, error) {
	if extent.IsZero() {
		err := core.Newf("gbuffer: extent %dx%d is empty", extent.Width, extent.Height)
		core.LogError(err.Error())
		return nil, err
	}
	g := &GBuffer{device: device}

	for a := Attachment(0); a < AttachmentCount; a++ {
		img, err := device.CreateImage(metadata.ImageCreateInfo{
			Name:   a.String(),
			Format: a.Format(),
			Extent: extent,
			Usage:  metadata.ImageUsageColorAttachment | metadata.ImageUsageSampled,
		})
		if err != nil {
			return nil, g.fail(err, "image %s", a)
		}
		g.images[a] = img

		sampler, err := device.CreateSampler(metadata.SamplerCreateInfo{
			Name:        a.String(),
			MagFilter:   metadata.FilterNearest,
			MinFilter:   metadata.FilterNearest,
			AddressMode: metadata.AddressModeClampToEdge,
		})
		if err != nil {
			return nil, g.fail(err, "sampler %s", a)
		}
		g.samplers[a] = sampler
	}

	bindings := make([]metadata.DescriptorBinding, AttachmentCount)
	for a := Attachment(0); a < AttachmentCount; a++ {
		bindings[a] = metadata.DescriptorBinding{
			Binding:           uint32(a),
			Type:              metadata.DescriptorTypeCombinedImageSampler,
			Count:             1,
			Stages:            metadata.ShaderStageCompute | metadata.ShaderStageFragment,
			ImmutableSamplers: []metadata.SamplerHandle{g.samplers[a]},
		}
	}
	layout, err := device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name:     "gbuffer",
		Bindings: bindings,
	})
	if err != nil {
		return nil, g.fail(err, "descriptor set layout")
	}
	g.layout = layout

	set, err := allocator.Allocate(layout)
	if err != nil {
		return nil, g.fail(err, "descriptor set")
	}
	g.set = set

	writes := make([]metadata.DescriptorWrite, AttachmentCount)
	for a := Attachment(0); a < AttachmentCount; a++ {
		writes[a] = metadata.DescriptorWrite{
			Binding: uint32(a),
			Type:    metadata.DescriptorTypeCombinedImageSampler,
			Images: []metadata.DescriptorImageInfo{{
				Image:  g.images[a],
				Layout: metadata.LayoutShaderReadOnly,
			}},
		}
	}
	device.UpdateDescriptorSet(set, writes)

	g.extent = extent
	return g, nil
}

func (g *GBuffer) fail(err error, format string, args ...interface{}) error {
	g.Destroy()
	err = core.Wrapf(err, "gbuffer: failed to create "+format, args...)
	core.LogError(err.Error())
	return err
}

// RecordTransitionImages moves every attachment to layout with one barrier.
func (g *GBuffer) RecordTransitionImages(cmd metadata.CommandBuffer, layout metadata.ImageLayout) {
	cmd.TransitionImages(g.images[:], layout)
}

// ColorAttachments describes the attachments for a pass writing the GBuffer.
func (g *GBuffer) ColorAttachments(load metadata.LoadOp, clear mgl32.Vec4) []metadata.ColorAttachment {
	out := make([]metadata.ColorAttachment, AttachmentCount)
	for a := Attachment(0); a < AttachmentCount; a++ {
		out[a] = metadata.ColorAttachment{Image: g.images[a], LoadOp: load, ClearColor: clear}
	}
	return out
}

// Extent is the size shared by all attachments, zero before New succeeds or after Destroy.
func (g *GBuffer) Extent() metadata.Extent2D {
	if g == nil {
		return metadata.Extent2D{}
	}
	return g.extent
}

func (g *GBuffer) Image(a Attachment) metadata.ImageHandle { return g.images[a] }

func (g *GBuffer) Images() []metadata.ImageHandle {
	return append([]metadata.ImageHandle(nil), g.images[:]...)
}

func (g *GBuffer) DescriptorSet() metadata.DescriptorSetHandle { return g.set }

func (g *GBuffer) DescriptorLayout() metadata.DescriptorSetLayoutHandle { return g.layout }

// Destroy releases whatever was created. The descriptor set goes back with its pool.
func (g *GBuffer) Destroy() {
	if g.layout.IsValid() {
		g.device.DestroyDescriptorSetLayout(g.layout)
		g.layout = 0
	}
	for a := Attachment(0); a < AttachmentCount; a++ {
		if g.samplers[a].IsValid() {
			g.device.DestroySampler(g.samplers[a])
			g.samplers[a] = 0
		}
		if g.images[a].IsValid() {
			g.device.DestroyImage(g.images[a])
			g.images[a] = 0
		}
	}
	g.set = 0
	g.extent = metadata.Extent2D{}
}
