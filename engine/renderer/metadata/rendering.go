package metadata

import "github.com/go-gl/mathgl/mgl32"

type BufferCreateInfo struct {
	Name     string
	Size     uint64
	Usage    BufferUsage
	Location MemoryLocation
}

type ImageCreateInfo struct {
	Name   string
	Format Format
	Extent Extent2D
	Usage  ImageUsage
}

type SamplerCreateInfo struct {
	Name        string
	MagFilter   Filter
	MinFilter   Filter
	AddressMode SamplerAddressMode
	// CompareEnable turns the sampler into a depth comparison sampler (less-or-equal).
	CompareEnable bool
	// BorderWhite picks an opaque white border for AddressModeClampToBorder.
	BorderWhite bool
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
	// ImmutableSamplers, when set, are baked into the layout. Its length must equal Count.
	ImmutableSamplers []SamplerHandle
	// PartiallyBound array entries may be left unused by a dispatch, their images in any layout.
	PartiallyBound bool
}

type DescriptorSetLayoutCreateInfo struct {
	Name     string
	Bindings []DescriptorBinding
}

type DescriptorImageInfo struct {
	Image   ImageHandle
	Sampler SamplerHandle
	Layout  ImageLayout
}

type DescriptorBufferInfo struct {
	Buffer BufferHandle
	Offset uint64
	// Range of zero means the whole buffer.
	Range uint64
}

type DescriptorWrite struct {
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Images       []DescriptorImageInfo
	Buffers      []DescriptorBufferInfo
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type GraphicsPipelineCreateInfo struct {
	Name          string
	Vertex        ShaderModuleHandle
	Fragment      ShaderModuleHandle
	SetLayouts    []DescriptorSetLayoutHandle
	PushConstants []PushConstantRange
	ColorFormats  []Format
	DepthFormat   Format
	CullMode      FaceCullMode
	DepthTest     bool
	DepthWrite    bool
	// DepthBias enables dynamic depth bias, set per pass with SetDepthBias.
	DepthBias bool
}

type ComputePipelineCreateInfo struct {
	Name          string
	Compute       ShaderModuleHandle
	SetLayouts    []DescriptorSetLayoutHandle
	PushConstants []PushConstantRange
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type ColorAttachment struct {
	Image      ImageHandle
	LoadOp     LoadOp
	ClearColor mgl32.Vec4
}

type DepthAttachment struct {
	Image      ImageHandle
	LoadOp     LoadOp
	ClearDepth float32
}

/**
 * @brief Describes one pass over a set of attachments. Every attachment must already be in
 * the matching attachment layout when the pass begins, and stays there when it ends.
 */
type RenderingInfo struct {
	Name   string
	Extent Extent2D
	Color  []ColorAttachment
	Depth  *DepthAttachment
}

type SubmitInfo struct {
	Command   CommandBuffer
	Wait      SemaphoreHandle
	WaitStage PipelineStage
	Signal    SemaphoreHandle
	Fence     FenceHandle
}
