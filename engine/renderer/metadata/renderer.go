package metadata

type Extent2D struct {
	Width  uint32
	Height uint32
}

func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

/** @brief Image formats the renderer knows how to allocate. */
type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR16G16B16A16Sfloat
	FormatR32G32B32A32Sfloat
	FormatD32Sfloat
)

func (f Format) IsDepth() bool {
	return f == FormatD32Sfloat
}

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatR16G16B16A16Sfloat:
		return "R16G16B16A16_SFLOAT"
	case FormatR32G32B32A32Sfloat:
		return "R32G32B32A32_SFLOAT"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	}
	return "UNDEFINED"
}

/** @brief The layout an image is in, which determines which operations may touch it. */
type ImageLayout uint32

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutDepthReadOnly
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresentSrc
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutGeneral:
		return "GENERAL"
	case LayoutColorAttachment:
		return "COLOR_ATTACHMENT_OPTIMAL"
	case LayoutDepthAttachment:
		return "DEPTH_ATTACHMENT_OPTIMAL"
	case LayoutDepthReadOnly:
		return "DEPTH_READ_ONLY_OPTIMAL"
	case LayoutShaderReadOnly:
		return "SHADER_READ_ONLY_OPTIMAL"
	case LayoutTransferSrc:
		return "TRANSFER_SRC_OPTIMAL"
	case LayoutTransferDst:
		return "TRANSFER_DST_OPTIMAL"
	case LayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return "UNDEFINED"
}

/** @brief Pipeline stages used as barrier scopes. Values may be or'ed together. */
type PipelineStage uint32

const (
	StageNone                  PipelineStage = 0
	StageTopOfPipe             PipelineStage = 0x1
	StageVertexShader          PipelineStage = 0x8
	StageFragmentShader        PipelineStage = 0x80
	StageEarlyFragmentTests    PipelineStage = 0x100
	StageLateFragmentTests     PipelineStage = 0x200
	StageColorAttachmentOutput PipelineStage = 0x400
	StageComputeShader         PipelineStage = 0x800
	StageTransfer              PipelineStage = 0x1000
	StageBottomOfPipe          PipelineStage = 0x2000
	StageHost                  PipelineStage = 0x4000
	StageAllCommands           PipelineStage = 0x10000
)

/** @brief Memory access kinds used as barrier scopes. Values may be or'ed together. */
type Access uint32

const (
	AccessNone                        Access = 0
	AccessIndexRead                   Access = 0x2
	AccessUniformRead                 Access = 0x8
	AccessShaderRead                  Access = 0x20
	AccessShaderWrite                 Access = 0x40
	AccessColorAttachmentRead         Access = 0x80
	AccessColorAttachmentWrite        Access = 0x100
	AccessDepthStencilAttachmentRead  Access = 0x200
	AccessDepthStencilAttachmentWrite Access = 0x400
	AccessTransferRead                Access = 0x800
	AccessTransferWrite               Access = 0x1000
	AccessHostWrite                   Access = 0x4000
	AccessMemoryRead                  Access = 0x8000
	AccessMemoryWrite                 Access = 0x10000
)

type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x1
	ShaderStageFragment ShaderStage = 0x10
	ShaderStageCompute  ShaderStage = 0x20
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc   BufferUsage = 0x1
	BufferUsageTransferDst   BufferUsage = 0x2
	BufferUsageUniform       BufferUsage = 0x10
	BufferUsageStorage       BufferUsage = 0x20
	BufferUsageIndex         BufferUsage = 0x40
	BufferUsageDeviceAddress BufferUsage = 0x20000
)

/** @brief Where a buffer lives. */
type MemoryLocation uint32

const (
	// MemoryDeviceLocal is fast for the GPU and not mapped.
	MemoryDeviceLocal MemoryLocation = iota
	// MemoryHostVisible is mapped persistently and coherent with the host.
	MemoryHostVisible
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc     ImageUsage = 0x1
	ImageUsageTransferDst     ImageUsage = 0x2
	ImageUsageSampled         ImageUsage = 0x4
	ImageUsageStorage         ImageUsage = 0x8
	ImageUsageColorAttachment ImageUsage = 0x10
	ImageUsageDepthAttachment ImageUsage = 0x20
)

type DescriptorType uint32

const (
	DescriptorTypeCombinedImageSampler DescriptorType = iota
	DescriptorTypeStorageImage
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
)

type Filter uint32

const (
	FilterNearest Filter = iota
	FilterLinear
)

type SamplerAddressMode uint32

const (
	AddressModeRepeat SamplerAddressMode = iota
	AddressModeClampToEdge
	AddressModeClampToBorder
)

/** @brief Determines face culling mode during rendering. */
type FaceCullMode int

const (
	/** @brief No faces are culled. */
	FaceCullModeNone FaceCullMode = 0x0
	/** @brief Only front faces are culled. */
	FaceCullModeFront FaceCullMode = 0x1
	/** @brief Only back faces are culled. */
	FaceCullModeBack FaceCullMode = 0x2
)

type LoadOp uint32

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)
