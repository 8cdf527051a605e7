package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// Stage, access, usage and shader stage bits in metadata share their values with Vulkan
// and are cast directly; the enums below are numbered independently and need a lookup.

func vulkanFormat(f metadata.Format) vk.Format {
	switch f {
	case metadata.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatB8G8R8A8Srgb:
		return vk.FormatB8g8r8a8Srgb
	case metadata.FormatR16G16B16A16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatR32G32B32A32Sfloat:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func metadataFormat(f vk.Format) metadata.Format {
	switch f {
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FormatR8G8B8A8Unorm
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FormatB8G8R8A8Unorm
	case vk.FormatB8g8r8a8Srgb:
		return metadata.FormatB8G8R8A8Srgb
	case vk.FormatR16g16b16a16Sfloat:
		return metadata.FormatR16G16B16A16Sfloat
	case vk.FormatR32g32b32a32Sfloat:
		return metadata.FormatR32G32B32A32Sfloat
	case vk.FormatD32Sfloat:
		return metadata.FormatD32Sfloat
	}
	return metadata.FormatUndefined
}

func vulkanLayout(l metadata.ImageLayout) vk.ImageLayout {
	switch l {
	case metadata.LayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.LayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.LayoutDepthAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.LayoutDepthReadOnly:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case metadata.LayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.LayoutTransferSrc:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.LayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.LayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func aspectFor(f metadata.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func vulkanDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeCombinedImageSampler
}

func vulkanFilter(f metadata.Filter) vk.Filter {
	if f == metadata.FilterLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vulkanAddressMode(m metadata.SamplerAddressMode) vk.SamplerAddressMode {
	switch m {
	case metadata.AddressModeClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.AddressModeClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func vulkanCullMode(m metadata.FaceCullMode) vk.CullModeFlags {
	switch m {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

func vulkanLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadOpClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

func vulkanShaderStage(s metadata.ShaderStage) vk.ShaderStageFlagBits {
	return vk.ShaderStageFlagBits(s)
}

func vulkanExtent(e metadata.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}
