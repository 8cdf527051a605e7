package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Width  uint32
	Height uint32
	Format metadata.Format
	// Layout is the layout the image will be in once every command recorded so far has run.
	Layout metadata.ImageLayout
	// External images (swapchain images) are owned elsewhere; only the view is ours.
	External bool
}

func (img *VulkanImage) extent() metadata.Extent2D {
	return metadata.Extent2D{Width: img.Width, Height: img.Height}
}

func (vb *VulkanBackend) CreateImage(info metadata.ImageCreateInfo) (metadata.ImageHandle, error) {
	if info.Extent.IsZero() {
		return 0, core.Newf("image %s: empty extent", info.Name)
	}
	device := vb.context.Device.LogicalDevice

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vulkanFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1, // TODO: Support configurable depth.
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := ResultError(vk.CreateImage(device, &createInfo, vb.context.Allocator, &handle), "vkCreateImage"); err != nil {
		return 0, core.Wrapf(err, "image %s", info.Name)
	}
	image := &VulkanImage{
		Handle: handle,
		Width:  info.Extent.Width,
		Height: info.Extent.Height,
		Format: info.Format,
		Layout: metadata.LayoutUndefined,
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, handle, &requirements)
	requirements.Deref()
	memory, err := vb.allocateMemory(requirements, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit), false)
	if err != nil {
		vb.releaseImage(image)
		return 0, core.Wrapf(err, "image %s", info.Name)
	}
	image.Memory = memory
	if err := ResultError(vk.BindImageMemory(device, handle, memory, 0), "vkBindImageMemory"); err != nil {
		vb.releaseImage(image)
		return 0, core.Wrapf(err, "image %s", info.Name)
	}

	if err := vb.createImageView(image, vulkanFormat(info.Format)); err != nil {
		vb.releaseImage(image)
		return 0, core.Wrapf(err, "image %s", info.Name)
	}
	return vb.insertImage(info.Name, image), nil
}

// registerExternalImage tracks an image created by someone else, such as a swapchain.
func (vb *VulkanBackend) registerExternalImage(name string, handle vk.Image, format vk.Format, extent metadata.Extent2D) (metadata.ImageHandle, error) {
	image := &VulkanImage{
		Handle:   handle,
		Width:    extent.Width,
		Height:   extent.Height,
		Format:   metadataFormat(format),
		Layout:   metadata.LayoutUndefined,
		External: true,
	}
	if err := vb.createImageView(image, format); err != nil {
		return 0, err
	}
	return vb.insertImage(name, image), nil
}

func (vb *VulkanBackend) insertImage(name string, image *VulkanImage) metadata.ImageHandle {
	var h metadata.ImageHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.ImageHandle(vb.images.Insert(name, image))
		return nil
	})
	return h
}

func (vb *VulkanBackend) createImageView(image *VulkanImage, format vk.Format) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFor(image.Format),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := ResultError(vk.CreateImageView(vb.context.Device.LogicalDevice, &viewCreateInfo, vb.context.Allocator, &view), "vkCreateImageView"); err != nil {
		return err
	}
	image.View = view
	return nil
}

func (vb *VulkanBackend) releaseImage(image *VulkanImage) {
	device := vb.context.Device.LogicalDevice
	if image.View != vk.NullImageView {
		vb.framebuffers.evict(image.View)
		vk.DestroyImageView(device, image.View, vb.context.Allocator)
		image.View = vk.NullImageView
	}
	if image.External {
		return
	}
	if image.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, image.Memory, vb.context.Allocator)
		image.Memory = vk.NullDeviceMemory
	}
	if image.Handle != vk.NullImage {
		vk.DestroyImage(device, image.Handle, vb.context.Allocator)
		image.Handle = vk.NullImage
	}
}

func (vb *VulkanBackend) DestroyImage(h metadata.ImageHandle) {
	var image *VulkanImage
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		image, err = vb.images.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy image: %s", err)
		return
	}
	vb.releaseImage(image)
}

func (vb *VulkanBackend) image(h metadata.ImageHandle) (*VulkanImage, error) {
	var image *VulkanImage
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		image, err = vb.images.Get(containers.Handle(h))
		return err
	})
	return image, err
}

func (vb *VulkanBackend) ImageExtent(h metadata.ImageHandle) metadata.Extent2D {
	image, err := vb.image(h)
	if err != nil {
		return metadata.Extent2D{}
	}
	return image.extent()
}

func (vb *VulkanBackend) ImageFormat(h metadata.ImageHandle) metadata.Format {
	image, err := vb.image(h)
	if err != nil {
		return metadata.FormatUndefined
	}
	return image.Format
}

func (vb *VulkanBackend) CreateSampler(info metadata.SamplerCreateInfo) (metadata.SamplerHandle, error) {
	addressMode := vulkanAddressMode(info.AddressMode)
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkanFilter(info.MagFilter),
		MinFilter:               vulkanFilter(info.MinFilter),
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  1,
		BorderColor:             vk.BorderColorFloatTransparentBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if info.CompareEnable {
		createInfo.CompareEnable = vk.True
		createInfo.CompareOp = vk.CompareOpLessOrEqual
	}
	if info.BorderWhite {
		createInfo.BorderColor = vk.BorderColorFloatOpaqueWhite
	}

	var sampler vk.Sampler
	if err := ResultError(vk.CreateSampler(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &sampler), "vkCreateSampler"); err != nil {
		return 0, core.Wrapf(err, "sampler %s", info.Name)
	}
	var h metadata.SamplerHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.SamplerHandle(vb.samplers.Insert(info.Name, sampler))
		return nil
	})
	return h, nil
}

func (vb *VulkanBackend) DestroySampler(h metadata.SamplerHandle) {
	var sampler vk.Sampler
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		sampler, err = vb.samplers.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy sampler: %s", err)
		return
	}
	vk.DestroySampler(vb.context.Device.LogicalDevice, sampler, vb.context.Allocator)
}
