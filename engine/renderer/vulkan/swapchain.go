package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

// VulkanSwapchain presents to the window surface. Its images are registered with the
// backend as external images, so they can be transitioned and blitted like any other.
type VulkanSwapchain struct {
	backend *VulkanBackend
	window  Surface
	vsync   bool

	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	extent      metadata.Extent2D
	images      []metadata.ImageHandle
}

var _ metadata.Presenter = (*VulkanSwapchain)(nil)

func NewSwapchain(backend *VulkanBackend, window Surface, vsync bool) (*VulkanSwapchain, error) {
	swapchain := &VulkanSwapchain{
		backend: backend,
		window:  window,
		vsync:   vsync,
	}
	if err := swapchain.create(window.FramebufferSize()); err != nil {
		return nil, err
	}
	return swapchain, nil
}

func (vs *VulkanSwapchain) create(size metadata.Extent2D) error {
	context := vs.backend.context
	support := &context.Device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(context.Device.PhysicalDevice, context.Surface, support); err != nil {
		return err
	}
	if len(support.Formats) == 0 {
		return core.Newf("surface reports no formats")
	}

	// Choose a swap surface format.
	vs.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			vs.ImageFormat = format
			break
		}
	}

	// FIFO is always available and is the vsync mode.
	presentMode := vk.PresentModeFifo
	if !vs.vsync {
		for _, mode := range support.PresentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	// Swapchain extent
	swapchainExtent := vulkanExtent(size)
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}

	// Clamp to the value allowed by the GPU.
	minExtent := support.Capabilities.MinImageExtent
	maxExtent := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = umath.Clamp(swapchainExtent.Width, minExtent.Width, maxExtent.Width)
	swapchainExtent.Height = umath.Clamp(swapchainExtent.Height, minExtent.Height, maxExtent.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return core.Mark(core.Newf("surface has no area"), core.ErrSwapchainBooting)
	}

	imageCount := max(support.Capabilities.MinImageCount+1, VULKAN_SWAPCHAIN_PREFERRED_IMAGES)
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      vs.ImageFormat.Format,
		ImageColorSpace:  vs.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		// The frame is blitted in, not rendered in.
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    presentMode,
		Clipped:        vk.True,
		OldSwapchain:   vs.Handle,
	}

	// Setup the queue family indices
	if context.Device.GraphicsQueueIndex != context.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(context.Device.GraphicsQueueIndex),
			uint32(context.Device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := ResultError(vk.CreateSwapchain(context.Device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle), "vkCreateSwapchain"); err != nil {
		return err
	}
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(context.Device.LogicalDevice, vs.Handle, context.Allocator)
	}
	vs.Handle = handle
	vs.extent = metadata.Extent2D{Width: swapchainExtent.Width, Height: swapchainExtent.Height}

	// Images
	var count uint32
	if err := ResultError(vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		return err
	}
	images := make([]vk.Image, count)
	if err := ResultError(vk.GetSwapchainImages(context.Device.LogicalDevice, handle, &count, images), "vkGetSwapchainImages"); err != nil {
		return err
	}
	for i, image := range images {
		h, err := vs.backend.registerExternalImage(fmt.Sprintf("swapchain-%d", i), image, vs.ImageFormat.Format, vs.extent)
		if err != nil {
			return err
		}
		vs.images = append(vs.images, h)
	}

	core.LogInfo("Swapchain created: %d images, %dx%d, %s.", count, vs.extent.Width, vs.extent.Height, metadataFormat(vs.ImageFormat.Format))
	return nil
}

func (vs *VulkanSwapchain) Acquire(signal metadata.SemaphoreHandle) (uint32, error) {
	semaphore, err := vs.backend.semaphore(signal)
	if err != nil {
		return 0, err
	}
	var index uint32
	result := vk.AcquireNextImage(vs.backend.context.Device.LogicalDevice, vs.Handle, math.MaxUint64, semaphore, vk.NullFence, &index)
	if err := ResultError(result, "vkAcquireNextImage"); err != nil {
		return 0, err
	}
	// The previous contents are not needed, so the image starts from undefined.
	image, err := vs.backend.image(vs.images[index])
	if err != nil {
		return 0, err
	}
	image.Layout = metadata.LayoutUndefined
	return index, nil
}

func (vs *VulkanSwapchain) Present(imageIndex uint32, wait metadata.SemaphoreHandle) error {
	semaphore, err := vs.backend.semaphore(wait)
	if err != nil {
		return err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{vs.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	var result vk.Result
	_ = vs.backend.locks.SafeCall(QueueManagement, func() error {
		result = vk.QueuePresent(vs.backend.context.Device.PresentQueue, &presentInfo)
		return nil
	})
	if result == vk.Suboptimal {
		return core.Mark(core.Newf("vkQueuePresent: %s", VulkanResultString(result)), core.ErrSurfaceOutOfDate)
	}
	return ResultError(result, "vkQueuePresent")
}

func (vs *VulkanSwapchain) Image(imageIndex uint32) metadata.ImageHandle {
	return vs.images[imageIndex]
}

func (vs *VulkanSwapchain) ImageCount() uint32 {
	return uint32(len(vs.images))
}

func (vs *VulkanSwapchain) Extent() metadata.Extent2D {
	return vs.extent
}

func (vs *VulkanSwapchain) Format() metadata.Format {
	return metadataFormat(vs.ImageFormat.Format)
}

// Rebuild recreates the swapchain at the current window size. A minimized window leaves
// everything in place and returns an error marked core.ErrSwapchainBooting.
func (vs *VulkanSwapchain) Rebuild() error {
	size := vs.window.FramebufferSize()
	if size.IsZero() {
		return core.Mark(core.Newf("window is minimized"), core.ErrSwapchainBooting)
	}
	if err := vs.backend.WaitIdle(); err != nil {
		return err
	}
	vs.releaseImages()
	return vs.create(size)
}

func (vs *VulkanSwapchain) releaseImages() {
	for _, h := range vs.images {
		vs.backend.DestroyImage(h)
	}
	vs.images = nil
}

func (vs *VulkanSwapchain) Destroy() {
	if vs.Handle == vk.NullSwapchain {
		return
	}
	_ = vs.backend.WaitIdle()

	// Only destroy the views, not the images, since those are owned by the swapchain and are thus
	// destroyed when it is.
	vs.releaseImages()
	vk.DestroySwapchain(vs.backend.context.Device.LogicalDevice, vs.Handle, vs.backend.context.Allocator)
	vs.Handle = vk.NullSwapchain
}
