package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
)

type framebufferKey struct {
	renderpass    vk.RenderPass
	views         [VULKAN_MAX_ATTACHMENTS + 1]vk.ImageView
	width, height uint32
}

type VulkanFramebuffer struct {
	Handle vk.Framebuffer
	// Attachments are kept so the framebuffer can be evicted with any of its views.
	Attachments []vk.ImageView
}

// VulkanFramebufferCache keeps one framebuffer per render pass and attachment set.
type VulkanFramebufferCache struct {
	context      *VulkanContext
	locks        *VulkanLockPool
	framebuffers map[framebufferKey]*VulkanFramebuffer
}

func NewVulkanFramebufferCache(context *VulkanContext, locks *VulkanLockPool) *VulkanFramebufferCache {
	return &VulkanFramebufferCache{
		context:      context,
		locks:        locks,
		framebuffers: make(map[framebufferKey]*VulkanFramebuffer),
	}
}

func (c *VulkanFramebufferCache) get(renderpass vk.RenderPass, attachments []vk.ImageView, width, height uint32) (vk.Framebuffer, error) {
	if len(attachments) > VULKAN_MAX_ATTACHMENTS+1 {
		return vk.NullFramebuffer, core.Newf("%d attachments, at most %d are supported", len(attachments), VULKAN_MAX_ATTACHMENTS+1)
	}
	key := framebufferKey{renderpass: renderpass, width: width, height: height}
	copy(key.views[:], attachments)

	var handle vk.Framebuffer
	err := c.locks.SafeCall(RenderpassManagement, func() error {
		if fb, ok := c.framebuffers[key]; ok {
			handle = fb.Handle
			return nil
		}
		fb := &VulkanFramebuffer{Attachments: append([]vk.ImageView(nil), attachments...)}
		framebufferCreateInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderpass,
			AttachmentCount: uint32(len(fb.Attachments)),
			PAttachments:    fb.Attachments,
			Width:           width,
			Height:          height,
			Layers:          1,
		}
		var pFramebuffer vk.Framebuffer
		if err := ResultError(vk.CreateFramebuffer(c.context.Device.LogicalDevice, &framebufferCreateInfo, c.context.Allocator, &pFramebuffer), "vkCreateFramebuffer"); err != nil {
			return err
		}
		fb.Handle = pFramebuffer
		c.framebuffers[key] = fb
		handle = pFramebuffer
		return nil
	})
	return handle, err
}

// evict destroys every framebuffer that references view. The caller guarantees the GPU is
// done with them.
func (c *VulkanFramebufferCache) evict(view vk.ImageView) {
	if c == nil {
		return
	}
	_ = c.locks.SafeCall(RenderpassManagement, func() error {
		for key, fb := range c.framebuffers {
			for _, attachment := range fb.Attachments {
				if attachment == view {
					fb.destroy(c.context)
					delete(c.framebuffers, key)
					break
				}
			}
		}
		return nil
	})
}

func (c *VulkanFramebufferCache) Destroy() {
	_ = c.locks.SafeCall(RenderpassManagement, func() error {
		for key, fb := range c.framebuffers {
			fb.destroy(c.context)
			delete(c.framebuffers, key)
		}
		return nil
	})
}

func (fb *VulkanFramebuffer) destroy(context *VulkanContext) {
	vk.DestroyFramebuffer(context.Device.LogicalDevice, fb.Handle, context.Allocator)
	fb.Handle = vk.NullFramebuffer
	fb.Attachments = nil
}
