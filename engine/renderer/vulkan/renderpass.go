package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// renderpassKey identifies a single-subpass render pass. Attachments start and end in
// their attachment layout, so only formats and load ops vary.
type renderpassKey struct {
	colors     [VULKAN_MAX_ATTACHMENTS]metadata.Format
	colorLoads [VULKAN_MAX_ATTACHMENTS]metadata.LoadOp
	colorCount int
	depth      metadata.Format
	depthLoad  metadata.LoadOp
}

// renderpassKeyFor builds a key; a nil colorLoads loads every color attachment.
func renderpassKeyFor(colorFormats []metadata.Format, depthFormat metadata.Format, colorLoads []metadata.LoadOp, depthLoad metadata.LoadOp) renderpassKey {
	key := renderpassKey{colorCount: len(colorFormats), depth: depthFormat, depthLoad: depthLoad}
	for i := 0; i < len(colorFormats) && i < VULKAN_MAX_ATTACHMENTS; i++ {
		key.colors[i] = colorFormats[i]
		if colorLoads != nil {
			key.colorLoads[i] = colorLoads[i]
		}
	}
	return key
}

func (k renderpassKey) hasDepth() bool {
	return k.depth != metadata.FormatUndefined
}

/**
 * @brief Creates render passes on demand and keeps them until the backend is destroyed.
 */
type VulkanRenderpassCache struct {
	context *VulkanContext
	locks   *VulkanLockPool
	passes  map[renderpassKey]vk.RenderPass
}

func NewVulkanRenderpassCache(context *VulkanContext, locks *VulkanLockPool) *VulkanRenderpassCache {
	return &VulkanRenderpassCache{
		context: context,
		locks:   locks,
		passes:  make(map[renderpassKey]vk.RenderPass),
	}
}

func (c *VulkanRenderpassCache) get(key renderpassKey) (vk.RenderPass, error) {
	if key.colorCount > VULKAN_MAX_ATTACHMENTS {
		return vk.NullRenderPass, core.Newf("%d color attachments, at most %d are supported", key.colorCount, VULKAN_MAX_ATTACHMENTS)
	}
	var pass vk.RenderPass
	err := c.locks.SafeCall(RenderpassManagement, func() error {
		if cached, ok := c.passes[key]; ok {
			pass = cached
			return nil
		}
		created, err := c.create(key)
		if err != nil {
			return err
		}
		c.passes[key] = created
		pass = created
		return nil
	})
	return pass, err
}

func (c *VulkanRenderpassCache) create(key renderpassKey) (vk.RenderPass, error) {
	attachmentDescriptions := make([]vk.AttachmentDescription, 0, key.colorCount+1)
	colorAttachmentReferences := make([]vk.AttachmentReference, 0, key.colorCount)

	// Color attachments
	for i := 0; i < key.colorCount; i++ {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(key.colors[i]),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vulkanLoadOp(key.colorLoads[i]),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorAttachmentReferences = append(colorAttachmentReferences, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentReferences)),
		PColorAttachments:    colorAttachmentReferences,
	}

	// Depth attachment, if there is one. It is stored: later passes sample it.
	if key.hasDepth() {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vulkanLoadOp(key.depthLoad),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(key.colorCount),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass: vk.SubpassExternal,
		DstSubpass: 0,
		SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit),
		SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
		DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pass vk.RenderPass
	if err := ResultError(vk.CreateRenderPass(c.context.Device.LogicalDevice, &renderpassCreateInfo, c.context.Allocator, &pass), "vkCreateRenderPass"); err != nil {
		return vk.NullRenderPass, err
	}
	core.LogDebug("render pass created (%d color, depth=%s)", key.colorCount, key.depth)
	return pass, nil
}

func (c *VulkanRenderpassCache) Destroy() {
	_ = c.locks.SafeCall(RenderpassManagement, func() error {
		for key, pass := range c.passes {
			vk.DestroyRenderPass(c.context.Device.LogicalDevice, pass, c.context.Allocator)
			delete(c.passes, key)
		}
		return nil
	})
}
