package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// VulkanBackend is the metadata.Device of the renderer. Every resource lives in a handle
// table; raw Vulkan objects never leave this package.
type VulkanBackend struct {
	context *VulkanContext
	locks   *VulkanLockPool

	buffers    *containers.HandleTable[*VulkanBuffer]
	images     *containers.HandleTable[*VulkanImage]
	samplers   *containers.HandleTable[vk.Sampler]
	layouts    *containers.HandleTable[vk.DescriptorSetLayout]
	sets       *containers.HandleTable[vk.DescriptorSet]
	modules    *containers.HandleTable[*VulkanShaderModule]
	pipelines  *containers.HandleTable[*VulkanPipeline]
	fences     *containers.HandleTable[*VulkanFence]
	semaphores *containers.HandleTable[vk.Semaphore]

	renderpasses *VulkanRenderpassCache
	framebuffers *VulkanFramebufferCache

	// One-shot submissions share a command buffer and fence.
	immediateMu    sync.Mutex
	immediate      *VulkanCommandBuffer
	immediateFence *VulkanFence
}

var _ metadata.Device = (*VulkanBackend)(nil)

func NewBackend(window Surface, appName string, validation bool) (*VulkanBackend, error) {
	context, err := NewContext(window, appName, validation)
	if err != nil {
		return nil, err
	}
	locks := NewVulkanLockPool()
	vb := &VulkanBackend{
		context:      context,
		locks:        locks,
		buffers:      containers.NewHandleTable[*VulkanBuffer]("buffers"),
		images:       containers.NewHandleTable[*VulkanImage]("images"),
		samplers:     containers.NewHandleTable[vk.Sampler]("samplers"),
		layouts:      containers.NewHandleTable[vk.DescriptorSetLayout]("descriptor-set-layouts"),
		sets:         containers.NewHandleTable[vk.DescriptorSet]("descriptor-sets"),
		modules:      containers.NewHandleTable[*VulkanShaderModule]("shader-modules"),
		pipelines:    containers.NewHandleTable[*VulkanPipeline]("pipelines"),
		fences:       containers.NewHandleTable[*VulkanFence]("fences"),
		semaphores:   containers.NewHandleTable[vk.Semaphore]("semaphores"),
		renderpasses: NewVulkanRenderpassCache(context, locks),
		framebuffers: NewVulkanFramebufferCache(context, locks),
	}

	if vb.immediate, err = vb.newCommandBuffer("immediate"); err != nil {
		vb.Destroy()
		return nil, err
	}
	if vb.immediateFence, err = vb.newFence(false); err != nil {
		vb.Destroy()
		return nil, err
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return vb, nil
}

func (vb *VulkanBackend) AllocateCommandBuffer(name string) (metadata.CommandBuffer, error) {
	return vb.newCommandBuffer(name)
}

func (vb *VulkanBackend) FreeCommandBuffer(cmd metadata.CommandBuffer) {
	vcmd, ok := cmd.(*VulkanCommandBuffer)
	if !ok || vcmd == nil {
		core.LogWarn("free of a foreign command buffer ignored")
		return
	}
	vcmd.free()
}

func (vb *VulkanBackend) Submit(info metadata.SubmitInfo) error {
	cmd, ok := info.Command.(*VulkanCommandBuffer)
	if !ok || cmd == nil {
		return core.Mark(core.Newf("submit of a foreign command buffer"), core.ErrInvalidHandle)
	}
	if cmd.State != COMMAND_BUFFER_STATE_RECORDING_ENDED {
		return core.Newf("command buffer %s submitted before End", cmd.name)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.Handle},
	}
	if info.Wait.IsValid() {
		semaphore, err := vb.semaphore(info.Wait)
		if err != nil {
			return err
		}
		stage := info.WaitStage
		if stage == metadata.StageNone {
			stage = metadata.StageAllCommands
		}
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{semaphore}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(stage)}
	}
	if info.Signal.IsValid() {
		semaphore, err := vb.semaphore(info.Signal)
		if err != nil {
			return err
		}
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{semaphore}
	}
	fence := vk.NullFence
	if info.Fence.IsValid() {
		f, err := vb.fence(info.Fence)
		if err != nil {
			return err
		}
		f.unsignal()
		fence = f.Handle
	}
	return vb.queueSubmit(cmd, submitInfo, fence)
}

func (vb *VulkanBackend) queueSubmit(cmd *VulkanCommandBuffer, submitInfo vk.SubmitInfo, fence vk.Fence) error {
	err := vb.locks.SafeCall(QueueManagement, func() error {
		return ResultError(vk.QueueSubmit(vb.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	cmd.UpdateSubmitted()
	return nil
}

func (vb *VulkanBackend) ImmediateSubmit(fn func(cmd metadata.CommandBuffer)) error {
	vb.immediateMu.Lock()
	defer vb.immediateMu.Unlock()

	cmd := vb.immediate
	if err := vb.immediateFence.reset(vb.context); err != nil {
		return err
	}
	if err := cmd.Reset(); err != nil {
		return err
	}
	if err := cmd.Begin(true); err != nil {
		return err
	}
	fn(cmd)
	if err := cmd.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.Handle},
	}
	if err := vb.queueSubmit(cmd, submitInfo, vb.immediateFence.Handle); err != nil {
		return err
	}
	return vb.immediateFence.wait(vb.context, VULKAN_IMMEDIATE_SUBMIT_TIMEOUT)
}

func (vb *VulkanBackend) WaitIdle() error {
	return vb.locks.SafeCall(QueueManagement, func() error {
		return ResultError(vk.DeviceWaitIdle(vb.context.Device.LogicalDevice), "vkDeviceWaitIdle")
	})
}

// Destroy waits for the GPU, releases every resource still registered and tears down the
// device. The returned labels name what the owners forgot to destroy.
func (vb *VulkanBackend) Destroy() []string {
	if vb.context == nil {
		return nil
	}
	if err := vb.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown: %s", err)
	}

	if vb.immediateFence != nil {
		vb.immediateFence.destroy(vb.context)
		vb.immediateFence = nil
	}
	if vb.immediate != nil {
		vb.immediate.free()
		vb.immediate = nil
	}

	device := vb.context.Device.LogicalDevice
	allocator := vb.context.Allocator
	var leaked []string
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		// Dependents first: pipelines reference modules and layouts, sets reference layouts.
		leaked = append(leaked, vb.pipelines.Drain(func(p *VulkanPipeline) { p.destroy(vb.context) })...)
		leaked = append(leaked, vb.modules.Drain(func(m *VulkanShaderModule) {
			vk.DestroyShaderModule(device, m.Handle, allocator)
		})...)
		// Sets go away with their pools.
		leaked = append(leaked, vb.sets.Drain(nil)...)
		leaked = append(leaked, vb.layouts.Drain(func(l vk.DescriptorSetLayout) {
			vk.DestroyDescriptorSetLayout(device, l, allocator)
		})...)
		leaked = append(leaked, vb.samplers.Drain(func(s vk.Sampler) {
			vk.DestroySampler(device, s, allocator)
		})...)
		leaked = append(leaked, vb.images.Drain(vb.releaseImage)...)
		leaked = append(leaked, vb.buffers.Drain(vb.releaseBuffer)...)
		leaked = append(leaked, vb.fences.Drain(func(f *VulkanFence) { f.destroy(vb.context) })...)
		leaked = append(leaked, vb.semaphores.Drain(func(s vk.Semaphore) {
			vk.DestroySemaphore(device, s, allocator)
		})...)
		return nil
	})
	for _, label := range leaked {
		core.LogWarn("leaked GPU resource: %s", label)
	}

	vb.framebuffers.Destroy()
	vb.renderpasses.Destroy()

	vb.context.Destroy()
	vb.context = nil
	core.LogInfo("Vulkan backend shut down.")
	return leaked
}
