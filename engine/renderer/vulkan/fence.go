package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func (vb *VulkanBackend) newFence(createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		// Make sure to signal the fence if required.
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if err := ResultError(vk.CreateFence(vb.context.Device.LogicalDevice, &fenceCreateInfo, vb.context.Allocator, &pFence), "vkCreateFence"); err != nil {
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vb *VulkanBackend) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	fence, err := vb.newFence(signaled)
	if err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	var h metadata.FenceHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.FenceHandle(vb.fences.Insert("fence", fence))
		return nil
	})
	return h, nil
}

func (vb *VulkanBackend) fence(h metadata.FenceHandle) (*VulkanFence, error) {
	var fence *VulkanFence
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		fence, err = vb.fences.Get(containers.Handle(h))
		return err
	})
	return fence, err
}

func (vb *VulkanBackend) WaitForFence(h metadata.FenceHandle, timeout time.Duration) error {
	fence, err := vb.fence(h)
	if err != nil {
		return err
	}
	return fence.wait(vb.context, timeout)
}

func (vf *VulkanFence) wait(context *VulkanContext, timeout time.Duration) error {
	// If already signaled, do not wait.
	if vf.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}, vk.True, uint64(timeout.Nanoseconds()))
	if err := ResultError(result, "vkWaitForFences"); err != nil {
		if core.Is(err, core.ErrFenceTimeout) {
			core.LogWarn("fence wait timed out after %s", timeout)
		} else {
			core.LogError(err.Error())
		}
		return err
	}
	vf.IsSignaled = true
	return nil
}

func (vb *VulkanBackend) ResetFence(h metadata.FenceHandle) error {
	fence, err := vb.fence(h)
	if err != nil {
		return err
	}
	return fence.reset(vb.context)
}

func (vf *VulkanFence) reset(context *VulkanContext) error {
	if !vf.IsSignaled {
		return nil
	}
	if err := ResultError(vk.ResetFences(context.Device.LogicalDevice, 1, []vk.Fence{vf.Handle}), "vkResetFences"); err != nil {
		core.LogError(err.Error())
		return err
	}
	vf.IsSignaled = false
	return nil
}

// unsignal records that the fence was handed to a submission.
func (vf *VulkanFence) unsignal() {
	vf.IsSignaled = false
}

func (vb *VulkanBackend) DestroyFence(h metadata.FenceHandle) {
	var fence *VulkanFence
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		fence, err = vb.fences.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy fence: %s", err)
		return
	}
	fence.destroy(vb.context)
}

func (vf *VulkanFence) destroy(context *VulkanContext) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(context.Device.LogicalDevice, vf.Handle, context.Allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

func (vb *VulkanBackend) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := ResultError(vk.CreateSemaphore(vb.context.Device.LogicalDevice, &semaphoreCreateInfo, vb.context.Allocator, &semaphore), "vkCreateSemaphore"); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	var h metadata.SemaphoreHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.SemaphoreHandle(vb.semaphores.Insert("semaphore", semaphore))
		return nil
	})
	return h, nil
}

func (vb *VulkanBackend) semaphore(h metadata.SemaphoreHandle) (vk.Semaphore, error) {
	var semaphore vk.Semaphore
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		semaphore, err = vb.semaphores.Get(containers.Handle(h))
		return err
	})
	return semaphore, err
}

func (vb *VulkanBackend) DestroySemaphore(h metadata.SemaphoreHandle) {
	var semaphore vk.Semaphore
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		semaphore, err = vb.semaphores.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy semaphore: %s", err)
		return
	}
	vk.DestroySemaphore(vb.context.Device.LogicalDevice, semaphore, vb.context.Allocator)
}
