package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderModule struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The stage the module was compiled for. */
	Stage metadata.ShaderStage
}

// stageCreateInfo describes the module as one stage of a pipeline.
func (m *VulkanShaderModule) stageCreateInfo() vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vulkanShaderStage(m.Stage),
		Module: m.Handle,
		PName:  VulkanSafeString(VULKAN_SHADER_ENTRY_POINT),
	}
}

// CreateShaderModule wraps SPIR-V code, whose length must be a multiple of four.
func (vb *VulkanBackend) CreateShaderModule(name string, code []byte, stage metadata.ShaderStage) (metadata.ShaderModuleHandle, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return 0, core.Newf("shader %s: %d bytes is not valid SPIR-V", name, len(code))
	}
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := ResultError(vk.CreateShaderModule(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return 0, core.Wrapf(err, "shader %s", name)
	}

	var h metadata.ShaderModuleHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.ShaderModuleHandle(vb.modules.Insert(name, &VulkanShaderModule{Handle: module, Stage: stage}))
		return nil
	})
	return h, nil
}

func (vb *VulkanBackend) DestroyShaderModule(h metadata.ShaderModuleHandle) {
	var module *VulkanShaderModule
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		module, err = vb.modules.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy shader module: %s", err)
		return
	}
	vk.DestroyShaderModule(vb.context.Device.LogicalDevice, module.Handle, vb.context.Allocator)
}

func (vb *VulkanBackend) shaderModule(h metadata.ShaderModuleHandle) (*VulkanShaderModule, error) {
	var module *VulkanShaderModule
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		module, err = vb.modules.Get(containers.Handle(h))
		return err
	})
	return module, err
}
