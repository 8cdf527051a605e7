package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// Surface is the window the backend presents to.
type Surface interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
	// FramebufferSize is the current drawable size in pixels, zero while minimized.
	FramebufferSize() metadata.Extent2D
}

type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	validation     bool
	debugMessenger vk.DebugReportCallback

	// getInstanceProcAddr resolves the entry points goki/vulkan does not wrap.
	getInstanceProcAddr unsafe.Pointer

	Device *VulkanDevice
}

// NewContext creates the instance, the window surface and the logical device.
func NewContext(window Surface, appName string, validation bool) (*VulkanContext, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, core.Newf("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, core.Wrap(err, "failed to initialize vk")
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator:           nil,
		validation:          validation,
		getInstanceProcAddr: procAddr,
	}
	if err := context.createInstance(window, appName); err != nil {
		return nil, err
	}

	if validation {
		if err := context.createDebugger(); err != nil {
			context.Destroy()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(context.Instance)
	if err != nil {
		context.Destroy()
		return nil, core.Wrap(err, "vulkan surface creation failed")
	}
	context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(context); err != nil {
		context.Destroy()
		return nil, err
	}
	if err := context.loadBufferDeviceAddress(); err != nil {
		context.Destroy()
		return nil, err
	}
	return context, nil
}

func (vc *VulkanContext) createInstance(window Surface, appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Umbra Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// Obtain a list of required extensions
	requiredExtensions := []string{"VK_KHR_surface"} // Generic surface extension
	requiredExtensions = append(requiredExtensions, window.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var requiredLayers []string
	if vc.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkLayers(requiredLayers); err != nil {
			return err
		}
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if err := ResultError(vk.CreateInstance(&createInfo, vc.Allocator, &instance), "vkCreateInstance"); err != nil {
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		return core.Wrap(err, "failed to load instance functions")
	}
	vc.Instance = instance
	core.LogInfo("Vulkan Instance created.")
	return nil
}

// checkLayers verifies every required validation layer is installed.
func checkLayers(required []string) error {
	core.LogInfo("Validation layers enabled. Enumerating...")

	var count uint32
	if err := ResultError(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := ResultError(vk.EnumerateInstanceLayerProperties(&count, available), "vkEnumerateInstanceLayerProperties"); err != nil {
		return err
	}

	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			if CString(available[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return core.Newf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vc *VulkanContext) createDebugger() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := ResultError(vk.CreateDebugReportCallback(vc.Instance, &debugCreateInfo, vc.Allocator, &dbg), "vkCreateDebugReportCallback"); err != nil {
		return err
	}
	vc.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

// FindMemoryIndex returns the first memory type allowed by typeFilter that has every
// property flag, or -1.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	memoryProperties := vc.Device.Memory
	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (memoryProperties.MemoryTypes[i].PropertyFlags&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (vc *VulkanContext) Destroy() {
	if vc.Device != nil {
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vc)
		vc.Device = nil
	}

	if vc.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}

	if vc.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = vk.NullDebugReportCallback
	}

	if vc.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
