package vulkan

/*
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	uint32_t sType;
	const void* pNext;
	uint64_t buffer;
} bufferAddressInfo;

typedef void (*voidFunction)(void);
typedef voidFunction (*getInstanceProcAddrFn)(void* instance, const char* name);
typedef voidFunction (*getDeviceProcAddrFn)(void* device, const char* name);
typedef uint64_t (*getBufferDeviceAddressFn)(void* device, const bufferAddressInfo* info);

static void* loadDeviceProc(void* getInstanceProcAddr, void* instance, void* device, const char* name) {
	getDeviceProcAddrFn getDeviceProcAddr =
		(getDeviceProcAddrFn)((getInstanceProcAddrFn)getInstanceProcAddr)(instance, "vkGetDeviceProcAddr");
	if (getDeviceProcAddr == NULL) {
		return NULL;
	}
	return (void*)getDeviceProcAddr(device, name);
}

static uint64_t callGetBufferDeviceAddress(void* fn, void* device, uint32_t sType, uint64_t buffer) {
	bufferAddressInfo info = {sType, NULL, buffer};
	return ((getBufferDeviceAddressFn)fn)(device, &info);
}
*/
import "C"

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// vkGetBufferDeviceAddress is core in 1.2 but has no goki/vulkan wrapper, so it is resolved
// through the loader and called directly.
func (vc *VulkanContext) loadBufferDeviceAddress() error {
	for _, name := range []string{"vkGetBufferDeviceAddress", "vkGetBufferDeviceAddressKHR"} {
		cname := C.CString(name)
		fn := C.loadDeviceProc(vc.getInstanceProcAddr, unsafe.Pointer(vc.Instance), unsafe.Pointer(vc.Device.LogicalDevice), cname)
		C.free(unsafe.Pointer(cname))
		if fn != nil {
			vc.Device.getBufferDeviceAddress = fn
			core.LogDebug("Loaded %s.", name)
			return nil
		}
	}
	return core.Newf("device does not expose vkGetBufferDeviceAddress")
}

func (vc *VulkanContext) bufferDeviceAddress(buffer vk.Buffer) metadata.DeviceAddress {
	if vc.Device.getBufferDeviceAddress == nil {
		return 0
	}
	// Non-dispatchable handles are 64 bits on every platform.
	handle := *(*C.uint64_t)(unsafe.Pointer(&buffer))
	address := C.callGetBufferDeviceAddress(
		vc.Device.getBufferDeviceAddress,
		unsafe.Pointer(vc.Device.LogicalDevice),
		C.uint32_t(vk.StructureTypeBufferDeviceAddressInfo),
		handle,
	)
	return metadata.DeviceAddress(address)
}
