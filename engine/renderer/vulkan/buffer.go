package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	Size    uint64
	Usage   metadata.BufferUsage
	Address metadata.DeviceAddress
	// Mapped is the persistent mapping of host visible buffers.
	Mapped []byte
}

func (vb *VulkanBackend) CreateBuffer(info metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	if info.Size == 0 {
		return 0, core.Newf("buffer %s: size must be positive", info.Name)
	}
	device := vb.context.Device.LogicalDevice

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := ResultError(vk.CreateBuffer(device, &createInfo, vb.context.Allocator, &handle), "vkCreateBuffer"); err != nil {
		return 0, core.Wrapf(err, "buffer %s", info.Name)
	}
	buffer := &VulkanBuffer{Handle: handle, Size: info.Size, Usage: info.Usage}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, handle, &requirements)
	requirements.Deref()

	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if info.Location == metadata.MemoryHostVisible {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	memory, err := vb.allocateMemory(requirements, properties, info.Usage&metadata.BufferUsageDeviceAddress != 0)
	if err != nil {
		vk.DestroyBuffer(device, handle, vb.context.Allocator)
		return 0, core.Wrapf(err, "buffer %s", info.Name)
	}
	buffer.Memory = memory
	if err := ResultError(vk.BindBufferMemory(device, handle, memory, 0), "vkBindBufferMemory"); err != nil {
		vb.releaseBuffer(buffer)
		return 0, core.Wrapf(err, "buffer %s", info.Name)
	}

	if info.Location == metadata.MemoryHostVisible {
		var ptr unsafe.Pointer
		if err := ResultError(vk.MapMemory(device, memory, 0, vk.DeviceSize(info.Size), 0, &ptr), "vkMapMemory"); err != nil {
			vb.releaseBuffer(buffer)
			return 0, core.Wrapf(err, "buffer %s", info.Name)
		}
		buffer.Mapped = unsafe.Slice((*byte)(ptr), info.Size)
	}

	if info.Usage&metadata.BufferUsageDeviceAddress != 0 {
		buffer.Address = vb.context.bufferDeviceAddress(handle)
	}

	var h metadata.BufferHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.BufferHandle(vb.buffers.Insert(info.Name, buffer))
		return nil
	})
	return h, nil
}

// allocateMemory finds a memory type for requirements and allocates a block of it.
func (vb *VulkanBackend) allocateMemory(requirements vk.MemoryRequirements, properties vk.MemoryPropertyFlags, deviceAddress bool) (vk.DeviceMemory, error) {
	index := vb.context.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if index < 0 {
		return vk.NullDeviceMemory, core.Mark(core.Newf("no memory type matches 0x%x", uint32(properties)), core.ErrAllocationFailed)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(index),
	}
	flagsInfo := vk.MemoryAllocateFlagsInfo{
		SType: vk.StructureTypeMemoryAllocateFlagsInfo,
		Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
	}
	if deviceAddress {
		allocateInfo.PNext = unsafe.Pointer(&flagsInfo)
	}
	var memory vk.DeviceMemory
	if err := ResultError(vk.AllocateMemory(vb.context.Device.LogicalDevice, &allocateInfo, vb.context.Allocator, &memory), "vkAllocateMemory"); err != nil {
		return vk.NullDeviceMemory, err
	}
	return memory, nil
}

func (vb *VulkanBackend) releaseBuffer(buffer *VulkanBuffer) {
	device := vb.context.Device.LogicalDevice
	if buffer.Mapped != nil {
		vk.UnmapMemory(device, buffer.Memory)
		buffer.Mapped = nil
	}
	if buffer.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, buffer.Handle, vb.context.Allocator)
		buffer.Handle = vk.NullBuffer
	}
	if buffer.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, buffer.Memory, vb.context.Allocator)
		buffer.Memory = vk.NullDeviceMemory
	}
}

func (vb *VulkanBackend) DestroyBuffer(h metadata.BufferHandle) {
	var buffer *VulkanBuffer
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		buffer, err = vb.buffers.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy buffer: %s", err)
		return
	}
	vb.releaseBuffer(buffer)
}

func (vb *VulkanBackend) buffer(h metadata.BufferHandle) (*VulkanBuffer, error) {
	var buffer *VulkanBuffer
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		buffer, err = vb.buffers.Get(containers.Handle(h))
		return err
	})
	return buffer, err
}

func (vb *VulkanBackend) MappedBytes(h metadata.BufferHandle) ([]byte, error) {
	buffer, err := vb.buffer(h)
	if err != nil {
		return nil, err
	}
	if buffer.Mapped == nil {
		return nil, core.Newf("buffer %s is not host visible", containers.Handle(h))
	}
	return buffer.Mapped, nil
}

func (vb *VulkanBackend) BufferAddress(h metadata.BufferHandle) metadata.DeviceAddress {
	buffer, err := vb.buffer(h)
	if err != nil {
		return 0
	}
	return buffer.Address
}

func (vb *VulkanBackend) BufferSize(h metadata.BufferHandle) uint64 {
	buffer, err := vb.buffer(h)
	if err != nil {
		return 0
	}
	return buffer.Size
}
