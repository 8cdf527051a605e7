package rendertest

import (
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// Allocator hands out descriptor sets from the device and frees them all on Destroy, the
// way resetting a pool would.
type Allocator struct {
	device *Device
	sets   []metadata.DescriptorSetHandle
}

var _ metadata.DescriptorAllocator = (*Allocator)(nil)

func NewAllocator(device *Device) *Allocator {
	return &Allocator{device: device}
}

func (a *Allocator) Allocate(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	name := "set"
	if info, ok := a.device.Layout(layout); ok {
		name = info.Name
	} else {
		a.device.violation("allocate with unknown layout")
	}
	if err := a.device.fail("set", name); err != nil {
		return 0, err
	}
	h := metadata.DescriptorSetHandle(a.device.sets.Insert(name, &DescriptorSet{Layout: layout}))
	a.sets = append(a.sets, h)
	return h, nil
}

func (a *Allocator) Destroy() {
	for _, h := range a.sets {
		_, _ = a.device.sets.Remove(containers.Handle(h))
	}
	a.sets = nil
}
