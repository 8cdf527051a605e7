package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

// bindingFlags is nil unless some binding needs a flag, so plain layouts skip the pNext chain.
func bindingFlags(bindings []metadata.DescriptorBinding) []vk.DescriptorBindingFlags {
	var flags []vk.DescriptorBindingFlags
	for i, b := range bindings {
		if !b.PartiallyBound {
			continue
		}
		if flags == nil {
			flags = make([]vk.DescriptorBindingFlags, len(bindings))
		}
		flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
	}
	return flags
}

func (vb *VulkanBackend) CreateDescriptorSetLayout(info metadata.DescriptorSetLayoutCreateInfo) (metadata.DescriptorSetLayoutHandle, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(info.Bindings))
	for i, b := range info.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vulkanDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
		if len(b.ImmutableSamplers) > 0 {
			if uint32(len(b.ImmutableSamplers)) != b.Count {
				return 0, core.Newf("layout %s: binding %d has %d immutable samplers for %d descriptors",
					info.Name, b.Binding, len(b.ImmutableSamplers), b.Count)
			}
			samplers := make([]vk.Sampler, len(b.ImmutableSamplers))
			for j, s := range b.ImmutableSamplers {
				sampler, err := vb.sampler(s)
				if err != nil {
					return 0, core.Wrapf(err, "layout %s: binding %d", info.Name, b.Binding)
				}
				samplers[j] = sampler
			}
			bindings[i].PImmutableSamplers = samplers
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if flags := bindingFlags(info.Bindings); flags != nil {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		}
		ref, _ := flagsInfo.PassRef()
		defer flagsInfo.Free()
		createInfo.PNext = unsafe.Pointer(ref)
	}
	var layout vk.DescriptorSetLayout
	if err := ResultError(vk.CreateDescriptorSetLayout(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &layout), "vkCreateDescriptorSetLayout"); err != nil {
		return 0, core.Wrapf(err, "layout %s", info.Name)
	}
	var h metadata.DescriptorSetLayoutHandle
	_ = vb.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.DescriptorSetLayoutHandle(vb.layouts.Insert(info.Name, layout))
		return nil
	})
	return h, nil
}

func (vb *VulkanBackend) DestroyDescriptorSetLayout(h metadata.DescriptorSetLayoutHandle) {
	var layout vk.DescriptorSetLayout
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		layout, err = vb.layouts.Remove(containers.Handle(h))
		return err
	})
	if err != nil {
		core.LogWarn("destroy descriptor set layout: %s", err)
		return
	}
	vk.DestroyDescriptorSetLayout(vb.context.Device.LogicalDevice, layout, vb.context.Allocator)
}

func (vb *VulkanBackend) sampler(h metadata.SamplerHandle) (vk.Sampler, error) {
	var sampler vk.Sampler
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		sampler, err = vb.samplers.Get(containers.Handle(h))
		return err
	})
	return sampler, err
}

func (vb *VulkanBackend) layout(h metadata.DescriptorSetLayoutHandle) (vk.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		layout, err = vb.layouts.Get(containers.Handle(h))
		return err
	})
	return layout, err
}

func (vb *VulkanBackend) descriptorSet(h metadata.DescriptorSetHandle) (vk.DescriptorSet, error) {
	var set vk.DescriptorSet
	err := vb.locks.SafeCall(ResourceManagement, func() error {
		var err error
		set, err = vb.sets.Get(containers.Handle(h))
		return err
	})
	return set, err
}

// UpdateDescriptorSet writes every entry at once. Writes naming stale resources are
// dropped with an error log, the rest still land.
func (vb *VulkanBackend) UpdateDescriptorSet(h metadata.DescriptorSetHandle, writes []metadata.DescriptorWrite) {
	set, err := vb.descriptorSet(h)
	if err != nil {
		core.LogError("update descriptor set: %s", err)
		return
	}

	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vulkanDescriptorType(w.Type),
		}
		if len(w.Images) > 0 {
			infos, err := vb.imageInfos(w.Images)
			if err != nil {
				core.LogError("update descriptor set binding %d: %s", w.Binding, err)
				continue
			}
			wd.DescriptorCount = uint32(len(infos))
			wd.PImageInfo = infos
		} else {
			infos, err := vb.bufferInfos(w.Buffers)
			if err != nil {
				core.LogError("update descriptor set binding %d: %s", w.Binding, err)
				continue
			}
			wd.DescriptorCount = uint32(len(infos))
			wd.PBufferInfo = infos
		}
		vkWrites = append(vkWrites, wd)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(vb.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
}

func (vb *VulkanBackend) imageInfos(images []metadata.DescriptorImageInfo) ([]vk.DescriptorImageInfo, error) {
	infos := make([]vk.DescriptorImageInfo, len(images))
	for i, info := range images {
		image, err := vb.image(info.Image)
		if err != nil {
			return nil, err
		}
		infos[i] = vk.DescriptorImageInfo{
			ImageView:   image.View,
			ImageLayout: vulkanLayout(info.Layout),
		}
		// immutable sampler bindings leave it unset
		if info.Sampler.IsValid() {
			sampler, err := vb.sampler(info.Sampler)
			if err != nil {
				return nil, err
			}
			infos[i].Sampler = sampler
		}
	}
	return infos, nil
}

func (vb *VulkanBackend) bufferInfos(buffers []metadata.DescriptorBufferInfo) ([]vk.DescriptorBufferInfo, error) {
	infos := make([]vk.DescriptorBufferInfo, len(buffers))
	for i, info := range buffers {
		buffer, err := vb.buffer(info.Buffer)
		if err != nil {
			return nil, err
		}
		size := vk.DeviceSize(vk.WholeSize)
		if info.Range > 0 {
			size = vk.DeviceSize(info.Range)
		}
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: buffer.Handle,
			Offset: vk.DeviceSize(info.Offset),
			Range:  size,
		}
	}
	return infos, nil
}

// PoolRatio is how many descriptors of a type a pool reserves per set.
type PoolRatio struct {
	Type  metadata.DescriptorType
	Ratio float32
}

// DefaultPoolRatios covers the descriptor mix of the deferred pipeline.
var DefaultPoolRatios = []PoolRatio{
	{Type: metadata.DescriptorTypeCombinedImageSampler, Ratio: 4},
	{Type: metadata.DescriptorTypeStorageImage, Ratio: 1},
	{Type: metadata.DescriptorTypeUniformBuffer, Ratio: 2},
	{Type: metadata.DescriptorTypeStorageBuffer, Ratio: 4},
}

// DescriptorAllocator hands out sets from a list of pools, adding a larger pool whenever
// the current one is exhausted. Destroy frees every set it allocated.
type DescriptorAllocator struct {
	backend     *VulkanBackend
	ratios      []PoolRatio
	setsPerPool uint32

	full  []vk.DescriptorPool
	ready []vk.DescriptorPool
	sets  []metadata.DescriptorSetHandle
}

var _ metadata.DescriptorAllocator = (*DescriptorAllocator)(nil)

func NewDescriptorAllocator(backend *VulkanBackend, ratios []PoolRatio) (*DescriptorAllocator, error) {
	a := &DescriptorAllocator{
		backend:     backend,
		ratios:      ratios,
		setsPerPool: VULKAN_DESCRIPTOR_POOL_INITIAL_SETS,
	}
	pool, err := a.createPool(a.setsPerPool)
	if err != nil {
		return nil, err
	}
	a.ready = append(a.ready, pool)
	return a, nil
}

func (a *DescriptorAllocator) createPool(setCount uint32) (vk.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, 0, len(a.ratios))
	for _, r := range a.ratios {
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            vulkanDescriptorType(r.Type),
			DescriptorCount: uint32(r.Ratio * float32(setCount)),
		})
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       setCount,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := ResultError(vk.CreateDescriptorPool(a.backend.context.Device.LogicalDevice, &createInfo, a.backend.context.Allocator, &pool), "vkCreateDescriptorPool"); err != nil {
		return vk.NullDescriptorPool, err
	}
	core.LogDebug("descriptor pool created for %d sets", setCount)
	return pool, nil
}

// pool returns a pool with room left, growing the next pool size by half.
func (a *DescriptorAllocator) pool() (vk.DescriptorPool, error) {
	if n := len(a.ready); n > 0 {
		pool := a.ready[n-1]
		a.ready = a.ready[:n-1]
		return pool, nil
	}
	a.setsPerPool = min(a.setsPerPool+a.setsPerPool/2, VULKAN_DESCRIPTOR_POOL_MAX_SETS)
	return a.createPool(a.setsPerPool)
}

func (a *DescriptorAllocator) Allocate(layout metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetHandle, error) {
	vkLayout, err := a.backend.layout(layout)
	if err != nil {
		return 0, err
	}

	var set vk.DescriptorSet
	err = a.backend.locks.SafeCall(DescriptorManagement, func() error {
		pool, err := a.pool()
		if err != nil {
			return err
		}
		allocateInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{vkLayout},
		}
		res := vk.AllocateDescriptorSets(a.backend.context.Device.LogicalDevice, &allocateInfo, &set)
		if res == vk.ErrorOutOfPoolMemory || res == vk.ErrorFragmentedPool {
			a.full = append(a.full, pool)
			if pool, err = a.pool(); err != nil {
				return err
			}
			allocateInfo.DescriptorPool = pool
			res = vk.AllocateDescriptorSets(a.backend.context.Device.LogicalDevice, &allocateInfo, &set)
		}
		a.ready = append(a.ready, pool)
		return ResultError(res, "vkAllocateDescriptorSets")
	})
	if err != nil {
		return 0, err
	}

	var h metadata.DescriptorSetHandle
	_ = a.backend.locks.SafeCall(ResourceManagement, func() error {
		h = metadata.DescriptorSetHandle(a.backend.sets.Insert("descriptor-set", set))
		return nil
	})
	a.sets = append(a.sets, h)
	return h, nil
}

func (a *DescriptorAllocator) Destroy() {
	_ = a.backend.locks.SafeCall(ResourceManagement, func() error {
		for _, h := range a.sets {
			_, _ = a.backend.sets.Remove(containers.Handle(h))
		}
		return nil
	})
	a.sets = nil

	device := a.backend.context.Device.LogicalDevice
	for _, pool := range append(a.ready, a.full...) {
		vk.DestroyDescriptorPool(device, pool, a.backend.context.Allocator)
	}
	a.ready = nil
	a.full = nil
}
