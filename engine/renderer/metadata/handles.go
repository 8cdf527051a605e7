package metadata

import "github.com/spaghettifunk/umbra/engine/containers"

// Typed views over containers.Handle, one per resource kind, so a buffer handle cannot be
// handed to an image call by accident. The zero value of each is invalid.

type BufferHandle containers.Handle

type ImageHandle containers.Handle

type SamplerHandle containers.Handle

type DescriptorSetLayoutHandle containers.Handle

type DescriptorSetHandle containers.Handle

type ShaderModuleHandle containers.Handle

type PipelineHandle containers.Handle

type FenceHandle containers.Handle

type SemaphoreHandle containers.Handle

func (h BufferHandle) IsValid() bool              { return containers.Handle(h).IsValid() }
func (h ImageHandle) IsValid() bool               { return containers.Handle(h).IsValid() }
func (h SamplerHandle) IsValid() bool             { return containers.Handle(h).IsValid() }
func (h DescriptorSetLayoutHandle) IsValid() bool { return containers.Handle(h).IsValid() }
func (h DescriptorSetHandle) IsValid() bool       { return containers.Handle(h).IsValid() }
func (h ShaderModuleHandle) IsValid() bool        { return containers.Handle(h).IsValid() }
func (h PipelineHandle) IsValid() bool            { return containers.Handle(h).IsValid() }
func (h FenceHandle) IsValid() bool               { return containers.Handle(h).IsValid() }
func (h SemaphoreHandle) IsValid() bool           { return containers.Handle(h).IsValid() }

// DeviceAddress is a raw GPU virtual address as returned by buffer device address queries.
// Zero means no address.
type DeviceAddress uint64
