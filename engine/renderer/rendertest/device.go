// Package rendertest provides an in-memory metadata.Device for exercising render code
// without a GPU. Commands take effect as soon as they are recorded: copies move bytes,
// transitions and clears update per-image state, draws and dispatches are counted.
package rendertest

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/umbra/engine/containers"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
)

type Buffer struct {
	Info    metadata.BufferCreateInfo
	Bytes   []byte
	Address metadata.DeviceAddress
}

type Image struct {
	Info       metadata.ImageCreateInfo
	Layout     metadata.ImageLayout
	ClearColor [4]float32
	ClearDepth float32
	// Clears counts every clear that reached the image, by command or by load op.
	Clears int
}

type DescriptorSet struct {
	Layout metadata.DescriptorSetLayoutHandle
	Writes []metadata.DescriptorWrite
}

type Pipeline struct {
	Name     string
	Compute  bool
	Graphics metadata.GraphicsPipelineCreateInfo
}

type fence struct {
	signaled bool
}

// Command is one entry of the device-wide command log.
type Command struct {
	Op     string
	Detail string
}

type Draw struct {
	Pass          string
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
}

type Dispatch struct {
	X, Y, Z uint32
}

type PushConstant struct {
	Pipeline metadata.PipelineHandle
	Stages   metadata.ShaderStage
	Data     []byte
}

type Device struct {
	buffers    *containers.HandleTable[*Buffer]
	images     *containers.HandleTable[*Image]
	samplers   *containers.HandleTable[metadata.SamplerCreateInfo]
	layouts    *containers.HandleTable[metadata.DescriptorSetLayoutCreateInfo]
	sets       *containers.HandleTable[*DescriptorSet]
	modules    *containers.HandleTable[metadata.ShaderStage]
	pipelines  *containers.HandleTable[*Pipeline]
	fences     *containers.HandleTable[*fence]
	semaphores *containers.HandleTable[struct{}]

	nextAddress uint64
	pending     hazardTracker

	// Fail, when set, makes the named creation fail. kind is one of "buffer", "image",
	// "sampler", "layout", "set", "module", "pipeline", "fence", "semaphore".
	Fail func(kind, name string) bool
	// HangFences keeps submitted fences unsignaled, so the next wait times out.
	HangFences bool

	Commands      []Command
	Draws         []Draw
	Dispatches    []Dispatch
	PushConstants []PushConstant
	Barriers      int
	Submits       int
	// Violations collects misuse the device could detect: bad layouts, out of range copies,
	// draws outside a pass.
	Violations []string
	// Hazards collects reads and writes of a resource still being written by an earlier
	// command with no barrier in between.
	Hazards []string
	// Leaked holds the labels Destroy found still allocated.
	Leaked []string
}

var _ metadata.Device = (*Device)(nil)

func NewDevice() *Device {
	d := &Device{
		buffers:     containers.NewHandleTable[*Buffer]("buffers"),
		images:      containers.NewHandleTable[*Image]("images"),
		samplers:    containers.NewHandleTable[metadata.SamplerCreateInfo]("samplers"),
		layouts:     containers.NewHandleTable[metadata.DescriptorSetLayoutCreateInfo]("descriptor-set-layouts"),
		sets:        containers.NewHandleTable[*DescriptorSet]("descriptor-sets"),
		modules:     containers.NewHandleTable[metadata.ShaderStage]("shader-modules"),
		pipelines:   containers.NewHandleTable[*Pipeline]("pipelines"),
		fences:      containers.NewHandleTable[*fence]("fences"),
		semaphores:  containers.NewHandleTable[struct{}]("semaphores"),
		nextAddress: 0x10000,
	}
	d.pending.reset()
	return d
}

func (d *Device) fail(kind, name string) error {
	if d.Fail != nil && d.Fail(kind, name) {
		return core.Mark(core.Newf("failed to create %s %s", kind, name), core.ErrAllocationFailed)
	}
	return nil
}

func (d *Device) log(op, format string, args ...interface{}) {
	d.Commands = append(d.Commands, Command{Op: op, Detail: fmt.Sprintf(format, args...)})
}

func (d *Device) violation(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// ResetCounters clears the command log and counters, keeping every resource.
func (d *Device) ResetCounters() {
	d.Commands = nil
	d.Draws = nil
	d.Dispatches = nil
	d.PushConstants = nil
	d.Barriers = 0
	d.Submits = 0
	d.Violations = nil
	d.Hazards = nil
	d.pending.reset()
}

// Ops returns the op names of the command log, in order.
func (d *Device) Ops() []string {
	ops := make([]string, len(d.Commands))
	for i, c := range d.Commands {
		ops[i] = c.Op
	}
	return ops
}

func (d *Device) CreateBuffer(info metadata.BufferCreateInfo) (metadata.BufferHandle, error) {
	if err := d.fail("buffer", info.Name); err != nil {
		return 0, err
	}
	b := &Buffer{Info: info, Bytes: make([]byte, info.Size)}
	if info.Usage&metadata.BufferUsageDeviceAddress != 0 {
		b.Address = metadata.DeviceAddress(d.nextAddress)
		d.nextAddress += metadata.GetAligned(info.Size+1, 256)
	}
	return metadata.BufferHandle(d.buffers.Insert(info.Name, b)), nil
}

func (d *Device) DestroyBuffer(h metadata.BufferHandle) {
	if _, err := d.buffers.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy buffer: %s", err)
	}
}

// Buffer exposes the backing store of any buffer, device-local ones included.
func (d *Device) Buffer(h metadata.BufferHandle) *Buffer {
	b, err := d.buffers.Get(containers.Handle(h))
	if err != nil {
		return nil
	}
	return b
}

func (d *Device) MappedBytes(h metadata.BufferHandle) ([]byte, error) {
	b, err := d.buffers.Get(containers.Handle(h))
	if err != nil {
		return nil, err
	}
	if b.Info.Location != metadata.MemoryHostVisible {
		return nil, core.Newf("buffer %s is not host visible", b.Info.Name)
	}
	return b.Bytes, nil
}

func (d *Device) BufferAddress(h metadata.BufferHandle) metadata.DeviceAddress {
	if b := d.Buffer(h); b != nil {
		return b.Address
	}
	return 0
}

func (d *Device) BufferSize(h metadata.BufferHandle) uint64 {
	if b := d.Buffer(h); b != nil {
		return b.Info.Size
	}
	return 0
}

func (d *Device) CreateImage(info metadata.ImageCreateInfo) (metadata.ImageHandle, error) {
	if err := d.fail("image", info.Name); err != nil {
		return 0, err
	}
	img := &Image{Info: info, Layout: metadata.LayoutUndefined}
	return metadata.ImageHandle(d.images.Insert(info.Name, img)), nil
}

func (d *Device) DestroyImage(h metadata.ImageHandle) {
	if _, err := d.images.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy image: %s", err)
	}
}

func (d *Device) Image(h metadata.ImageHandle) *Image {
	img, err := d.images.Get(containers.Handle(h))
	if err != nil {
		return nil
	}
	return img
}

func (d *Device) ImageExtent(h metadata.ImageHandle) metadata.Extent2D {
	if img := d.Image(h); img != nil {
		return img.Info.Extent
	}
	return metadata.Extent2D{}
}

func (d *Device) ImageFormat(h metadata.ImageHandle) metadata.Format {
	if img := d.Image(h); img != nil {
		return img.Info.Format
	}
	return metadata.FormatUndefined
}

func (d *Device) CreateSampler(info metadata.SamplerCreateInfo) (metadata.SamplerHandle, error) {
	if err := d.fail("sampler", info.Name); err != nil {
		return 0, err
	}
	return metadata.SamplerHandle(d.samplers.Insert(info.Name, info)), nil
}

func (d *Device) DestroySampler(h metadata.SamplerHandle) {
	if _, err := d.samplers.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy sampler: %s", err)
	}
}

func (d *Device) Sampler(h metadata.SamplerHandle) (metadata.SamplerCreateInfo, bool) {
	info, err := d.samplers.Get(containers.Handle(h))
	return info, err == nil
}

func (d *Device) CreateDescriptorSetLayout(info metadata.DescriptorSetLayoutCreateInfo) (metadata.DescriptorSetLayoutHandle, error) {
	if err := d.fail("layout", info.Name); err != nil {
		return 0, err
	}
	for _, b := range info.Bindings {
		if len(b.ImmutableSamplers) > 0 && uint32(len(b.ImmutableSamplers)) != b.Count {
			d.violation("layout %s binding %d: %d immutable samplers for %d descriptors", info.Name, b.Binding, len(b.ImmutableSamplers), b.Count)
		}
	}
	return metadata.DescriptorSetLayoutHandle(d.layouts.Insert(info.Name, info)), nil
}

func (d *Device) DestroyDescriptorSetLayout(h metadata.DescriptorSetLayoutHandle) {
	if _, err := d.layouts.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy descriptor set layout: %s", err)
	}
}

func (d *Device) Layout(h metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetLayoutCreateInfo, bool) {
	info, err := d.layouts.Get(containers.Handle(h))
	return info, err == nil
}

func (d *Device) UpdateDescriptorSet(set metadata.DescriptorSetHandle, writes []metadata.DescriptorWrite) {
	s, err := d.sets.Get(containers.Handle(set))
	if err != nil {
		d.violation("update descriptor set: %s", err)
		return
	}
	s.Writes = append(s.Writes, writes...)
}

func (d *Device) DescriptorSet(h metadata.DescriptorSetHandle) *DescriptorSet {
	s, err := d.sets.Get(containers.Handle(h))
	if err != nil {
		return nil
	}
	return s
}

func (d *Device) CreateShaderModule(name string, code []byte, stage metadata.ShaderStage) (metadata.ShaderModuleHandle, error) {
	if err := d.fail("module", name); err != nil {
		return 0, err
	}
	return metadata.ShaderModuleHandle(d.modules.Insert(name, stage)), nil
}

func (d *Device) DestroyShaderModule(h metadata.ShaderModuleHandle) {
	if _, err := d.modules.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy shader module: %s", err)
	}
}

func (d *Device) CreateGraphicsPipeline(info metadata.GraphicsPipelineCreateInfo) (metadata.PipelineHandle, error) {
	if err := d.fail("pipeline", info.Name); err != nil {
		return 0, err
	}
	p := &Pipeline{Name: info.Name, Graphics: info}
	return metadata.PipelineHandle(d.pipelines.Insert(info.Name, p)), nil
}

func (d *Device) CreateComputePipeline(info metadata.ComputePipelineCreateInfo) (metadata.PipelineHandle, error) {
	if err := d.fail("pipeline", info.Name); err != nil {
		return 0, err
	}
	p := &Pipeline{Name: info.Name, Compute: true}
	return metadata.PipelineHandle(d.pipelines.Insert(info.Name, p)), nil
}

func (d *Device) DestroyPipeline(h metadata.PipelineHandle) {
	if _, err := d.pipelines.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy pipeline: %s", err)
	}
}

func (d *Device) Pipeline(h metadata.PipelineHandle) *Pipeline {
	p, err := d.pipelines.Get(containers.Handle(h))
	if err != nil {
		return nil
	}
	return p
}

func (d *Device) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	if err := d.fail("fence", ""); err != nil {
		return 0, err
	}
	return metadata.FenceHandle(d.fences.Insert("fence", &fence{signaled: signaled})), nil
}

func (d *Device) WaitForFence(h metadata.FenceHandle, timeout time.Duration) error {
	f, err := d.fences.Get(containers.Handle(h))
	if err != nil {
		return err
	}
	if !f.signaled {
		return core.Mark(core.Newf("fence not signaled after %s", timeout), core.ErrFenceTimeout)
	}
	return nil
}

func (d *Device) ResetFence(h metadata.FenceHandle) error {
	f, err := d.fences.Get(containers.Handle(h))
	if err != nil {
		return err
	}
	f.signaled = false
	return nil
}

func (d *Device) DestroyFence(h metadata.FenceHandle) {
	if _, err := d.fences.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy fence: %s", err)
	}
}

func (d *Device) FenceSignaled(h metadata.FenceHandle) bool {
	f, err := d.fences.Get(containers.Handle(h))
	return err == nil && f.signaled
}

func (d *Device) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	if err := d.fail("semaphore", ""); err != nil {
		return 0, err
	}
	return metadata.SemaphoreHandle(d.semaphores.Insert("semaphore", struct{}{})), nil
}

func (d *Device) DestroySemaphore(h metadata.SemaphoreHandle) {
	if _, err := d.semaphores.Remove(containers.Handle(h)); err != nil {
		d.violation("destroy semaphore: %s", err)
	}
}

func (d *Device) AllocateCommandBuffer(name string) (metadata.CommandBuffer, error) {
	return &CommandBuffer{device: d, name: name}, nil
}

func (d *Device) FreeCommandBuffer(cmd metadata.CommandBuffer) {}

func (d *Device) Submit(info metadata.SubmitInfo) error {
	cb, ok := info.Command.(*CommandBuffer)
	if !ok {
		return core.Newf("unexpected command buffer type %T", info.Command)
	}
	if cb.recording {
		d.violation("submit of %s while still recording", cb.name)
	}
	d.Submits++
	cb.Submitted++
	d.log("submit", cb.name)
	d.pending.reset()
	if info.Fence.IsValid() && !d.HangFences {
		f, err := d.fences.Get(containers.Handle(info.Fence))
		if err != nil {
			return err
		}
		if f.signaled {
			d.violation("submit with fence already signaled")
		}
		f.signaled = true
	}
	return nil
}

func (d *Device) ImmediateSubmit(fn func(cmd metadata.CommandBuffer)) error {
	cmd := &CommandBuffer{device: d, name: "immediate"}
	if err := cmd.Begin(true); err != nil {
		return err
	}
	fn(cmd)
	if err := cmd.End(); err != nil {
		return err
	}
	return d.Submit(metadata.SubmitInfo{Command: cmd})
}

func (d *Device) WaitIdle() error { return nil }

// Live reports how many resources are still allocated.
func (d *Device) Live() int {
	return d.buffers.Len() + d.images.Len() + d.samplers.Len() + d.layouts.Len() + d.sets.Len() +
		d.modules.Len() + d.pipelines.Len() + d.fences.Len() + d.semaphores.Len()
}

func (d *Device) Destroy() []string {
	var leaked []string
	leaked = append(leaked, d.pipelines.Drain(nil)...)
	leaked = append(leaked, d.modules.Drain(nil)...)
	leaked = append(leaked, d.sets.Drain(nil)...)
	leaked = append(leaked, d.layouts.Drain(nil)...)
	leaked = append(leaked, d.samplers.Drain(nil)...)
	leaked = append(leaked, d.images.Drain(nil)...)
	leaked = append(leaked, d.buffers.Drain(nil)...)
	leaked = append(leaked, d.fences.Drain(nil)...)
	leaked = append(leaked, d.semaphores.Drain(nil)...)
	d.Leaked = leaked
	return leaked
}
