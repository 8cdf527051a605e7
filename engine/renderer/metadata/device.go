package metadata

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// Device creates and destroys GPU resources. Every resource is identified by a typed
// handle and owned by whoever created it; Destroy releases anything still outstanding.
type Device interface {
	CreateBuffer(info BufferCreateInfo) (BufferHandle, error)
	DestroyBuffer(h BufferHandle)
	// MappedBytes returns the persistent host mapping of a MemoryHostVisible buffer.
	MappedBytes(h BufferHandle) ([]byte, error)
	BufferAddress(h BufferHandle) DeviceAddress
	BufferSize(h BufferHandle) uint64

	CreateImage(info ImageCreateInfo) (ImageHandle, error)
	DestroyImage(h ImageHandle)
	ImageExtent(h ImageHandle) Extent2D
	ImageFormat(h ImageHandle) Format

	CreateSampler(info SamplerCreateInfo) (SamplerHandle, error)
	DestroySampler(h SamplerHandle)

	CreateDescriptorSetLayout(info DescriptorSetLayoutCreateInfo) (DescriptorSetLayoutHandle, error)
	DestroyDescriptorSetLayout(h DescriptorSetLayoutHandle)
	UpdateDescriptorSet(set DescriptorSetHandle, writes []DescriptorWrite)

	CreateShaderModule(name string, code []byte, stage ShaderStage) (ShaderModuleHandle, error)
	DestroyShaderModule(h ShaderModuleHandle)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (PipelineHandle, error)
	CreateComputePipeline(info ComputePipelineCreateInfo) (PipelineHandle, error)
	DestroyPipeline(h PipelineHandle)

	CreateFence(signaled bool) (FenceHandle, error)
	// WaitForFence returns an error marked core.ErrFenceTimeout when timeout elapses first.
	WaitForFence(h FenceHandle, timeout time.Duration) error
	ResetFence(h FenceHandle) error
	DestroyFence(h FenceHandle)
	CreateSemaphore() (SemaphoreHandle, error)
	DestroySemaphore(h SemaphoreHandle)

	AllocateCommandBuffer(name string) (CommandBuffer, error)
	FreeCommandBuffer(cmd CommandBuffer)
	Submit(info SubmitInfo) error
	// ImmediateSubmit records fn into a one-shot command buffer and blocks until it has run.
	ImmediateSubmit(fn func(cmd CommandBuffer)) error
	WaitIdle() error

	// Destroy releases every resource still alive and returns their labels.
	Destroy() []string
}

// CommandBuffer records work for the device. Image layouts are tracked per image at record
// time, so transitions only name the new layout.
type CommandBuffer interface {
	Reset() error
	Begin(oneTimeSubmit bool) error
	End() error

	CopyBuffer(src, dst BufferHandle, regions []BufferCopy)
	MemoryBarrier(srcStage PipelineStage, srcAccess Access, dstStage PipelineStage, dstAccess Access)
	// TransitionImages moves every image to layout with a single barrier.
	TransitionImages(images []ImageHandle, layout ImageLayout)
	// ClearColorImage and ClearDepthImage need the image in LayoutGeneral or LayoutTransferDst.
	ClearColorImage(image ImageHandle, color mgl32.Vec4)
	ClearDepthImage(image ImageHandle, depth float32)
	BlitImage(src, dst ImageHandle, srcExtent, dstExtent Extent2D)

	BeginRendering(info RenderingInfo)
	EndRendering()
	BindPipeline(pipeline PipelineHandle)
	BindDescriptorSets(pipeline PipelineHandle, firstSet uint32, sets []DescriptorSetHandle)
	PushConstants(pipeline PipelineHandle, stages ShaderStage, offset uint32, data []byte)
	SetViewportScissor(extent Extent2D)
	SetDepthBias(constant, slope float32)
	BindIndexBuffer(buffer BufferHandle, offset uint64)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(x, y, z uint32)
}

// Presenter owns the surface images. Acquire and Present return errors marked
// core.ErrSurfaceOutOfDate when the surface needs Rebuild.
type Presenter interface {
	Acquire(signal SemaphoreHandle) (uint32, error)
	Present(imageIndex uint32, wait SemaphoreHandle) error
	Image(imageIndex uint32) ImageHandle
	ImageCount() uint32
	Extent() Extent2D
	Format() Format
	Rebuild() error
	Destroy()
}

type DescriptorAllocator interface {
	Allocate(layout DescriptorSetLayoutHandle) (DescriptorSetHandle, error)
}
