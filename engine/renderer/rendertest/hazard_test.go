package rendertest_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	device   *rendertest.Device
	image    metadata.ImageHandle
	pipeline metadata.PipelineHandle
	set      metadata.DescriptorSetHandle
}

func newStoreFixture(t *testing.T) *storeFixture {
	device := rendertest.NewDevice()
	image, err := device.CreateImage(metadata.ImageCreateInfo{
		Name:   "output",
		Format: metadata.FormatR16G16B16A16Sfloat,
		Extent: metadata.Extent2D{Width: 8, Height: 8},
		Usage:  metadata.ImageUsageStorage | metadata.ImageUsageTransferDst,
	})
	require.NoError(t, err)
	layout, err := device.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutCreateInfo{
		Name: "store",
		Bindings: []metadata.DescriptorBinding{
			{Binding: 0, Type: metadata.DescriptorTypeStorageImage, Count: 1, Stages: metadata.ShaderStageCompute},
		},
	})
	require.NoError(t, err)
	set, err := rendertest.NewAllocator(device).Allocate(layout)
	require.NoError(t, err)
	device.UpdateDescriptorSet(set, []metadata.DescriptorWrite{{
		Binding: 0,
		Type:    metadata.DescriptorTypeStorageImage,
		Images:  []metadata.DescriptorImageInfo{{Image: image, Layout: metadata.LayoutGeneral}},
	}})
	pipeline, err := device.CreateComputePipeline(metadata.ComputePipelineCreateInfo{
		Name:       "store",
		SetLayouts: []metadata.DescriptorSetLayoutHandle{layout},
	})
	require.NoError(t, err)
	return &storeFixture{device: device, image: image, pipeline: pipeline, set: set}
}

func (f *storeFixture) clearAndStore(t *testing.T, between func(cmd metadata.CommandBuffer)) {
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		cmd.TransitionImages([]metadata.ImageHandle{f.image}, metadata.LayoutGeneral)
		cmd.ClearColorImage(f.image, mgl32.Vec4{})
		between(cmd)
		cmd.BindPipeline(f.pipeline)
		cmd.BindDescriptorSets(f.pipeline, 0, []metadata.DescriptorSetHandle{f.set})
		cmd.Dispatch(1, 1, 1)
	}))
	require.Empty(t, f.device.Violations)
}

func TestStoreAfterClearWithoutBarrier(t *testing.T) {
	f := newStoreFixture(t)
	f.clearAndStore(t, func(metadata.CommandBuffer) {})

	require.Len(t, f.device.Hazards, 1)
	assert.Contains(t, f.device.Hazards[0], "write-after-write")
	assert.Contains(t, f.device.Hazards[0], "output")
	assert.Contains(t, f.device.Hazards[0], "clear-color")
}

func TestTransitionOrdersClearBeforeStore(t *testing.T) {
	f := newStoreFixture(t)
	f.clearAndStore(t, func(cmd metadata.CommandBuffer) {
		cmd.TransitionImages([]metadata.ImageHandle{f.image}, metadata.LayoutGeneral)
	})
	assert.Empty(t, f.device.Hazards)
}

func TestTransferBarrierOrdersClearBeforeStore(t *testing.T) {
	f := newStoreFixture(t)
	f.clearAndStore(t, func(cmd metadata.CommandBuffer) {
		cmd.MemoryBarrier(metadata.StageTransfer, metadata.AccessTransferWrite, metadata.StageComputeShader, metadata.AccessShaderWrite)
	})
	assert.Empty(t, f.device.Hazards)
}

func TestUnrelatedBarrierLeavesClearPending(t *testing.T) {
	f := newStoreFixture(t)
	f.clearAndStore(t, func(cmd metadata.CommandBuffer) {
		cmd.MemoryBarrier(metadata.StageColorAttachmentOutput, metadata.AccessColorAttachmentWrite, metadata.StageComputeShader, metadata.AccessShaderRead)
	})
	assert.Len(t, f.device.Hazards, 1)
}

type drawFixture struct {
	device   *rendertest.Device
	host     metadata.BufferHandle
	vertices metadata.BufferHandle
	indices  metadata.BufferHandle
	target   metadata.ImageHandle
	pipeline metadata.PipelineHandle
}

func newDrawFixture(t *testing.T) *drawFixture {
	device := rendertest.NewDevice()
	create := func(name string, usage metadata.BufferUsage) metadata.BufferHandle {
		h, err := device.CreateBuffer(metadata.BufferCreateInfo{Name: name, Size: 64, Usage: usage})
		require.NoError(t, err)
		return h
	}
	f := &drawFixture{
		device:   device,
		host:     create("host", metadata.BufferUsageTransferSrc),
		vertices: create("vertices", metadata.BufferUsageStorage|metadata.BufferUsageTransferDst|metadata.BufferUsageDeviceAddress),
		indices:  create("indices", metadata.BufferUsageIndex),
	}
	var err error
	f.target, err = device.CreateImage(metadata.ImageCreateInfo{
		Name:   "color",
		Format: metadata.FormatR16G16B16A16Sfloat,
		Extent: metadata.Extent2D{Width: 8, Height: 8},
		Usage:  metadata.ImageUsageColorAttachment,
	})
	require.NoError(t, err)
	f.pipeline, err = device.CreateGraphicsPipeline(metadata.GraphicsPipelineCreateInfo{Name: "mesh"})
	require.NoError(t, err)
	return f
}

func (f *drawFixture) copyAndDraw(t *testing.T, between func(cmd metadata.CommandBuffer)) {
	address := f.device.BufferAddress(f.vertices)
	require.NotZero(t, address)
	extent := metadata.Extent2D{Width: 8, Height: 8}
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		cmd.CopyBuffer(f.host, f.vertices, []metadata.BufferCopy{{Size: 64}})
		between(cmd)
		cmd.TransitionImages([]metadata.ImageHandle{f.target}, metadata.LayoutColorAttachment)
		cmd.BeginRendering(metadata.RenderingInfo{
			Name:   "mesh",
			Extent: extent,
			Color:  []metadata.ColorAttachment{{Image: f.target, LoadOp: metadata.LoadOpClear}},
		})
		cmd.BindPipeline(f.pipeline)
		cmd.PushConstants(f.pipeline, metadata.ShaderStageVertex, 0, metadata.ValueBytes(&address))
		cmd.BindIndexBuffer(f.indices, 0)
		cmd.DrawIndexed(3, 1, 0, 0, 0)
		cmd.DrawIndexed(3, 1, 3, 0, 0)
		cmd.EndRendering()
	}))
	require.Empty(t, f.device.Violations)
}

func TestDrawReadsCopyThroughAddress(t *testing.T) {
	f := newDrawFixture(t)
	f.copyAndDraw(t, func(metadata.CommandBuffer) {})

	require.Len(t, f.device.Hazards, 2)
	for _, h := range f.device.Hazards {
		assert.Contains(t, h, "read-after-write")
		assert.Contains(t, h, "vertices")
	}
}

func TestCopyBarrierOrdersDraw(t *testing.T) {
	f := newDrawFixture(t)
	f.copyAndDraw(t, func(cmd metadata.CommandBuffer) {
		cmd.MemoryBarrier(metadata.StageTransfer, metadata.AccessTransferWrite, metadata.StageVertexShader, metadata.AccessShaderRead)
	})
	assert.Empty(t, f.device.Hazards)
}

func TestSubmitRetiresPendingWrites(t *testing.T) {
	f := newDrawFixture(t)
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		cmd.CopyBuffer(f.host, f.vertices, []metadata.BufferCopy{{Size: 64}})
	}))
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		cmd.CopyBuffer(f.host, f.vertices, []metadata.BufferCopy{{Size: 64}})
	}))
	assert.Empty(t, f.device.Hazards)

	f.device.ResetCounters()
	require.NoError(t, f.device.ImmediateSubmit(func(cmd metadata.CommandBuffer) {
		cmd.CopyBuffer(f.host, f.vertices, []metadata.BufferCopy{{Size: 64}})
		cmd.CopyBuffer(f.host, f.vertices, []metadata.BufferCopy{{Size: 64}})
	}))
	require.Len(t, f.device.Hazards, 1)
	assert.Contains(t, f.device.Hazards[0], "write-after-write")
}
