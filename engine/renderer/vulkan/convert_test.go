package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRoundTrip(t *testing.T) {
	formats := []metadata.Format{
		metadata.FormatR8G8B8A8Unorm,
		metadata.FormatB8G8R8A8Unorm,
		metadata.FormatB8G8R8A8Srgb,
		metadata.FormatR16G16B16A16Sfloat,
		metadata.FormatR32G32B32A32Sfloat,
		metadata.FormatD32Sfloat,
	}
	for _, f := range formats {
		assert.Equal(t, f, metadataFormat(vulkanFormat(f)), f.String())
	}
	assert.Equal(t, vk.FormatUndefined, vulkanFormat(metadata.FormatUndefined))
	assert.Equal(t, metadata.FormatUndefined, metadataFormat(vk.FormatR8Unorm))
}

func TestLayoutMapping(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutUndefined, vulkanLayout(metadata.LayoutUndefined))
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, vulkanLayout(metadata.LayoutDepthAttachment))
	assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, vulkanLayout(metadata.LayoutDepthReadOnly))
	assert.Equal(t, vk.ImageLayoutPresentSrc, vulkanLayout(metadata.LayoutPresentSrc))
}

func TestAspectFollowsFormat(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), aspectFor(metadata.FormatD32Sfloat))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), aspectFor(metadata.FormatR16G16B16A16Sfloat))
}

func TestBitsShareVulkanValues(t *testing.T) {
	assert.EqualValues(t, vk.PipelineStageComputeShaderBit, metadata.StageComputeShader)
	assert.EqualValues(t, vk.PipelineStageAllCommandsBit, metadata.StageAllCommands)
	assert.EqualValues(t, vk.AccessShaderWriteBit, metadata.AccessShaderWrite)
	assert.EqualValues(t, vk.BufferUsageShaderDeviceAddressBit, metadata.BufferUsageDeviceAddress)
	assert.EqualValues(t, vk.ImageUsageDepthStencilAttachmentBit, metadata.ImageUsageDepthAttachment)
	assert.EqualValues(t, vk.ShaderStageComputeBit, metadata.ShaderStageCompute)
}

func TestResultErrorMarks(t *testing.T) {
	require.NoError(t, ResultError(vk.Success, "op"))
	require.NoError(t, ResultError(vk.Suboptimal, "op"))

	cases := map[vk.Result]error{
		vk.Timeout:                   core.ErrFenceTimeout,
		vk.ErrorOutOfDate:            core.ErrSurfaceOutOfDate,
		vk.ErrorSurfaceLost:          core.ErrSurfaceOutOfDate,
		vk.ErrorDeviceLost:           core.ErrDeviceLost,
		vk.ErrorOutOfDeviceMemory:    core.ErrAllocationFailed,
		vk.ErrorOutOfPoolMemory:      core.ErrAllocationFailed,
		vk.ErrorInitializationFailed: core.ErrUnknown,
	}
	for result, sentinel := range cases {
		err := ResultError(result, "vkOp")
		require.Error(t, err)
		assert.True(t, core.Is(err, sentinel), "%s should be marked %s", VulkanResultString(result), sentinel)
		assert.Contains(t, err.Error(), "vkOp")
	}
}

func TestRenderpassKeyDefaultsToLoad(t *testing.T) {
	colors := []metadata.Format{metadata.FormatR16G16B16A16Sfloat, metadata.FormatR8G8B8A8Unorm}
	pipelineKey := renderpassKeyFor(colors, metadata.FormatD32Sfloat, nil, metadata.LoadOpLoad)
	passKey := renderpassKeyFor(colors, metadata.FormatD32Sfloat,
		[]metadata.LoadOp{metadata.LoadOpLoad, metadata.LoadOpLoad}, metadata.LoadOpLoad)
	assert.Equal(t, pipelineKey, passKey)
	assert.True(t, passKey.hasDepth())

	clearKey := renderpassKeyFor(colors, metadata.FormatD32Sfloat,
		[]metadata.LoadOp{metadata.LoadOpClear, metadata.LoadOpLoad}, metadata.LoadOpClear)
	assert.NotEqual(t, pipelineKey, clearKey)

	colorOnly := renderpassKeyFor(colors[:1], metadata.FormatUndefined, nil, metadata.LoadOpLoad)
	assert.False(t, colorOnly.hasDepth())
	assert.Equal(t, 1, colorOnly.colorCount)
}

func TestCString(t *testing.T) {
	name := make([]byte, 16)
	copy(name, "VK_LAYER_X")
	assert.Equal(t, "VK_LAYER_X", CString(name))
	assert.Equal(t, "full", CString([]byte("full")))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
}
