package metadata_test

import (
	"testing"

	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirv(string) ([]byte, error) { return []byte{0x03, 0x02, 0x23, 0x07}, nil }

func TestShadersReleaseThroughOneCall(t *testing.T) {
	device := rendertest.NewDevice()

	module, err := metadata.LoadShaderModule(device, spirv, "lighting.comp", metadata.ShaderStageCompute)
	require.NoError(t, err)
	h, err := device.CreateComputePipeline(metadata.ComputePipelineCreateInfo{Name: "lighting", Compute: module.Handle})
	require.NoError(t, err)
	pipeline := &metadata.ShaderPipeline{Name: "lighting", Handle: h}
	assert.Equal(t, 2, device.Live())

	metadata.DestroyShaders(device, module, pipeline, nil)
	assert.Equal(t, 0, device.Live())
	assert.False(t, module.Handle.IsValid())
	assert.False(t, pipeline.Handle.IsValid())

	// a second release is a no-op
	module.Destroy(device)
	pipeline.Destroy(device)
	assert.Empty(t, device.Destroy())
}
