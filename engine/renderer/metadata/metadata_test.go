package metadata

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLayouts(t *testing.T) {
	assert.Equal(t, uintptr(208), unsafe.Sizeof(CameraData{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(AtmosphereData{}))
	assert.Equal(t, uintptr(32), unsafe.Sizeof(DirectionalLightRecord{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(SpotLightRecord{}))
	assert.Equal(t, uintptr(48), unsafe.Sizeof(MaterialParams{}))
}

func TestPackNormalizesDirection(t *testing.T) {
	r := DirectionalLight{Direction: mgl32.Vec3{0, -2, 0}, Strength: 3}.Pack()
	assert.InDelta(t, -1, r.Direction.Y(), 1e-6)
	assert.Equal(t, float32(3), r.Strength)
}

func TestRenderables(t *testing.T) {
	mesh := &Mesh{Vertices: BufferHandle(1), VertexAddress: 64, Indices: BufferHandle(2)}
	instances := []*RenderInstance{
		{Mesh: mesh, ModelsBuffer: BufferHandle(3), ModelsAddress: 128, TransformCount: 1},
		{Mesh: nil, ModelsBuffer: BufferHandle(3), ModelsAddress: 128, TransformCount: 1},
		{Mesh: mesh, TransformCount: 1},
		{Mesh: mesh, ModelsBuffer: BufferHandle(3), ModelsAddress: 128, TransformCount: 0},
	}
	assert.Equal(t, []bool{true, false, false, false}, Renderables(instances))
}

func TestValidatePushConstants(t *testing.T) {
	var buf bytes.Buffer
	core.SetLogOutput(&buf)
	defer core.SetLogOutput(os.Stderr)

	reflection := config.Reflection{"shadow.vert": {PushConstantSize: 80, Stage: "vertex"}}

	assert.True(t, ValidatePushConstants(reflection, "shadow.vert", 80))
	assert.False(t, ValidatePushConstants(reflection, "shadow.vert", 64))
	assert.Contains(t, buf.String(), "mismatch")
	assert.False(t, ValidatePushConstants(reflection, "huge.vert", 256))
	assert.True(t, ValidatePushConstants(reflection, "unknown.vert", 16))
}

func TestGetAligned(t *testing.T) {
	assert.Equal(t, uint64(256), GetAligned(129, 128))
	assert.Equal(t, uint64(128), GetAligned(128, 128))
	assert.Equal(t, uint64(0), GetAligned(0, 256))
}

func TestAsBytes(t *testing.T) {
	assert.Nil(t, AsBytes([]uint32{}))
	assert.Len(t, AsBytes([]uint32{1, 2, 3}), 12)
	v := mgl32.Vec4{1, 2, 3, 4}
	assert.Len(t, ValueBytes(&v), 16)
}

func TestDirShaderSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shadow.vert.spv"), []byte{3, 2, 35, 7}, 0o644))

	code, err := DirShaderSource(dir)("shadow.vert")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 35, 7}, code)

	_, err = DirShaderSource(dir)("missing.frag")
	assert.Error(t, err)
}
