package renderer

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine/config"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/spaghettifunk/umbra/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeShaders(string) ([]byte, error) {
	return []byte{0x03, 0x02, 0x23, 0x07}, nil
}

type fixture struct {
	device    *rendertest.Device
	presenter *rendertest.Presenter
	scene     *scene.Scene
	renderer  *Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Shadows.Resolution = 64

	device := rendertest.NewDevice()
	presenter, err := rendertest.NewPresenter(device, 3, metadata.Extent2D{Width: 640, Height: 480})
	require.NoError(t, err)
	backend := &Backend{
		Device:    device,
		Presenter: presenter,
		Allocator: rendertest.NewAllocator(device),
	}
	s, err := scene.New(device, cfg)
	require.NoError(t, err)
	r, err := New(backend, cfg, s, Options{Shaders: fakeShaders})
	require.NoError(t, err)
	return &fixture{device: device, presenter: presenter, scene: s, renderer: r}
}

func (f *fixture) addCube(t *testing.T) {
	t.Helper()
	material, err := f.scene.DefaultMaterial(f.renderer.Allocator(), f.renderer.MaterialLayout())
	require.NoError(t, err)
	mesh, err := f.scene.UploadCube("cube", 1, mgl32.Vec4{1, 1, 1, 1}, material)
	require.NoError(t, err)
	inst, err := f.scene.AddInstance("cube", mesh, 4)
	require.NoError(t, err)
	inst.Transforms = append(inst.Transforms, umath.TransformFromPosition(mgl32.Vec3{0, 0, -5}))
}

func TestDrawFrameBlitsToSurface(t *testing.T) {
	f := newFixture(t)
	f.addCube(t)
	f.scene.Directional = []metadata.DirectionalLight{{Color: mgl32.Vec3{1, 1, 1}, Strength: 1, Direction: mgl32.Vec3{0, -1, 0}}}
	f.device.ResetCounters()

	require.NoError(t, f.renderer.DrawFrame())

	ops := f.device.Ops()
	assert.Contains(t, ops, "blit")
	assert.Equal(t, "present", ops[len(ops)-1])
	assert.Equal(t, metadata.LayoutPresentSrc, f.device.Image(f.presenter.Image(0)).Layout)
	assert.Equal(t, metadata.LayoutTransferSrc, f.device.Image(f.renderer.DrawImage()).Layout)

	stats := f.renderer.Stats()
	assert.Equal(t, uint32(1), stats.GeometryDraws)
	assert.Equal(t, uint32(1), stats.ShadowDraws)
	assert.Equal(t, [3]uint32{40, 30, 1}, stats.Dispatch)
	assert.Equal(t, uint64(1), f.renderer.FrameNumber())
	assert.Empty(t, f.device.Violations)
	assert.Empty(t, f.device.Hazards)
}

func TestSkyRunsBeforeBlit(t *testing.T) {
	f := newFixture(t)

	var order []string
	f.renderer.SetSky(func(cmd metadata.CommandBuffer, output metadata.ImageHandle, extent metadata.Extent2D) {
		order = append(order, "sky")
		assert.Equal(t, metadata.LayoutGeneral, f.device.Image(output).Layout)
		assert.Equal(t, metadata.Extent2D{Width: 640, Height: 480}, extent)
	})
	require.NoError(t, f.renderer.DrawFrame())
	require.NoError(t, f.renderer.DrawFrame())
	assert.Equal(t, []string{"sky", "sky"}, order)
	assert.Empty(t, f.device.Violations)
}

func TestResizeRecreatesDrawImage(t *testing.T) {
	f := newFixture(t)
	f.addCube(t)
	old := f.renderer.DrawImage()

	f.presenter.OutOfDateAcquires = 1
	f.presenter.RebuildExtent = metadata.Extent2D{Width: 1920, Height: 1080}
	require.NoError(t, f.renderer.DrawFrame())

	assert.Equal(t, metadata.Extent2D{Width: 1920, Height: 1080}, f.renderer.Extent())
	assert.NotEqual(t, old, f.renderer.DrawImage())
	assert.Nil(t, f.device.Image(old))
	assert.Equal(t, metadata.Extent2D{Width: 1920, Height: 1080}, f.device.ImageExtent(f.renderer.DrawImage()))

	require.NoError(t, f.renderer.DrawFrame())
	assert.Equal(t, [3]uint32{120, 68, 1}, f.renderer.Stats().Dispatch)
	assert.Empty(t, f.device.Violations)
}

func TestMinimizedWindowSkipsFrames(t *testing.T) {
	f := newFixture(t)
	f.presenter.OutOfDateAcquires = 1
	f.presenter.MinimizedRebuilds = 1

	require.NoError(t, f.renderer.DrawFrame())
	assert.True(t, f.renderer.Suspended())
	require.NoError(t, f.renderer.DrawFrame())
	assert.False(t, f.renderer.Suspended())
	require.NoError(t, f.renderer.DrawFrame())
	assert.Equal(t, 1, f.device.Submits)
}

func TestShadowBiasPassesThrough(t *testing.T) {
	f := newFixture(t)
	b := shadow.Bias{Constant: 0.01, Slope: 0.5}
	f.renderer.SetShadowBias(b)
	assert.Equal(t, b, f.renderer.ShadowBias())
}

func TestDestroyLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	f.addCube(t)
	require.NoError(t, f.renderer.DrawFrame())

	f.scene.Destroy()
	leaked := f.renderer.Destroy()
	assert.Empty(t, leaked)
	assert.Equal(t, 0, f.device.Live())
	assert.Nil(t, f.renderer.Destroy())
}

func TestFailedConstructionLeavesBackendToCaller(t *testing.T) {
	cfg := config.Default()
	device := rendertest.NewDevice()
	presenter, err := rendertest.NewPresenter(device, 2, metadata.Extent2D{Width: 64, Height: 64})
	require.NoError(t, err)
	device.Fail = func(kind, name string) bool { return kind == "pipeline" && name == "lighting" }

	backend := &Backend{Device: device, Presenter: presenter, Allocator: rendertest.NewAllocator(device)}
	s, err := scene.New(device, cfg)
	require.NoError(t, err)

	_, err = New(backend, cfg, s, Options{Shaders: fakeShaders})
	require.Error(t, err)
	// the scene and the backend are untouched
	require.NotNil(t, backend.Device)
	assert.NotNil(t, device.Buffer(s.CameraBuffer()))

	s.Destroy()
	assert.Empty(t, backend.Destroy())
	assert.Equal(t, 0, device.Live())
	assert.Empty(t, device.Violations)
}
