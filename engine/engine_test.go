package engine

import (
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer"
	"github.com/spaghettifunk/umbra/engine/renderer/deferred"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/rendertest"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	frames int
	pumps  int
	closed bool
}

func (w *fakeWindow) PumpMessages() bool {
	w.pumps++
	return w.pumps <= w.frames
}

func (w *fakeWindow) FramebufferSize() metadata.Extent2D {
	return metadata.Extent2D{Width: 320, Height: 240}
}

func (w *fakeWindow) Shutdown() error {
	w.closed = true
	return nil
}

func fakeShaders(string) ([]byte, error) {
	return []byte{0x03, 0x02, 0x23, 0x07}, nil
}

type harness struct {
	device *rendertest.Device
	window *fakeWindow
	engine *Engine
}

func newHarness(t *testing.T, g *Game, frames int) (*harness, error) {
	t.Helper()
	cfg := config.Default()
	cfg.Shadows.Resolution = 64

	device := rendertest.NewDevice()
	presenter, err := rendertest.NewPresenter(device, 2, metadata.Extent2D{Width: 320, Height: 240})
	require.NoError(t, err)
	backend := &renderer.Backend{
		Device:    device,
		Presenter: presenter,
		Allocator: rendertest.NewAllocator(device),
	}
	events := core.NewEventBus()
	window := &fakeWindow{frames: frames}
	e, err := build(g, cfg, events, core.NewInput(events), window, backend, renderer.Options{Shaders: fakeShaders})
	return &harness{device: device, window: window, engine: e}, err
}

func TestRunUntilWindowCloses(t *testing.T) {
	updates := 0
	h, err := newHarness(t, &Game{
		FnUpdate: func(float64) error { updates++; return nil },
	}, 3)
	require.NoError(t, err)

	require.NoError(t, h.engine.Run())
	assert.Equal(t, 3, updates)
	assert.Equal(t, 3, h.device.Submits)
	assert.True(t, h.window.closed)
	assert.Equal(t, EngineStageShutdown, h.engine.Stage())
	assert.Equal(t, 0, h.device.Live())
	assert.NoError(t, h.engine.Shutdown())
}

func TestEscapeQuits(t *testing.T) {
	var e *Engine
	updates := 0
	h, err := newHarness(t, &Game{
		FnInitialize: func(engine *Engine) error { e = engine; return nil },
		FnUpdate: func(float64) error {
			updates++
			e.Input().ProcessKey(core.KEY_ESCAPE, true)
			return nil
		},
	}, 100)
	require.NoError(t, err)

	require.NoError(t, h.engine.Run())
	assert.Equal(t, 1, updates)
	assert.True(t, h.window.closed)
}

func TestQuitBeforeRun(t *testing.T) {
	h, err := newHarness(t, &Game{
		FnUpdate: func(float64) error { return core.Newf("should not run") },
	}, 100)
	require.NoError(t, err)

	h.engine.Quit()
	h.engine.Quit()
	require.NoError(t, h.engine.Run())
	assert.Equal(t, 0, h.device.Submits)
}

func TestUpdateErrorStopsTheLoop(t *testing.T) {
	h, err := newHarness(t, &Game{
		FnUpdate: func(float64) error { return core.Newf("boom") },
	}, 100)
	require.NoError(t, err)

	err = h.engine.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 0, h.device.Live())
	assert.True(t, h.window.closed)
}

func TestInitializeErrorReleasesEverything(t *testing.T) {
	h, err := newHarness(t, &Game{
		FnInitialize: func(*Engine) error { return core.Newf("no assets") },
	}, 1)
	require.Error(t, err)
	assert.Nil(t, h.engine)
	assert.Equal(t, 0, h.device.Live())
}

func TestRendererFailureReleasesSceneBeforeDevice(t *testing.T) {
	cfg := config.Default()
	cfg.Shadows.Resolution = 64
	device := rendertest.NewDevice()
	presenter, err := rendertest.NewPresenter(device, 2, metadata.Extent2D{Width: 320, Height: 240})
	require.NoError(t, err)
	device.Fail = func(kind, name string) bool { return kind == "pipeline" && name == "lighting" }
	backend := &renderer.Backend{Device: device, Presenter: presenter, Allocator: rendertest.NewAllocator(device)}

	events := core.NewEventBus()
	e, err := build(&Game{}, cfg, events, core.NewInput(events), &fakeWindow{}, backend, renderer.Options{Shaders: fakeShaders})
	require.Error(t, err)
	assert.Nil(t, e)
	assert.Empty(t, device.Leaked)
	assert.Equal(t, 0, device.Live())
	assert.Empty(t, device.Violations)
}

func TestResizeEventUpdatesCamera(t *testing.T) {
	var sizes [][2]uint32
	h, err := newHarness(t, &Game{
		FnOnResize: func(w, h uint32) error { sizes = append(sizes, [2]uint32{w, h}); return nil },
	}, 0)
	require.NoError(t, err)
	defer h.engine.Shutdown()

	var ctx core.EventContext
	ctx.Data.U32[0], ctx.Data.U32[1] = 1000, 500
	h.engine.Events().Fire(core.EVENT_CODE_RESIZED, nil, ctx)
	assert.Equal(t, float32(2), h.engine.Scene().Camera.Aspect)

	// minimized windows do not reach the game
	ctx.Data.U32[0], ctx.Data.U32[1] = 0, 0
	h.engine.Events().Fire(core.EVENT_CODE_RESIZED, nil, ctx)

	assert.Equal(t, [][2]uint32{{320, 240}, {1000, 500}}, sizes)
}

func TestConfigReloadAppliesShadowBias(t *testing.T) {
	h, err := newHarness(t, &Game{}, 0)
	require.NoError(t, err)
	defer h.engine.Shutdown()

	reloaded := false
	h.engine.Events().Register(core.EVENT_CODE_CONFIG_RELOADED, t, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		reloaded = true
		return true
	})

	cfg := config.Default()
	cfg.Shadows.BiasConstant = 0.01
	cfg.Shadows.BiasSlope = 0.2
	cfg.Window.Width = 4096
	h.engine.applyConfig(cfg)

	assert.True(t, reloaded)
	assert.Equal(t, shadow.Bias{Constant: 0.01, Slope: 0.2}, h.engine.Renderer().ShadowBias())
	assert.Equal(t, float32(0.01), h.engine.Config().Shadows.BiasConstant)
	assert.Equal(t, uint32(1280), h.engine.Config().Window.Width)
}

func TestRunTwiceFails(t *testing.T) {
	h, err := newHarness(t, &Game{}, 1)
	require.NoError(t, err)
	require.NoError(t, h.engine.Run())
	assert.Error(t, h.engine.Run())
}

func TestShippedFilesMatchTheEngine(t *testing.T) {
	cfg, err := config.Load("../umbra.toml")
	require.NoError(t, err)
	assert.Equal(t, "shaders", cfg.Shaders.Dir)

	reflection, err := config.LoadReflection(filepath.Join("..", cfg.Shaders.Dir, ReflectionFile))
	require.NoError(t, err)
	sizes := map[string]int{
		deferred.GeometryVertexShader: len(metadata.ValueBytes(&deferred.GeometryPushConstants{})),
		deferred.LightingShader:       len(metadata.ValueBytes(&deferred.LightingPushConstants{})),
		shadow.VertexShader:           len(metadata.ValueBytes(&shadow.PushConstants{})),
	}
	for file, size := range sizes {
		require.Contains(t, reflection, file)
		assert.Equal(t, uint32(size), reflection[file].PushConstantSize, file)
	}
}
