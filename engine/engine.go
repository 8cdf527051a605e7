package engine

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/platform"
	"github.com/spaghettifunk/umbra/engine/renderer"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/shadow"
	"github.com/spaghettifunk/umbra/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Everything has been released
	EngineStageShutdown
)

// Window is the part of the platform layer the run loop talks to.
type Window interface {
	// PumpMessages processes window events and returns false once the window should close.
	PumpMessages() bool
	FramebufferSize() metadata.Extent2D
	Shutdown() error
}

// ReflectionFile is looked up in the shader directory.
const ReflectionFile = "reflection.toml"

// How often, in seconds, frame metrics are logged.
const statsInterval = 1.0

type Engine struct {
	session      string
	currentStage Stage
	gameInstance *Game
	cfg          *config.Config

	events   *core.EventBus
	input    *core.Input
	window   Window
	renderer *renderer.Renderer
	scene    *scene.Scene
	watcher  *config.Watcher

	clock      *core.Clock
	metrics    *core.Metrics
	lastTime   float64
	lastReport float64

	isRunning bool
	quit      chan struct{}
	quitOnce  sync.Once
}

// New opens the window and the Vulkan device described by cfg and builds the scene and
// renderer on top of them.
func New(g *Game, cfg *config.Config) (*Engine, error) {
	if err := core.SetLogLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	events := core.NewEventBus()
	input := core.NewInput(events)
	p := platform.New(events, input)
	if err := p.Startup(cfg.Window); err != nil {
		return nil, err
	}

	backend, err := renderer.NewVulkanBackend(p, cfg)
	if err != nil {
		core.LogError(err.Error())
		_ = p.Shutdown()
		return nil, err
	}

	e, err := build(g, cfg, events, input, p, backend, rendererOptions(cfg))
	if err != nil {
		_ = p.Shutdown()
		return nil, err
	}
	return e, nil
}

// rendererOptions reads SPIR-V from the shader directory. A missing reflection file only
// disables the push constant size checks.
func rendererOptions(cfg *config.Config) renderer.Options {
	opts := renderer.Options{Shaders: metadata.DirShaderSource(cfg.Shaders.Dir)}
	reflection, err := config.LoadReflection(filepath.Join(cfg.Shaders.Dir, ReflectionFile))
	if err != nil {
		core.LogWarn("push constant sizes will not be checked: %s", err)
		return opts
	}
	opts.Reflection = reflection
	return opts
}

// build wires the engine around an already open window and backend. The backend is
// released if anything fails; the window is left to the caller.
func build(g *Game, cfg *config.Config, events *core.EventBus, input *core.Input, window Window, backend *renderer.Backend, opts renderer.Options) (*Engine, error) {
	s, err := scene.New(backend.Device, cfg)
	if err != nil {
		releaseBackend(backend)
		return nil, err
	}
	r, err := renderer.New(backend, cfg, s, opts)
	if err != nil {
		// scene buffers live on the device and must go before it
		s.Destroy()
		releaseBackend(backend)
		return nil, err
	}
	s.Camera.SetViewport(r.Extent())

	e := &Engine{
		session:      uuid.NewString(),
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		cfg:          cfg,
		events:       events,
		input:        input,
		window:       window,
		renderer:     r,
		scene:        s,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		quit:         make(chan struct{}),
	}

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if g.FnInitialize != nil {
		if err := g.FnInitialize(e); err != nil {
			err = core.Wrap(err, "game initialization failed")
			core.LogError(err.Error())
			e.release()
			return nil, err
		}
	}
	if g.FnOnResize != nil {
		extent := r.Extent()
		if err := g.FnOnResize(extent.Width, extent.Height); err != nil {
			core.LogWarn("game resize callback failed: %s", err)
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("Engine initialized, session %s.", e.session)
	return e, nil
}

// WatchConfig reloads path whenever it changes on disk. Shadow bias and log level are
// applied between frames; everything else needs a restart.
func (e *Engine) WatchConfig(path string) error {
	w, err := config.NewWatcher(path)
	if err != nil {
		return err
	}
	if e.watcher != nil {
		_ = e.watcher.Close()
	}
	e.watcher = w
	core.LogInfo("Watching %s for changes.", path)
	return nil
}

// Run drives frames until the window closes, Quit is called or a frame fails. The engine
// is shut down before Run returns.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.Newf("engine cannot run from stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning = true

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()
	e.lastReport = e.lastTime

	var runErr error
	for e.isRunning {
		select {
		case <-e.quit:
			e.isRunning = false
			continue
		default:
		}

		if !e.window.PumpMessages() {
			e.isRunning = false
			break
		}
		e.applyConfigUpdates()

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				runErr = core.Wrap(err, "game update failed")
				core.LogError("%s, shutting down.", runErr)
				break
			}
		}

		if err := e.renderer.DrawFrame(); err != nil {
			runErr = core.Wrap(err, "frame failed")
			core.LogError("%s, shutting down.", runErr)
			break
		}

		// input is the last thing updated so that Was* reflects this frame
		e.input.Update()
		e.metrics.Update(delta)
		if currentTime-e.lastReport >= statsInterval {
			e.logStats()
			e.lastReport = currentTime
		}
		e.lastTime = currentTime
	}

	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Quit asks the run loop to stop after the current frame. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.quitOnce.Do(func() { close(e.quit) })
}

func (e *Engine) logStats() {
	fps, frameTime := e.metrics.Frame()
	stats := e.renderer.Stats()
	core.LogDebug("frame %d: %.1f fps (%.2f ms), %d draws, %d shadow draws, %d/%d lights, dispatch %v",
		e.renderer.FrameNumber(), fps, frameTime,
		stats.GeometryDraws, stats.ShadowDraws, stats.Directional, stats.Spot, stats.Dispatch)
	if stats.SkippedSurfaces > 0 {
		core.LogWarn("%d surfaces have no material and were not drawn", stats.SkippedSurfaces)
	}
	if e.renderer.Suspended() {
		core.LogDebug("surface has no area, frames are skipped")
	}
}

func (e *Engine) applyConfigUpdates() {
	if e.watcher == nil {
		return
	}
	select {
	case cfg := <-e.watcher.Updates():
		e.applyConfig(cfg)
	case err := <-e.watcher.Errors():
		core.LogWarn("config reload failed, keeping the previous values: %s", err)
	default:
	}
}

func (e *Engine) applyConfig(cfg *config.Config) {
	if cfg.Log.Level != e.cfg.Log.Level {
		if err := core.SetLogLevel(cfg.Log.Level); err != nil {
			core.LogWarn("%s", err)
		} else {
			e.cfg.Log.Level = cfg.Log.Level
		}
	}
	e.cfg.Shadows.BiasConstant = cfg.Shadows.BiasConstant
	e.cfg.Shadows.BiasSlope = cfg.Shadows.BiasSlope
	e.renderer.SetShadowBias(shadow.Bias{Constant: cfg.Shadows.BiasConstant, Slope: cfg.Shadows.BiasSlope})

	core.LogInfo("Configuration reloaded.")
	e.events.Fire(core.EVENT_CODE_CONFIG_RELOADED, e, core.EventContext{})
}

// Shutdown releases the game, scene, renderer and window in that order. Calling it again
// is a no-op.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogWarn("game shutdown: %s", err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("config watcher close: %s", err)
		}
		e.watcher = nil
	}

	err := e.release()
	if werr := e.window.Shutdown(); werr != nil && err == nil {
		err = werr
	}
	e.events.Shutdown()
	e.currentStage = EngineStageShutdown
	core.LogInfo("Engine shut down.")
	return err
}

func releaseBackend(backend *renderer.Backend) {
	for _, name := range backend.Destroy() {
		core.LogWarn("device resource leaked: %s", name)
	}
}

// release destroys the scene and the renderer and reports leaked device resources.
func (e *Engine) release() error {
	if err := e.renderer.WaitIdle(); err != nil {
		core.LogWarn("wait idle before shutdown: %s", err)
	}
	e.scene.Destroy()
	leaked := e.renderer.Destroy()
	for _, name := range leaked {
		core.LogWarn("device resource leaked: %s", name)
	}
	if len(leaked) > 0 {
		return core.Newf("%d device resources were not released", len(leaked))
	}
	return nil
}

func (e *Engine) Scene() *scene.Scene { return e.scene }

func (e *Engine) Renderer() *renderer.Renderer { return e.renderer }

func (e *Engine) Input() *core.Input { return e.input }

func (e *Engine) Events() *core.EventBus { return e.events }

func (e *Engine) Metrics() *core.Metrics { return e.metrics }

func (e *Engine) Config() *config.Config { return e.cfg }

func (e *Engine) Stage() Stage { return e.currentStage }

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if core.KeyCode(data.Data.U16[0]) == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		// Block anything else from processing this.
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, frames are skipped until it is restored.")
		return false
	}
	e.scene.Camera.SetViewport(metadata.Extent2D{Width: width, Height: height})
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogWarn("game resize callback failed: %s", err)
		}
	}
	return false
}
