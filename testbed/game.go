package testbed

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/umbra/engine"
	"github.com/spaghettifunk/umbra/engine/core"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/scene"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine *engine.Engine
	scene  *scene.Scene

	// three cubes, each parented to the previous one
	cubes  []*umath.Transform
	width  uint32
	height uint32
}

const (
	moveSpeed float32 = 10.0
	turnSpeed float32 = 1.0
)

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.state()
	state.engine = e
	state.scene = e.Scene()

	s := state.scene
	r := e.Renderer()
	s.Camera.SetPosition(mgl32.Vec3{10.5, 5.0, 9.5})
	s.Camera.Yaw(mgl32.DegToRad(45))
	s.Camera.Pitch(mgl32.DegToRad(-15))

	material, err := s.DefaultMaterial(r.Allocator(), r.MaterialLayout())
	if err != nil {
		return err
	}
	stone, err := s.CreateMaterial("stone", metadata.MaterialParams{
		BaseColor: mgl32.Vec4{0.55, 0.5, 0.45, 1},
		Specular:  mgl32.Vec4{0.04, 0.04, 0.04, 1},
		Occlusion: 1,
		Roughness: 0.8,
	}, r.Allocator(), r.MaterialLayout())
	if err != nil {
		return err
	}

	floor, err := s.UploadPlane("floor", 60, 60, mgl32.Vec4{1, 1, 1, 1}, stone)
	if err != nil {
		return err
	}
	floorInstance, err := s.AddInstance("floor", floor, 1)
	if err != nil {
		return err
	}
	floorInstance.Transforms = append(floorInstance.Transforms, umath.TransformFromPosition(mgl32.Vec3{0, -5, 0}))

	cube, err := s.UploadCube("test_cube", 1, mgl32.Vec4{1, 1, 1, 1}, material)
	if err != nil {
		return err
	}
	cubes, err := s.AddInstance("cubes", cube, 3)
	if err != nil {
		return err
	}

	// A cube, a second one parented to it, and a third one parented to the second.
	first := umath.TransformFromPositionRotationScale(mgl32.Vec3{}, mgl32.QuatIdent(), mgl32.Vec3{10, 10, 10})
	second := umath.TransformFromPositionRotationScale(mgl32.Vec3{1, 0, 0.1}, mgl32.QuatIdent(), mgl32.Vec3{0.5, 0.5, 0.5})
	second.Parent = first
	third := umath.TransformFromPositionRotationScale(mgl32.Vec3{1, 0, 0.1}, mgl32.QuatIdent(), mgl32.Vec3{0.4, 0.4, 0.4})
	third.Parent = second
	state.cubes = []*umath.Transform{first, second, third}
	cubes.Transforms = append(cubes.Transforms, state.cubes...)

	s.Directional = []metadata.DirectionalLight{{
		Color:     mgl32.Vec3{1, 0.95, 0.85},
		Strength:  2,
		Direction: s.Atmosphere.SunDirection,
	}}
	s.Spot = []metadata.SpotLight{
		{
			Color:          mgl32.Vec3{1, 0.3, 0.2},
			Strength:       40,
			Position:       mgl32.Vec3{-12, 8, 6},
			Direction:      mgl32.Vec3{1, -1, -0.5},
			FalloffRadians: mgl32.DegToRad(25),
			Range:          40,
		},
		{
			Color:          mgl32.Vec3{0.2, 0.4, 1},
			Strength:       40,
			Position:       mgl32.Vec3{12, 8, -6},
			Direction:      mgl32.Vec3{-1, -1, 0.5},
			FalloffRadians: mgl32.DegToRad(30),
			Range:          40,
		},
	}

	e.Events().Register(core.EVENT_CODE_KEY_PRESSED, g, g.onKey)
	e.Events().Register(core.EVENT_CODE_CONFIG_RELOADED, g, g.onConfigReloaded)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	input := state.engine.Input()
	camera := state.scene.Camera
	dt := float32(deltaTime)

	if input.IsKeyDown(core.KEY_A) || input.IsKeyDown(core.KEY_LEFT) {
		camera.Yaw(turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_D) || input.IsKeyDown(core.KEY_RIGHT) {
		camera.Yaw(-turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_UP) {
		camera.Pitch(turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_DOWN) {
		camera.Pitch(-turnSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_W) {
		camera.MoveForward(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_S) {
		camera.MoveBackward(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_Q) {
		camera.MoveLeft(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_E) {
		camera.MoveRight(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_SPACE) {
		camera.MoveUp(moveSpeed * dt)
	}
	if input.IsKeyDown(core.KEY_X) {
		camera.MoveDown(moveSpeed * dt)
	}

	if input.IsKeyUp(core.KEY_P) && input.WasKeyDown(core.KEY_P) {
		pos := camera.Position()
		core.LogDebug("Pos:[%.2f, %.2f, %.2f]", pos.X(), pos.Y(), pos.Z())
	}

	// Perform a small rotation on every cube.
	rotation := mgl32.QuatRotate(0.5*dt, mgl32.Vec3{0, 1, 0})
	for _, t := range state.cubes {
		t.Rotate(rotation)
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	return nil
}

func (g *TestGame) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch core.KeyCode(data.Data.U16[0]) {
	case core.KEY_R:
		g.state().scene.Camera.Reset()
		return true
	case core.KEY_L:
		// toggle the spot lights
		s := g.state().scene
		for i := range s.Spot {
			if s.Spot[i].Strength > 0 {
				s.Spot[i].Strength = 0
			} else {
				s.Spot[i].Strength = 40
			}
		}
		return true
	}
	return false
}

func (g *TestGame) onConfigReloaded(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	bias := g.state().engine.Renderer().ShadowBias()
	core.LogInfo("shadow bias is now %.5f (slope %.5f)", bias.Constant, bias.Slope)
	return false
}
