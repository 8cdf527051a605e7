// Package scene holds the flat lists the renderer consumes each frame: instances with their
// transforms, lights, the camera and the atmosphere.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
	umath "github.com/spaghettifunk/umbra/engine/math"
	"github.com/spaghettifunk/umbra/engine/renderer/deferred"
	"github.com/spaghettifunk/umbra/engine/renderer/metadata"
	"github.com/spaghettifunk/umbra/engine/renderer/staged"
)

// Instance draws one mesh once per transform.
type Instance struct {
	metadata.RenderInstance
	Transforms []*umath.Transform

	models *staged.Buffer[mgl32.Mat4]
}

type Scene struct {
	device metadata.Device
	limits config.LimitsConfig

	Camera     *Camera
	Atmosphere metadata.AtmosphereData

	Directional []metadata.DirectionalLight
	Spot        []metadata.SpotLight

	camera     *staged.Buffer[metadata.CameraData]
	atmosphere *staged.Buffer[metadata.AtmosphereData]
	instances  []*Instance
	meshes     []*meshBuffers
	materials  []*metadata.Material
}

func New(device metadata.Device, cfg *config.Config) (*Scene, error) {
	s := &Scene{
		device: device,
		limits: cfg.Limits,
		Camera: NewCamera(),
		Atmosphere: metadata.AtmosphereData{
			SunDirection:     mgl32.Vec3{-0.3, -1, -0.2}.Normalize(),
			SunIntensity:     1,
			AmbientColor:     mgl32.Vec3{0.6, 0.7, 0.9},
			AmbientIntensity: 0.1,
		},
	}
	s.Camera.SetViewport(metadata.Extent2D{Width: cfg.Window.Width, Height: cfg.Window.Height})

	var err error
	if s.camera, err = staged.New[metadata.CameraData](device, "camera", 1, metadata.BufferUsageStorage); err != nil {
		return nil, s.fail(err, "camera buffer")
	}
	if s.atmosphere, err = staged.New[metadata.AtmosphereData](device, "atmosphere", 1, metadata.BufferUsageStorage); err != nil {
		return nil, s.fail(err, "atmosphere buffer")
	}
	return s, nil
}

func (s *Scene) fail(err error, what string) error {
	s.Destroy()
	err = core.Wrapf(err, "scene: failed to create %s", what)
	core.LogError(err.Error())
	return err
}

func (s *Scene) CameraBuffer() metadata.BufferHandle { return s.camera.DeviceBuffer() }

func (s *Scene) AtmosphereBuffer() metadata.BufferHandle { return s.atmosphere.DeviceBuffer() }

// AddInstance places mesh in the scene with room for capacity transforms. The instance
// starts with none, so it is not drawn until a transform is added.
func (s *Scene) AddInstance(name string, mesh *metadata.Mesh, capacity uint32) (*Instance, error) {
	if uint32(len(s.instances)) >= s.limits.MaxInstances {
		err := core.Newf("scene: instance limit of %d reached, %s not added", s.limits.MaxInstances, name)
		core.LogWarn(err.Error())
		return nil, err
	}
	id := uuid.NewString()
	models, err := staged.New[mgl32.Mat4](s.device, "models-"+name, uint64(capacity), metadata.BufferUsageStorage)
	if err != nil {
		return nil, core.Wrapf(err, "scene: instance %s", name)
	}
	inst := &Instance{
		RenderInstance: metadata.RenderInstance{
			ID:            id,
			Name:          name,
			Mesh:          mesh,
			ModelsBuffer:  models.DeviceBuffer(),
			ModelsAddress: models.DeviceAddress(),
		},
		models: models,
	}
	s.instances = append(s.instances, inst)
	core.LogDebug("scene: added instance %s (%s)", name, id)
	return inst, nil
}

// RemoveInstance drops the instance with id. The device is drained first since a frame in
// flight may still read its transforms.
func (s *Scene) RemoveInstance(id string) bool {
	for i, inst := range s.instances {
		if inst.ID != id {
			continue
		}
		if err := s.device.WaitIdle(); err != nil {
			core.LogWarn("scene: wait idle before removing %s: %s", inst.Name, err)
		}
		inst.models.Destroy()
		s.instances = append(s.instances[:i], s.instances[i+1:]...)
		return true
	}
	return false
}

func (s *Scene) Instance(id string) *Instance {
	for _, inst := range s.instances {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}

func (s *Scene) Instances() []*Instance { return s.instances }

// RecordUploads stages this frame's camera, atmosphere and world matrices and records
// their copies. The deferred pipeline issues the barrier that covers them.
func (s *Scene) RecordUploads(cmd metadata.CommandBuffer) {
	s.camera.Overwrite([]metadata.CameraData{s.Camera.Data()})
	s.camera.RecordCopyToDevice(cmd)

	atmosphere := s.Atmosphere
	atmosphere.SunDirection = atmosphere.SunDirection.Normalize()
	s.atmosphere.Overwrite([]metadata.AtmosphereData{atmosphere})
	s.atmosphere.RecordCopyToDevice(cmd)

	for _, inst := range s.instances {
		if len(inst.Transforms) == 0 {
			inst.models.ClearStagedAndDevice()
			inst.TransformCount = 0
			continue
		}
		matrices := make([]mgl32.Mat4, len(inst.Transforms))
		for i, t := range inst.Transforms {
			matrices[i] = t.World()
		}
		inst.models.Overwrite(matrices)
		inst.models.RecordCopyToDevice(cmd)
		inst.TransformCount = uint32(inst.models.DeviceCountQueued())
	}
}

// FrameInputs is valid after RecordUploads for the same frame.
func (s *Scene) FrameInputs() *deferred.FrameInputs {
	instances := make([]*metadata.RenderInstance, len(s.instances))
	for i, inst := range s.instances {
		instances[i] = &inst.RenderInstance
	}
	return &deferred.FrameInputs{
		CameraAddress:  s.camera.DeviceAddress(),
		CameraPosition: s.Camera.Position(),
		Instances:      instances,
		Renderable:     metadata.Renderables(instances),
		Directional:    s.Directional,
		Spot:           s.Spot,
	}
}

// Destroy releases every buffer the scene created. Materials' descriptor sets go back with
// the allocator that produced them.
func (s *Scene) Destroy() {
	for _, inst := range s.instances {
		inst.models.Destroy()
	}
	s.instances = nil
	for _, m := range s.meshes {
		m.destroy()
	}
	s.meshes = nil
	for _, m := range s.materials {
		if m.ParamsBuffer.IsValid() {
			s.device.DestroyBuffer(m.ParamsBuffer)
			m.ParamsBuffer = 0
		}
	}
	s.materials = nil
	if s.atmosphere != nil {
		s.atmosphere.Destroy()
		s.atmosphere = nil
	}
	if s.camera != nil {
		s.camera.Destroy()
		s.camera = nil
	}
}
