package metadata

import (
	"os"
	"path/filepath"

	"github.com/spaghettifunk/umbra/engine/config"
	"github.com/spaghettifunk/umbra/engine/core"
)

/** @brief The largest push constant block every conforming device accepts. */
const MaxPushConstantSize uint32 = 128

// Shader is either a compiled module or a linked pipeline. Both are released the same way.
type Shader interface {
	ShaderName() string
	Destroy(device Device)
	isShader()
}

type ShaderModule struct {
	Name   string
	Stage  ShaderStage
	Handle ShaderModuleHandle
}

func (s *ShaderModule) ShaderName() string { return s.Name }

func (s *ShaderModule) Destroy(device Device) {
	if s.Handle.IsValid() {
		device.DestroyShaderModule(s.Handle)
		s.Handle = ShaderModuleHandle(0)
	}
}

func (*ShaderModule) isShader() {}

type ShaderPipeline struct {
	Name   string
	Handle PipelineHandle
}

func (s *ShaderPipeline) ShaderName() string { return s.Name }

func (s *ShaderPipeline) Destroy(device Device) {
	if s.Handle.IsValid() {
		device.DestroyPipeline(s.Handle)
		s.Handle = PipelineHandle(0)
	}
}

func (*ShaderPipeline) isShader() {}

// DestroyShaders releases shaders in reverse order, pipelines before the modules they were
// built from when callers append them in creation order.
func DestroyShaders(device Device, shaders ...Shader) {
	for i := len(shaders) - 1; i >= 0; i-- {
		if shaders[i] != nil {
			shaders[i].Destroy(device)
		}
	}
}

// ShaderSource returns the SPIR-V for a shader file name such as "gbuffer.vert".
type ShaderSource func(file string) ([]byte, error)

// DirShaderSource reads <dir>/<file>.spv, the layout the shader build target produces.
func DirShaderSource(dir string) ShaderSource {
	return func(file string) ([]byte, error) {
		path := filepath.Join(dir, file+".spv")
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, core.Wrapf(err, "failed to read shader %s", path)
		}
		return code, nil
	}
}

func LoadShaderModule(device Device, source ShaderSource, file string, stage ShaderStage) (*ShaderModule, error) {
	code, err := source(file)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	h, err := device.CreateShaderModule(file, code, stage)
	if err != nil {
		return nil, err
	}
	return &ShaderModule{Name: file, Stage: stage, Handle: h}, nil
}

// ValidatePushConstants compares the size a pipeline declares for a shader against what the
// shader build step reflected, and against the guaranteed device limit. Mismatches are
// logged; the return value reports whether the declaration is consistent.
func ValidatePushConstants(reflection config.Reflection, shader string, declared uint32) bool {
	ok := true
	if declared > MaxPushConstantSize {
		core.LogWarn("push constants for %s are %d bytes, over the %d byte limit", shader, declared, MaxPushConstantSize)
		ok = false
	}
	r, found := reflection[shader]
	if !found {
		core.LogDebug("no reflection data for %s, push constant size %d unchecked", shader, declared)
		return ok
	}
	if r.PushConstantSize != declared {
		core.LogWarn("push constant size mismatch for %s: declared %d bytes, shader expects %d", shader, declared, r.PushConstantSize)
		ok = false
	}
	return ok
}
