package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/umbra/engine/core"
)

// ShaderReflection is what the shader build step records about one shader stage.
type ShaderReflection struct {
	PushConstantSize uint32 `toml:"push_constant_size"`
	Stage            string `toml:"stage"`
}

// Reflection maps a shader file name (for example "gbuffer.vert") to its reflected data.
type Reflection map[string]ShaderReflection

func LoadReflection(path string) (Reflection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.Wrapf(err, "failed to read shader reflection %s", path)
	}
	var doc struct {
		Shaders map[string]ShaderReflection `toml:"shaders"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, core.Wrapf(err, "failed to decode shader reflection %s", path)
	}
	if doc.Shaders == nil {
		return Reflection{}, nil
	}
	return Reflection(doc.Shaders), nil
}
