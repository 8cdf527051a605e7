//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderStages = []string{"*.vert", "*.frag", "*.comp"}

// Compiles every GLSL stage under shaders/ to SPIR-V next to its source (gbuffer.vert -> gbuffer.vert.spv).
func (Build) Shaders() error {
	for _, pattern := range shaderStages {
		sources, err := filepath.Glob(filepath.Join("shaders", pattern))
		if err != nil {
			return err
		}
		for _, src := range sources {
			if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.3", src, "-o", src+".spv"), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "umbra"), "."), withStream())
	return err
}
