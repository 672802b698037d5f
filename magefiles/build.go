//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles the ray-tracing shader stages to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the engine binary into bin/.
func (Build) Engine() error {
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "anima-rt"), "."), withStream())
	return err
}

func buildShaders() error {
	stages, err := filepath.Glob(filepath.Join(shaderDir, "*.r*"))
	if err != nil {
		return err
	}
	for _, stage := range stages {
		out := stage + ".spv"
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", stage, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}
