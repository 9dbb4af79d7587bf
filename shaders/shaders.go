// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package shaders holds the GLSL sources of the ray
// tracing pipeline and loads their SPIR-V binaries.
package shaders

//go:generate glslangValidator --target-env vulkan1.2 -o raygen.rgen.spv raygen.rgen
//go:generate glslangValidator --target-env vulkan1.2 -o miss.rmiss.spv miss.rmiss
//go:generate glslangValidator --target-env vulkan1.2 -o closesthit.rchit.spv closesthit.rchit
//go:generate glslangValidator --target-env vulkan1.2 -o sphere.rint.spv sphere.rint

import (
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

// Sources holds the GLSL sources.
//
//go:embed *.rgen *.rmiss *.rchit *.rint
var Sources embed.FS

// ErrSPIRV means that a binary is not valid SPIR-V.
var ErrSPIRV = errors.New("shaders: not a SPIR-V binary")

const magic = 0x07230203

// Stage identifies a shader of the pipeline.
type Stage int

// Stages, in pipeline order.
const (
	RayGen Stage = iota
	Miss
	ClosestHit
	Intersection

	StageN
)

func (s Stage) String() string {
	switch s {
	case RayGen:
		return "raygen"
	case Miss:
		return "miss"
	case ClosestHit:
		return "closest hit"
	case Intersection:
		return "intersection"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Code holds one SPIR-V binary per Stage.
type Code [StageN][]byte

// Check checks that p looks like a SPIR-V binary.
func Check(p []byte) error {
	if len(p) < 20 || len(p)%4 != 0 {
		return fmt.Errorf("%w: size %d", ErrSPIRV, len(p))
	}
	if binary.LittleEndian.Uint32(p) != magic {
		return fmt.Errorf("%w: bad magic number", ErrSPIRV)
	}
	return nil
}

// Load reads the binary of each stage from paths.
func Load(paths [StageN]string) (*Code, error) {
	var c Code
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("shaders: %s: %w", Stage(i), err)
		}
		if err = Check(b); err != nil {
			return nil, fmt.Errorf("%s (%s): %w", Stage(i), p, err)
		}
		c[i] = b
	}
	return &c, nil
}
