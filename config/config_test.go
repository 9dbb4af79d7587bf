// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rtframe/frame"
	"github.com/gviegas/rtframe/log"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 800, c.Window.Width)
	assert.Equal(t, 600, c.Window.Height)
	assert.Len(t, c.Spheres, 1)
	assert.Equal(t, [3]float32{0, 0, -3}, c.Camera.Eye)

	fc := c.FrameConfig()
	assert.Equal(t, frame.RingCounter, fc.Mode)
	assert.Zero(t, fc.FenceTimeout)
	assert.Equal(t, log.Notice, c.LogLevel())

	cam := c.NewCamera(2)
	assert.Equal(t, mgl32.Vec3{0, 0, -3}, cam.Eye())
	assert.Equal(t, float32(2), cam.Aspect())
}

const doc = `
driver = "vulkan"

[window]
width = 1280
height = 720

[frame]
images = 3
ring = "image-index"
fence_timeout = "250ms"

[camera]
eye = [0.0, 1.0, -5.0]
vfov = 60.0
fit = true

[[sphere]]
center = [-1.0, 0.0, 0.0]
radius = 0.5
color = [1.0, 0.0, 0.0]

[[sphere]]
center = [1.0, 0.0, 0.0]
radius = 0.75

[log]
level = "debug"
`

func TestDecode(t *testing.T) {
	c, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "vulkan", c.Driver)
	assert.Equal(t, 1280, c.Window.Width)
	// Unset keys keep their defaults.
	assert.Equal(t, "rtframe", c.Window.Title)
	assert.Equal(t, [3]float32{0, 1, 0}, c.Camera.Up)
	assert.Equal(t, "shaders", c.Shaders.Dir)

	fc := c.FrameConfig()
	assert.Equal(t, frame.RingImageIndex, fc.Mode)
	assert.Equal(t, 250*time.Millisecond, fc.FenceTimeout)
	assert.Equal(t, 3, c.Frame.Images)
	assert.Equal(t, log.Debug, c.LogLevel())

	s := c.Scene()
	require.Len(t, s.Spheres, 2)
	assert.Equal(t, mgl32.Vec3{-1, 0, 0}, s.Spheres[0].Center)
	assert.Equal(t, float32(0.75), s.Spheres[1].Radius)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, s.Spheres[0].Color)

	// The camera frames the spheres' bounds.
	assert.True(t, c.Camera.Fit)
	cam := c.NewCamera(1)
	b := s.Bounds()
	assert.InDelta(t, 0, cam.LookAt().Sub(b.Min.Add(b.Max).Mul(0.5)).Len(), 1e-5)
	assert.Equal(t, mgl32.Vec3{}, Default().NewCamera(1).LookAt())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("[window]\nwidth = 10\ndepth = 2\n"))
	var serr *toml.StrictMissingError
	assert.True(t, errors.As(err, &serr), "have %v", err)

	_, err = Decode(strings.NewReader("[frame]\nfence_timeout = \"soon\"\n"))
	assert.Error(t, err)

	for _, s := range []string{
		"[window]\nwidth = 0\n",
		"[frame]\nring = \"fifo\"\n",
		"[frame]\nimages = -1\n",
		"[camera]\nvfov = 180.0\n",
		"[camera]\neye = [0.0, 0.0, 0.0]\n",
		"[[sphere]]\nradius = 0.0\n",
		"[log]\nlevel = \"loud\"\n",
	} {
		_, err := Decode(strings.NewReader(s))
		assert.ErrorIs(t, err, ErrInvalid, s)
	}
}

func TestEncode(t *testing.T) {
	c := Default()
	c.Frame.FenceTimeout.Duration = time.Second
	var b bytes.Buffer
	require.NoError(t, c.Encode(&b))
	d, err := Decode(&b)
	require.NoError(t, err)
	assert.Equal(t, c, d)
}

func TestLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rtframe.toml")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 720, c.Window.Height)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestShaderPaths(t *testing.T) {
	c := Default()
	c.Shaders.Dir = "spv"
	c.Shaders.Miss = "/abs/miss.spv"
	p := c.ShaderPaths()
	assert.Equal(t, filepath.Join("spv", "raygen.rgen.spv"), p[0])
	assert.Equal(t, "/abs/miss.spv", p[1])
	c.Shaders.Dir = ""
	assert.Equal(t, "sphere.rint.spv", c.ShaderPaths()[3])
}
