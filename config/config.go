// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package config loads the TOML configuration of the
// renderer.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"

	"github.com/gviegas/rtframe/camera"
	"github.com/gviegas/rtframe/frame"
	"github.com/gviegas/rtframe/log"
	"github.com/gviegas/rtframe/scene"
)

// ErrInvalid is wrapped by every error that Validate
// reports.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the renderer configuration.
type Config struct {
	// Driver selects the driver whose name contains this
	// string. Empty selects the first driver that opens.
	Driver  string   `toml:"driver"`
	Window  Window   `toml:"window"`
	Frame   Frame    `toml:"frame"`
	Camera  Camera   `toml:"camera"`
	Spheres []Sphere `toml:"sphere"`
	Shaders Shaders  `toml:"shaders"`
	Log     Log      `toml:"log"`
}

// Window configures the window.
type Window struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
}

// Frame configures the frame scheduler.
type Frame struct {
	// Images is the requested number of swapchain
	// images. Zero requests DefaultImages.
	Images       int      `toml:"images"`
	Ring         string   `toml:"ring"`
	FenceTimeout Duration `toml:"fence_timeout"`
}

// Camera configures the initial camera.
type Camera struct {
	Eye    [3]float32 `toml:"eye"`
	LookAt [3]float32 `toml:"look_at"`
	Up     [3]float32 `toml:"up"`
	VFov   float32    `toml:"vfov"`
	// Fit frames the scene bounds, keeping the direction
	// from Eye to LookAt.
	Fit bool `toml:"fit"`
}

// Sphere is a sphere of the scene.
type Sphere struct {
	Center [3]float32 `toml:"center"`
	Radius float32    `toml:"radius"`
	Color  [3]float32 `toml:"color"`
}

// Shaders names the SPIR-V files of the pipeline.
// Relative file names are resolved against Dir.
type Shaders struct {
	Dir          string `toml:"dir"`
	RayGen       string `toml:"raygen"`
	Miss         string `toml:"miss"`
	ClosestHit   string `toml:"closest_hit"`
	Intersection string `toml:"intersection"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration encoded as a string such
// as "250ms". The empty string is zero.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(p []byte) error {
	if len(p) == 0 {
		d.Duration = 0
		return nil
	}
	x, err := time.ParseDuration(string(p))
	if err != nil {
		return err
	}
	d.Duration = x
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return []byte{}, nil
	}
	return []byte(d.Duration.String()), nil
}

// DefaultImages is the number of swapchain images
// requested when Frame.Images is zero.
const DefaultImages = 3

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Window: Window{Width: 800, Height: 600, Title: "rtframe"},
		Frame:  Frame{Ring: frame.RingCounter.String()},
		Camera: Camera{
			Eye:  [3]float32{0, 0, -3},
			Up:   [3]float32{0, 1, 0},
			VFov: 45,
		},
		Spheres: defaultSpheres(),
		Shaders: Shaders{
			Dir:          "shaders",
			RayGen:       "raygen.rgen.spv",
			Miss:         "miss.rmiss.spv",
			ClosestHit:   "closesthit.rchit.spv",
			Intersection: "sphere.rint.spv",
		},
		Log: Log{Level: log.Notice.String()},
	}
}

func defaultSpheres() []Sphere {
	return []Sphere{{Radius: 1, Color: [3]float32{1, 1, 1}}}
}

// Load reads the file at path on top of the defaults and
// validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Decode reads a TOML document from r on top of the
// defaults and validates the result.
// Unknown keys are an error. A document with no spheres
// keeps the default scene.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	c.Spheres = nil
	d := toml.NewDecoder(r)
	d.DisallowUnknownFields()
	if err := d.Decode(c); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%d:%d: %w", row, col, err)
		}
		return nil, err
	}
	if len(c.Spheres) == 0 {
		c.Spheres = defaultSpheres()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode writes c to w as TOML.
func (c *Config) Encode(w io.Writer) error {
	var b bytes.Buffer
	e := toml.NewEncoder(&b)
	e.SetIndentTables(true)
	if err := e.Encode(c); err != nil {
		return err
	}
	_, err := w.Write(b.Bytes())
	return err
}

// Validate checks c.
func (c *Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("%w: window extent %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	if c.Frame.Images < 0 {
		return fmt.Errorf("%w: %d images", ErrInvalid, c.Frame.Images)
	}
	if _, err := frame.ParseRingMode(c.Frame.Ring); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Frame.FenceTimeout.Duration < 0 {
		return fmt.Errorf("%w: negative fence timeout", ErrInvalid)
	}
	if !(c.Camera.VFov > 0 && c.Camera.VFov < 180) {
		return fmt.Errorf("%w: vfov %v", ErrInvalid, c.Camera.VFov)
	}
	if c.Camera.Eye == c.Camera.LookAt {
		return fmt.Errorf("%w: eye and look_at coincide", ErrInvalid)
	}
	if err := c.Scene().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ImageCount returns the number of swapchain images to
// request.
func (c *Config) ImageCount() int {
	if c.Frame.Images == 0 {
		return DefaultImages
	}
	return c.Frame.Images
}

// FrameConfig returns the scheduler configuration.
func (c *Config) FrameConfig() frame.Config {
	m, _ := frame.ParseRingMode(c.Frame.Ring)
	return frame.Config{Mode: m, FenceTimeout: c.Frame.FenceTimeout.Duration}
}

// Scene returns the configured scene.
func (c *Config) Scene() *scene.Scene {
	s := make([]scene.Sphere, len(c.Spheres))
	for i, x := range c.Spheres {
		s[i] = scene.Sphere{
			Center: mgl32.Vec3(x.Center),
			Radius: x.Radius,
			Color:  mgl32.Vec3(x.Color),
		}
	}
	return &scene.Scene{Spheres: s}
}

// NewCamera creates the configured camera.
func (c *Config) NewCamera(aspect float32) *camera.Camera {
	cam := camera.New(
		c.Camera.VFov,
		aspect,
		mgl32.Vec3(c.Camera.Eye),
		mgl32.Vec3(c.Camera.LookAt),
		mgl32.Vec3(c.Camera.Up),
	)
	if c.Camera.Fit {
		b := c.Scene().Bounds()
		cam.Fit(b.Min, b.Max)
	}
	return cam
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() log.Level {
	l, _ := log.ParseLevel(c.Log.Level)
	return l
}

// ShaderPaths returns the paths of the raygen, miss,
// closest hit and intersection shaders, in this order.
func (c *Config) ShaderPaths() [4]string {
	var p [4]string
	for i, s := range [4]string{c.Shaders.RayGen, c.Shaders.Miss, c.Shaders.ClosestHit, c.Shaders.Intersection} {
		if filepath.IsAbs(s) || c.Shaders.Dir == "" {
			p[i] = s
		} else {
			p[i] = filepath.Join(c.Shaders.Dir, s)
		}
	}
	return p
}
