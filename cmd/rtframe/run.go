// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/urfave/cli"

	"github.com/gviegas/rtframe/config"
	"github.com/gviegas/rtframe/ctxt"
	"github.com/gviegas/rtframe/frame"
	"github.com/gviegas/rtframe/render"
	"github.com/gviegas/rtframe/shaders"
	"github.com/gviegas/rtframe/wsi"
)

// loadConfig loads the file named by the config flag, or
// returns the default configuration.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	if path := ctx.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// openContext opens the named driver. The Vulkan driver is
// preferred when name is empty.
func openContext(name string) (*ctxt.Context, error) {
	if name != "" {
		return ctxt.New(name)
	}
	c, err := ctxt.New("vulkan")
	if err != nil {
		// Try all drivers.
		return ctxt.New("")
	}
	return c, nil
}

// Run renders the configured scene in a window.
func Run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ring := ctx.String("ring"); ring != "" {
		if _, err = frame.ParseRingMode(ring); err != nil {
			return err
		}
		cfg.Frame.Ring = ring
	}
	setupLogging(ctx, cfg.LogLevel())

	code, err := shaders.Load(cfg.ShaderPaths())
	if err != nil {
		return err
	}
	c, err := openContext(cfg.Driver)
	if err != nil {
		return err
	}
	defer c.Close()

	win, err := wsi.NewWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title)
	if err != nil {
		return err
	}
	defer wsi.Terminate()
	defer win.Close()
	if err = win.Map(); err != nil {
		return err
	}

	app, err := render.New(c, win, cfg, code)
	if err != nil {
		return err
	}
	defer app.Destroy()
	return app.Run(uint64(max(ctx.Int("frames"), 0)))
}
