// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command rtframe renders a sphere scene with hardware
// ray tracing.
package main

import (
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "rtframe"
	app.Usage = "real-time ray tracing of sphere scenes"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "open a window and render the scene",
			Description: `
Build the acceleration structures of the configured scene, upload its
shader binding table and draw frames until the window is closed or Esc
is pressed. Drag with the left button to orbit the camera, scroll to
zoom and press R to rebuild the acceleration structures.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "TOML configuration file",
				},
				cli.IntFlag{
					Name:  "frames, n",
					Usage: "stop after this many frames (0 for no limit)",
				},
				cli.StringFlag{
					Name:  "ring",
					Usage: "frame ring index policy: counter or image-index",
				},
			},
			Action: Run,
		},
		{
			Name:  "layout",
			Usage: "print the layout of a shader binding table",
			Description: `
Compute the layout of a shader binding table without a GPU. Each entry
is given as category:group[:inline], where category is raygen, miss or
hitgroup and inline is the size in bytes of the entry's inline data.`,
			ArgsUsage: "[entry...]",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:  "handle-size",
					Value: 32,
					Usage: "shader group handle size in bytes",
				},
				cli.Int64Flag{
					Name:  "entry-align",
					Value: 16,
					Usage: "stride alignment",
				},
				cli.Int64Flag{
					Name:  "region-align",
					Value: 1,
					Usage: "region start alignment",
				},
				cli.StringSliceFlag{
					Name:  "entry, e",
					Value: &cli.StringSlice{},
					Usage: "table entry as category:group[:inline]",
				},
			},
			Action: Layout,
		},
		{
			Name:  "info",
			Usage: "print device and ray tracing limits",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "driver, d",
					Usage: "select the driver whose name contains this value",
				},
			},
			Action: Info,
		},
		{
			Name:  "config",
			Usage: "print the effective configuration",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "TOML configuration file",
				},
			},
			Action: PrintConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}
