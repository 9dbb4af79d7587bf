// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/gviegas/rtframe/log"
)

// PrintConfig prints the effective configuration as TOML.
func PrintConfig(ctx *cli.Context) error {
	setupLogging(ctx, log.Notice)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	return cfg.Encode(os.Stdout)
}
