// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/urfave/cli"

	"github.com/gviegas/rtframe/log"
)

var logger = log.New("rtframe")

// setupLogging sets the level from the global flags,
// which take precedence over lvl.
func setupLogging(ctx *cli.Context, lvl log.Level) {
	log.SetLevel(lvl)

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
