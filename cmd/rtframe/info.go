// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gviegas/rtframe/driver"
	"github.com/gviegas/rtframe/log"
)

// writeInfo writes the limits of a device as a table.
func writeInfo(w io.Writer, drv string, lim driver.Limits, rtl driver.RTLimits, present bool) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Property", "Value"})
	i64 := func(n int64) string { return strconv.FormatInt(n, 10) }
	table.AppendBulk([][]string{
		{"Driver", drv},
		{"Device", lim.DeviceName},
		{"Presentation", strconv.FormatBool(present)},
		{"Max 2D image", strconv.Itoa(lim.MaxImage2D)},
		{"Min constant align", i64(lim.MinConstantAlign)},
		{"Max constant range", i64(lim.MaxConstantRange)},
		{"Handle size", i64(rtl.HandleSize)},
		{"Handle align", i64(rtl.HandleAlign)},
		{"Base align", i64(rtl.BaseAlign)},
		{"Scratch align", i64(rtl.ScratchAlign)},
		{"Max recursion", strconv.Itoa(rtl.MaxRecursion)},
		{"Max dispatch", i64(rtl.MaxDispatch)},
	})
	table.Render()
}

// Info prints the limits of the selected device.
func Info(ctx *cli.Context) error {
	setupLogging(ctx, log.Notice)
	c, err := openContext(ctx.String("driver"))
	if err != nil {
		return fmt.Errorf("no usable driver: %w", err)
	}
	defer c.Close()
	writeInfo(os.Stdout, c.Driver().Name(), c.Limits(), c.RTLimits(), c.Presenter() != nil)
	return nil
}
