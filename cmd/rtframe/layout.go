// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/gviegas/rtframe/log"
	"github.com/gviegas/rtframe/sbt"
)

// parseEntry parses an entry of the form
// category:group[:inline] and adds it to t.
// The inline data is zero-filled.
func parseEntry(t *sbt.Table, s string) error {
	f := strings.Split(s, ":")
	if len(f) < 2 || len(f) > 3 {
		return fmt.Errorf("entry %q: want category:group[:inline]", s)
	}
	cat, err := sbt.ParseCategory(f[0])
	if err != nil {
		return err
	}
	group, err := strconv.Atoi(f[1])
	if err != nil || group < 0 {
		return fmt.Errorf("entry %q: bad group index", s)
	}
	var inline []byte
	if len(f) == 3 {
		n, err := strconv.Atoi(f[2])
		if err != nil || n < 0 {
			return fmt.Errorf("entry %q: bad inline size", s)
		}
		inline = make([]byte, n)
	}
	t.AddEntry(cat, group, inline)
	return nil
}

// writeLayout writes l as a table.
func writeLayout(w io.Writer, l *sbt.Layout) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Region", "Entries", "Offset", "Stride", "Size"})
	for _, c := range [...]sbt.Category{sbt.RayGen, sbt.Miss, sbt.HitGroup} {
		r := l.Region(c)
		table.Append([]string{
			c.String(),
			strconv.Itoa(r.Count),
			strconv.FormatInt(r.Offset, 10),
			strconv.FormatInt(r.Stride, 10),
			strconv.FormatInt(r.Size, 10),
		})
	}
	table.SetFooter([]string{"Total", "", "", "handle " + strconv.FormatInt(l.HandleSize, 10), strconv.FormatInt(l.Size, 10)})
	table.Render()
}

// Layout prints the layout of the table described by the
// entry flags and arguments.
func Layout(ctx *cli.Context) error {
	setupLogging(ctx, log.Notice)
	var t sbt.Table
	for _, s := range append(ctx.StringSlice("entry"), ctx.Args()...) {
		if err := parseEntry(&t, s); err != nil {
			return err
		}
	}
	l, err := t.ComputeLayoutAligned(ctx.Int64("handle-size"), ctx.Int64("entry-align"), ctx.Int64("region-align"))
	if err != nil {
		return err
	}
	writeLayout(os.Stdout, &l)
	return nil
}
