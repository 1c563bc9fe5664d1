package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/batch"
)

func printSummary(w io.Writer, s batch.Summary) {
	color.New(color.FgCyan, color.Bold).Fprintln(w, "Summary")
	fmt.Fprintf(w, "  images:    %d\n", s.Total)
	color.New(color.FgGreen).Fprintf(w, "  processed: %d\n", s.Processed)
	color.New(color.FgHiBlack).Fprintf(w, "  skipped:   %d\n", s.Skipped)
	if s.Failed > 0 {
		color.New(color.FgRed, color.Bold).Fprintf(w, "  failed:    %d\n", s.Failed)
		errColor := color.New(color.FgRed)
		for _, r := range s.Failures() {
			errColor.Fprintf(w, "    %s: %v\n", filepath.Base(r.Input), r.Err)
		}
	}
	fmt.Fprintf(w, "  output:    %s\n", s.Location)
	color.New(color.FgHiBlack).Fprintf(w, "  elapsed:   %v\n", s.Elapsed.Round(time.Millisecond))
}
