package main

import (
	"fmt"
	"io"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/orchestrator"
)

// progressPrinter writes the line protocol UI wrappers parse from stdout:
//
//	[STATUS] PREPARING
//	[DURATION] 754.20
//	[CHUNKS] 26
//	[PROGRESS] 42.3
//	[STATUS] DONE 25/26
//
// In quiet mode only the final DONE line is written.
type progressPrinter struct {
	w     io.Writer
	quiet bool
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{w: w, quiet: quiet}
}

// Preparing announces a job before its audio is decoded.
func (p *progressPrinter) Preparing() {
	if !p.quiet {
		fmt.Fprintln(p.w, "[STATUS] PREPARING")
	}
}

// Handle is an orchestrator.ProgressFunc.
func (p *progressPrinter) Handle(ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventDone:
		fmt.Fprintf(p.w, "[STATUS] DONE %d/%d\n", ev.SuccessCount, ev.Total)
		return
	}
	if p.quiet {
		return
	}
	switch ev.Kind {
	case orchestrator.EventDurationKnown:
		fmt.Fprintf(p.w, "[DURATION] %.2f\n", ev.DurationSeconds)
	case orchestrator.EventChunkCountKnown:
		fmt.Fprintf(p.w, "[CHUNKS] %d\n", ev.ChunkCount)
	case orchestrator.EventChunkCompleted:
		fmt.Fprintf(p.w, "[PROGRESS] %.1f\n", ev.Progress*100)
	}
}
