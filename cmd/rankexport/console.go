package main

import (
	"fmt"
	"io"

	domain "github.com/avelar/rankexport/internal/domain/export"
)

// consoleReporter forwards progress snapshots to the rendering goroutine
// without blocking the scheduling loop. Intermediate frames may be
// dropped under pressure; snapshots are full projections, so the next
// one supersedes anything missed.
type consoleReporter struct {
	ch chan domain.ProgressSnapshot
}

func newConsoleReporter() *consoleReporter {
	return &consoleReporter{ch: make(chan domain.ProgressSnapshot, 64)}
}

func (r *consoleReporter) OnProgress(s domain.ProgressSnapshot) {
	select {
	case r.ch <- s:
	default:
	}
}

// Close signals the renderer that no further snapshots will arrive.
func (r *consoleReporter) Close() { close(r.ch) }

// render prints snapshots until the reporter is closed, skipping
// consecutive duplicates.
func (r *consoleReporter) render(w io.Writer) error {
	var last domain.ProgressSnapshot
	for s := range r.ch {
		if s == last {
			continue
		}
		last = s
		fmt.Fprintf(w, "[rankexport] %3d%% %s\n", s.Percent, s.Message)
	}
	return nil
}
