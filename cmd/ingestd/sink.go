package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/ivoronin/ingestd/internal/coordinator"
	"github.com/ivoronin/ingestd/internal/progress"
	"github.com/ivoronin/ingestd/internal/types"
)

// statusLine adapts a plain string to fmt.Stringer for progress.Bar.
type statusLine string

func (s statusLine) String() string { return string(s) }

// cliSink renders transfer and batch activity to the terminal, keeping one
// progress bar per in-flight transfer. All methods are safe to call from
// the coordinator's worker goroutines.
type cliSink struct {
	enabled bool

	mu   sync.Mutex
	bars map[types.TransferId]*progress.Bar
}

func newCliSink(enabled bool) *cliSink {
	return &cliSink{enabled: enabled, bars: make(map[types.TransferId]*progress.Bar)}
}

func (s *cliSink) subscriber() coordinator.SubscriberFuncs {
	return coordinator.SubscriberFuncs{
		Started: func(id types.TransferId) {
			fmt.Fprintf(os.Stderr, "start  %s\n", id)
		},
		Progress: func(ev types.TransferProgressEvent) {
			s.barFor(ev.Id, ev.TotalBytes).Set(ev.TransferredBytes)
			s.barFor(ev.Id, ev.TotalBytes).Describe(statusLine(fmt.Sprintf("%s %.0f%%", ev.Id, ev.Percent)))
		},
		Completed: func(o types.TransferOutcome) {
			s.finish(o.Id, fmt.Sprintf("done   %s", o.Id))
		},
		Failed: func(o types.TransferOutcome) {
			s.finish(o.Id, fmt.Sprintf("failed %s: %v", o.Id, o.Failure))
		},
		BatchProgress: func(e types.BatchProgressEvent) {
			fmt.Fprintf(os.Stderr, "batch  %s %.0f%%\n", e.Id, e.OverallPercent)
		},
		BatchCompleted: func(id types.BatchId) {
			fmt.Fprintf(os.Stderr, "batch  %s complete\n", id)
		},
	}
}

func (s *cliSink) barFor(id types.TransferId, total int64) *progress.Bar {
	s.mu.Lock()
	defer s.mu.Unlock()
	bar, ok := s.bars[id]
	if !ok {
		bar = progress.New(s.enabled, total)
		s.bars[id] = bar
	}
	return bar
}

func (s *cliSink) finish(id types.TransferId, msg string) {
	s.mu.Lock()
	bar, ok := s.bars[id]
	delete(s.bars, id)
	s.mu.Unlock()

	if ok {
		bar.Finish(statusLine(msg))
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
