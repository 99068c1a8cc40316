package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/lostphotosfound/cli/stats"
)

// Bar manages a progress bar over the scan. The total is not known until the
// mailbox search returns, so the bar appears on the first matched event.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar if logLevel is "info". At debug level the
// per-message log lines tell the same story without the bar fighting them
// for the terminal.
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Update advances the bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeMatched:
		b.total = evt.Count
		pterm.Info.Printf("Messages matching search: %d\n", evt.Count)
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(evt.Count).
			WithTitle("Scanning messages").
			Start()
		b.pb = pb
	case stats.EventTypeScanned:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle("Scanning: " + evt.MessageID)
		}
	case stats.EventTypeError:
		// Show errors above the progress bar.
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb == nil {
		return
	}
	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
}

// Subscriber is a stats subscriber function that drives the bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				b.Stop()
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter pairs the progress bar with a final human-readable
// summary printed once the pipeline drains.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Matched: %d\n", summary.Matched)
	pterm.Info.Printf("Skipped (already indexed): %d\n", summary.SkippedIndexed)
	pterm.Info.Printf("Processed: %d\n", summary.Processed)
	pterm.Info.Printf("Images saved: %d\n", summary.Saved)
	pterm.Info.Printf("Duplicates: %d\n", summary.Duplicates)
	pterm.Info.Printf("Already on disk: %d\n", summary.AlreadyOnDisk)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	return nil
}
