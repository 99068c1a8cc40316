package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageScan    Stage = "scan"
	StageProcess Stage = "process"
)

type EventType string

const (
	// EventTypeMatched carries the total search match count in Count.
	EventTypeMatched        EventType = "matched"
	EventTypeScanned        EventType = "scanned"
	EventTypeSkippedIndexed EventType = "skipped_indexed"
	EventTypeEnqueued       EventType = "enqueued"
	EventTypeProcessed      EventType = "processed"
	EventTypeSaved          EventType = "saved"
	EventTypeDuplicate      EventType = "duplicate"
	EventTypeAlreadyOnDisk  EventType = "already_on_disk"
	EventTypeError          EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	Count     int
	Detail    string
	Err       error
}

type Summary struct {
	Matched        int
	Scanned        int
	SkippedIndexed int
	Enqueued       int
	Processed      int
	Saved          int
	Duplicates     int
	AlreadyOnDisk  int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"matched", s.Matched,
		"scanned", s.Scanned,
		"skippedIndexed", s.SkippedIndexed,
		"enqueued", s.Enqueued,
		"processed", s.Processed,
		"saved", s.Saved,
		"duplicates", s.Duplicates,
		"alreadyOnDisk", s.AlreadyOnDisk,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeMatched:
		c.summary.Matched = evt.Count
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeSkippedIndexed:
		c.summary.SkippedIndexed++
	case EventTypeEnqueued:
		c.summary.Enqueued++
	case EventTypeProcessed:
		c.summary.Processed++
	case EventTypeSaved:
		c.summary.Saved++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypeAlreadyOnDisk:
		c.summary.AlreadyOnDisk++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
