package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lostphotosfound/cli/config"
	"github.com/lostphotosfound/cli/model"
	"github.com/lostphotosfound/cli/state"
	"github.com/lostphotosfound/cli/stats"
)

type StageFunc func(context.Context) error

// Runner owns the pipeline plumbing: the candidate channel between the scan
// and process stages, the stats event stream, and the two persistent stores.
// The first stage error cancels the run; the stores are flushed on every
// exit path so partial progress survives.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	candidates chan model.Candidate
	events     chan stats.Event

	subMu      sync.Mutex
	subs       []chan stats.Event
	subsClosed bool

	index  *state.FileStore
	hashes *state.FileStore

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeCandidatesOnce sync.Once
	closeEventsOnce     sync.Once
	since               time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	index, err := state.Open(state.IndexPath(cfg.StateDir, cfg.Username))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open index store: %w", err)
	}

	hashes, err := state.Open(state.HashesPath(cfg.StateDir, cfg.Username))
	if err != nil {
		cancel()
		_ = index.Close()
		return nil, fmt.Errorf("open hash store: %w", err)
	}

	r := &Runner{
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		candidates: make(chan model.Candidate, 32),
		events:     make(chan stats.Event, 128),
		index:      index,
		hashes:     hashes,
	}
	go r.dispatchEvents()
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

// Index is the processed-message store keyed by durable message identifier.
func (r *Runner) Index() state.Store {
	return r.index
}

// Hashes is the content hash store used for cross-message dedup.
func (r *Runner) Hashes() state.Store {
	return r.hashes
}

func (r *Runner) CandidateWriter() chan<- model.Candidate {
	return r.candidates
}

func (r *Runner) Candidates() <-chan model.Candidate {
	return r.candidates
}

func (r *Runner) CloseCandidates() {
	r.closeCandidatesOnce.Do(func() {
		close(r.candidates)
	})
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

// SubscribeStats registers an independent consumer of the event stream.
// Every subscriber observes every event: each gets its own channel, fed by
// the dispatch goroutine and closed when the stream ends.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, cap(r.events))

	r.subMu.Lock()
	if r.subsClosed {
		close(ch)
	} else {
		r.subs = append(r.subs, ch)
	}
	r.subMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

// dispatchEvents fans every emitted event out to all subscriber channels.
// It exits when the events channel closes, closing the subscriber channels
// so their consumers drain and return.
func (r *Runner) dispatchEvents() {
	for evt := range r.events {
		r.subMu.Lock()
		subs := append([]chan stats.Event(nil), r.subs...)
		r.subMu.Unlock()

		for _, ch := range subs {
			select {
			case <-r.ctx.Done():
			case ch <- evt:
			}
		}
	}

	r.subMu.Lock()
	for _, ch := range r.subs {
		close(ch)
	}
	r.subs = nil
	r.subsClosed = true
	r.subMu.Unlock()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start blocks until all stages finish, then flushes and closes both stores.
// It returns the first stage error, or a store error if flushing failed.
func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	if storeErr := r.closeStores(); storeErr != nil && err == nil {
		err = storeErr
	}

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

func (r *Runner) closeStores() error {
	var firstErr error
	if err := r.index.Close(); err != nil {
		firstErr = fmt.Errorf("close index store: %w", err)
	}
	if err := r.hashes.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close hash store: %w", err)
	}
	return firstErr
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
