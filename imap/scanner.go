package imap

import (
	"context"
	"fmt"
	"log/slog"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/lostphotosfound/cli/model"
	"github.com/lostphotosfound/cli/runner"
	"github.com/lostphotosfound/cli/state"
	"github.com/lostphotosfound/cli/stats"
)

// Searcher is the part of a Session the scanner needs. Tests substitute a
// fake; production code passes *Session.
type Searcher interface {
	Mailbox() string
	Search(criteria *imapv2.SearchCriteria) ([]uint32, error)
	MessageID(seqNum uint32) (uint32, string, error)
}

// DialSearchFunc opens the scan session. The returned func releases it.
type DialSearchFunc func() (Searcher, func(), error)

// Scanner searches the mailbox for candidate messages and feeds the ones
// not yet in the index to the processing stage.
type Scanner struct {
	criteria    *imapv2.SearchCriteria
	ignoreIndex bool
	dial        DialSearchFunc
	runner      *runner.Runner
	index       state.Store
	logger      *slog.Logger
}

func NewScanner(criteria *imapv2.SearchCriteria, dial DialSearchFunc, r *runner.Runner, logger *slog.Logger) (*Scanner, error) {
	if criteria == nil {
		return nil, fmt.Errorf("search criteria must not be nil")
	}
	if dial == nil {
		return nil, fmt.Errorf("dial func must not be nil")
	}
	index := r.Index()
	if index == nil {
		return nil, fmt.Errorf("index store must not be nil")
	}
	scanner := &Scanner{
		criteria:    criteria,
		ignoreIndex: r.Config().IgnoreIndex,
		dial:        dial,
		runner:      r,
		index:       index,
		logger:      logger,
	}
	r.AddStage("scan", scanner.run)
	return scanner, nil
}

func (s *Scanner) run(ctx context.Context) error {
	defer s.runner.CloseCandidates()

	session, cleanup, err := s.dial()
	if err != nil {
		s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Err: err})
		return err
	}
	defer cleanup()

	seqNums, err := session.Search(s.criteria)
	if err != nil {
		s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Err: err})
		return err
	}

	s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeMatched, Count: len(seqNums)})
	if s.logger != nil {
		s.logger.Info("mailbox searched", "mailbox", session.Mailbox(), "matched", len(seqNums))
	}

	for _, seqNum := range seqNums {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		uid, id, err := session.MessageID(seqNum)
		if err != nil {
			s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeError, Err: err})
			return err
		}

		s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeScanned, MessageID: id})

		if !s.ignoreIndex && s.index.Contains(id) {
			s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeSkippedIndexed, MessageID: id})
			if s.logger != nil {
				s.logger.Debug("message already indexed, skipping", "messageID", id)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.runner.CandidateWriter() <- model.Candidate{UID: uid, MessageID: id}:
			s.runner.EmitEvent(stats.Event{Stage: stats.StageScan, Type: stats.EventTypeEnqueued, MessageID: id})
		}
	}

	return nil
}
