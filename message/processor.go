package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lostphotosfound/cli/extract"
	"github.com/lostphotosfound/cli/filter"
	"github.com/lostphotosfound/cli/model"
	"github.com/lostphotosfound/cli/runner"
	"github.com/lostphotosfound/cli/state"
	"github.com/lostphotosfound/cli/stats"
)

// Fetcher is the part of an IMAP session the processor needs. Tests
// substitute a fake; production code passes a session.
type Fetcher interface {
	FetchFull(uid uint32) ([]byte, error)
}

// DialFetchFunc opens the processing session. The returned func releases
// it. The session is dialed lazily: a run where every message is already
// indexed never opens it.
type DialFetchFunc func() (Fetcher, func(), error)

// Processor drains the candidate channel, fetching each message, extracting
// its image parts and recording the message in the index once all parts are
// handled. Extraction errors are fatal; the index entry is only written for
// fully processed messages, so an aborted message is retried next run.
type Processor struct {
	dial      DialFetchFunc
	runner    *runner.Runner
	extractor *extract.Extractor
	index     state.Store
	logger    *slog.Logger
}

func NewProcessor(dial DialFetchFunc, extractor *extract.Extractor, r *runner.Runner, logger *slog.Logger) (*Processor, error) {
	if dial == nil {
		return nil, fmt.Errorf("dial func must not be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor must not be nil")
	}
	index := r.Index()
	if index == nil {
		return nil, fmt.Errorf("index store must not be nil")
	}
	processor := &Processor{
		dial:      dial,
		runner:    r,
		extractor: extractor,
		index:     index,
		logger:    logger,
	}
	r.AddStage("process", processor.run)
	return processor, nil
}

func (p *Processor) run(ctx context.Context) error {
	var (
		session Fetcher
		cleanup func()
	)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candidate, ok := <-p.runner.Candidates():
			if !ok {
				return nil
			}

			if session == nil {
				var err error
				session, cleanup, err = p.dial()
				if err != nil {
					p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeError, MessageID: candidate.MessageID, Err: err})
					return err
				}
			}

			if err := p.process(session, candidate); err != nil {
				p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeError, MessageID: candidate.MessageID, Err: err})
				return err
			}
		}
	}
}

func (p *Processor) process(session Fetcher, candidate model.Candidate) error {
	raw, err := session.FetchFull(candidate.UID)
	if err != nil {
		return err
	}

	parsed, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("message %s: %w", candidate.MessageID, err)
	}

	if !parsed.Multipart() {
		if p.logger != nil {
			p.logger.Debug("message is not multipart, skipping", "messageID", candidate.MessageID)
		}
		return p.markProcessed(candidate.MessageID)
	}

	if p.logger != nil {
		p.logger.Info("processing message",
			"messageID", candidate.MessageID,
			"from", parsed.From(),
			"subject", parsed.Subject())
	}

	date := parsed.Date()
	if date.IsZero() {
		date = time.Now()
		if p.logger != nil {
			p.logger.Debug("message has no usable date, using current time", "messageID", candidate.MessageID)
		}
	}
	sender := parsed.Sender()

	for _, part := range parsed.Parts() {
		if !filter.IsImagePart(part.ContentType) {
			continue
		}

		result, dest, err := p.extractor.Save(part, date, sender)
		if err != nil {
			return fmt.Errorf("message %s: %w", candidate.MessageID, err)
		}

		switch result {
		case extract.ResultSaved:
			p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeSaved, MessageID: candidate.MessageID, Detail: dest})
		case extract.ResultDuplicateContent:
			p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeDuplicate, MessageID: candidate.MessageID, Detail: dest})
		case extract.ResultAlreadyOnDisk:
			p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeAlreadyOnDisk, MessageID: candidate.MessageID, Detail: dest})
		}
	}

	return p.markProcessed(candidate.MessageID)
}

func (p *Processor) markProcessed(id string) error {
	if err := p.index.Put(id); err != nil {
		return fmt.Errorf("record message %s in index: %w", id, err)
	}
	p.runner.EmitEvent(stats.Event{Stage: stats.StageProcess, Type: stats.EventTypeProcessed, MessageID: id})
	return nil
}
