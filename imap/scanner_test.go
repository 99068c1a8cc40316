package imap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"

	"github.com/lostphotosfound/cli/config"
	"github.com/lostphotosfound/cli/filter"
	"github.com/lostphotosfound/cli/model"
	"github.com/lostphotosfound/cli/runner"
	"github.com/lostphotosfound/cli/stats"
)

type fakeSearcher struct {
	seqNums     []uint32
	uidValidity uint32
	searches    int
	closed      bool
}

func (f *fakeSearcher) Mailbox() string { return "All Mail" }

func (f *fakeSearcher) Search(criteria *imapv2.SearchCriteria) ([]uint32, error) {
	f.searches++
	return f.seqNums, nil
}

func (f *fakeSearcher) MessageID(seqNum uint32) (uint32, string, error) {
	// The fake maps seqnum n to uid n*100, mirroring that the two number
	// spaces are unrelated on a real server.
	uid := seqNum * 100
	return uid, FormatMessageID(f.uidValidity, uid), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T, ignoreIndex bool) *runner.Runner {
	t.Helper()
	cfg := config.Config{
		Username:    "tester@example.com",
		StateDir:    t.TempDir(),
		IgnoreIndex: ignoreIndex,
	}
	r, err := runner.New(cfg, testLogger())
	if err != nil {
		t.Fatalf("runner.New() error = %v", err)
	}
	return r
}

func TestScanner_EnqueuesUnindexedMessages(t *testing.T) {
	r := newTestRunner(t, false)
	reporter := stats.NewReporter(r, testLogger())

	// Message 7:200 was handled by a previous run.
	if err := r.Index().Put(FormatMessageID(7, 200)); err != nil {
		t.Fatal(err)
	}

	searcher := &fakeSearcher{seqNums: []uint32{1, 2, 3}, uidValidity: 7}
	dial := func() (Searcher, func(), error) {
		return searcher, func() { searcher.closed = true }, nil
	}

	if _, err := NewScanner(filter.Criteria(""), dial, r, testLogger()); err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	var got []model.Candidate
	r.AddStage("drain", func(ctx context.Context) error {
		for candidate := range r.Candidates() {
			got = append(got, candidate)
		}
		return nil
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	want := []model.Candidate{
		{UID: 100, MessageID: "7:100"},
		{UID: 300, MessageID: "7:300"},
	}
	for i, candidate := range got {
		if candidate != want[i] {
			t.Errorf("candidate[%d] = %+v, want %+v", i, candidate, want[i])
		}
	}

	summary := reporter.Summary()
	if summary.Matched != 3 {
		t.Errorf("Matched = %d, want 3", summary.Matched)
	}
	if summary.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", summary.Scanned)
	}
	if summary.SkippedIndexed != 1 {
		t.Errorf("SkippedIndexed = %d, want 1", summary.SkippedIndexed)
	}
	if summary.Enqueued != 2 {
		t.Errorf("Enqueued = %d, want 2", summary.Enqueued)
	}
	if !searcher.closed {
		t.Error("scan session was not released")
	}
}

func TestScanner_IgnoreIndexProcessesEverything(t *testing.T) {
	r := newTestRunner(t, true)
	reporter := stats.NewReporter(r, testLogger())

	if err := r.Index().Put(FormatMessageID(7, 100)); err != nil {
		t.Fatal(err)
	}

	searcher := &fakeSearcher{seqNums: []uint32{1, 2}, uidValidity: 7}
	dial := func() (Searcher, func(), error) {
		return searcher, func() {}, nil
	}

	if _, err := NewScanner(filter.Criteria(""), dial, r, testLogger()); err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	count := 0
	r.AddStage("drain", func(ctx context.Context) error {
		for range r.Candidates() {
			count++
		}
		return nil
	})

	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if count != 2 {
		t.Errorf("got %d candidates, want 2 (index must be ignored)", count)
	}
	if skipped := reporter.Summary().SkippedIndexed; skipped != 0 {
		t.Errorf("SkippedIndexed = %d, want 0", skipped)
	}
}

func TestScanner_DialFailureFailsRun(t *testing.T) {
	r := newTestRunner(t, false)
	stats.NewReporter(r, testLogger())

	dialErr := fmt.Errorf("%w: tester@example.com: bad credentials", ErrAuth)
	dial := func() (Searcher, func(), error) {
		return nil, nil, dialErr
	}

	if _, err := NewScanner(filter.Criteria(""), dial, r, testLogger()); err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}

	r.AddStage("drain", func(ctx context.Context) error {
		for range r.Candidates() {
		}
		return nil
	})

	err := r.Start()
	if err == nil {
		t.Fatal("Start() must fail when the scan session cannot be opened")
	}
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Start() error = %v, want ErrAuth in the chain", err)
	}
}
