package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"controlline/internal/chain"
	"controlline/internal/config"
	"controlline/internal/domain"
	"controlline/internal/scheduler"
)

type stubRunner struct {
	mu    sync.Mutex
	calls []chain.ExecuteOptions
	fail  map[string]bool
}

func (r *stubRunner) Execute(ctx context.Context, opts chain.ExecuteOptions) (domain.ChainRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	if r.fail[opts.ClientID] {
		return domain.ChainRun{}, errors.New("boom")
	}
	return domain.ChainRun{Status: "completed"}, nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(runner *stubRunner) *scheduler.Scheduler {
	s := scheduler.New(runner, config.Default())
	s.Now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRunDueFiresEachClientOnce(t *testing.T) {
	runner := &stubRunner{}
	s := newTestScheduler(runner)

	s.RunDue(context.Background())
	if runner.callCount() != 3 {
		t.Fatalf("first pass made %d calls, want one per client", runner.callCount())
	}
	for _, call := range runner.calls {
		if call.Period != "2025-06" || call.Trigger != "scheduled" {
			t.Fatalf("call: %+v", call)
		}
	}

	// fired triples are remembered, a second pass is a no-op
	s.RunDue(context.Background())
	if runner.callCount() != 3 {
		t.Fatalf("second pass made extra calls: %d", runner.callCount())
	}
}

func TestRunDueRetriesFailures(t *testing.T) {
	runner := &stubRunner{fail: map[string]bool{"ip_usn_dr": true}}
	s := newTestScheduler(runner)

	s.RunDue(context.Background())
	first := runner.callCount()
	if first != 3 {
		t.Fatalf("first pass: %d calls", first)
	}

	// only the failed client is retried
	s.RunDue(context.Background())
	if runner.callCount() != first+1 {
		t.Fatalf("retry pass made %d calls total, want %d", runner.callCount(), first+1)
	}
}

func TestStartStop(t *testing.T) {
	runner := &stubRunner{}
	s := newTestScheduler(runner)
	s.Interval = 10 * time.Millisecond

	s.Start()
	deadline := time.After(time.Second)
	for runner.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("scheduler made %d calls before deadline", runner.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	s.Stop()
	after := runner.callCount()
	time.Sleep(30 * time.Millisecond)
	if runner.callCount() != after {
		t.Fatalf("scheduler still running after Stop")
	}
}
