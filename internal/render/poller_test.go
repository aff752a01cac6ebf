package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type statusStep struct {
	status ProviderStatus
	err    error
}

// scriptedReader replays steps in order and repeats the last one forever.
type scriptedReader struct {
	mu    sync.Mutex
	steps []statusStep
	calls int
}

func (r *scriptedReader) Status(ctx context.Context, jobID string) (ProviderStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.calls
	if i >= len(r.steps) {
		i = len(r.steps) - 1
	}
	r.calls++
	return r.steps[i].status, r.steps[i].err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPoller(r StatusReader, interval time.Duration) (*Poller, *fakeClock) {
	clock := newFakeClock()
	return NewPoller(r, interval, discardLogger()).WithClock(clock), clock
}

func TestPollToTerminalTimesOutAtDeadline(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagRunning}}}}
	poller, _ := newTestPoller(reader, 15*time.Second)

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job-1", Deadline: 60 * time.Second})

	if out.State != StateTimedOut {
		t.Fatalf("expected timed_out, got %s (%s)", out.State, out.Reason)
	}
	if out.Polls != 4 || reader.calls != 4 {
		t.Fatalf("expected 4 polls, got outcome=%d reader=%d", out.Polls, reader.calls)
	}
	if out.Elapsed != 60*time.Second {
		t.Fatalf("expected elapsed 60s, got %v", out.Elapsed)
	}
}

func TestPollToTerminalReturnsWithinDeadlinePlusInterval(t *testing.T) {
	interval := 15 * time.Second
	for _, deadline := range []time.Duration{time.Second, 14 * time.Second, 15 * time.Second, 31 * time.Second, 90 * time.Second} {
		reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagPending}}}}
		poller, _ := newTestPoller(reader, interval)
		out := poller.PollToTerminal(context.Background(), &Job{ID: "j", Deadline: deadline})
		if !out.State.Terminal() {
			t.Fatalf("deadline %v: state %s is not terminal", deadline, out.State)
		}
		if out.Elapsed < deadline || out.Elapsed > deadline+interval {
			t.Fatalf("deadline %v: elapsed %v outside [D, D+interval]", deadline, out.Elapsed)
		}
	}
}

func TestPollToTerminalSucceedsWithFirstURL(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{
		{status: ProviderStatus{Flag: FlagPending}},
		{status: ProviderStatus{Flag: FlagRunning}},
		{status: ProviderStatus{Flag: FlagSucceeded, ResultURLs: []string{"https://cdn/a.mp4", "https://cdn/b.mp4"}}},
	}}
	poller, _ := newTestPoller(reader, 15*time.Second)

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: time.Hour})

	if !out.Succeeded() {
		t.Fatalf("expected success, got %s", out.State)
	}
	if out.ResultURL != "https://cdn/a.mp4" {
		t.Fatalf("expected first url, got %q", out.ResultURL)
	}
	if out.Polls != 3 || out.Elapsed != 30*time.Second {
		t.Fatalf("unexpected polls=%d elapsed=%v", out.Polls, out.Elapsed)
	}
}

func TestPollToTerminalReclassifiesEmptySuccess(t *testing.T) {
	for _, urls := range [][]string{nil, {}, {""}} {
		reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagSucceeded, ResultURLs: urls}}}}
		poller, _ := newTestPoller(reader, time.Second)

		out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: time.Minute})

		if out.State != StateFailed {
			t.Fatalf("urls %v: expected failed, got %s", urls, out.State)
		}
		if !strings.Contains(out.Reason, "malformed success") {
			t.Fatalf("unexpected reason %q", out.Reason)
		}
		if out.ResultURL != "" {
			t.Fatalf("failed outcome must not carry a url, got %q", out.ResultURL)
		}
		if reader.calls != 1 {
			t.Fatalf("malformed success must not be polled again, got %d calls", reader.calls)
		}
	}
}

func TestPollToTerminalRetriesTransientErrors(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{
		{err: errors.New("connection reset")},
		{err: errors.New("decode response: unexpected EOF")},
		{status: ProviderStatus{Flag: FlagSucceeded, ResultURLs: []string{"https://cdn/v.mp4"}}},
	}}
	poller, _ := newTestPoller(reader, 15*time.Second)

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: time.Hour})

	if !out.Succeeded() || out.Polls != 3 {
		t.Fatalf("expected success after 3 polls, got %s after %d", out.State, out.Polls)
	}
}

func TestPollToTerminalReportsProviderFailure(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagFailed, Message: "content policy"}}}}
	poller, _ := newTestPoller(reader, 15*time.Second)

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: time.Hour})

	if out.State != StateFailed || out.Reason != "content policy" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestPollToTerminalCancelled(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagRunning}}}}
	poller, _ := newTestPoller(reader, 15*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := poller.PollToTerminal(ctx, &Job{ID: "job", Deadline: time.Hour})

	if out.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", out.State)
	}
	if reader.calls != 0 {
		t.Fatalf("no poll expected after cancellation, got %d", reader.calls)
	}
}

func TestPollToTerminalCancelledWhileWaiting(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagRunning}}}}
	poller := NewPoller(reader, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Outcome, 1)
	go func() { done <- poller.PollToTerminal(ctx, &Job{ID: "job", Deadline: 2 * time.Hour}) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case out := <-done:
		if out.State != StateCancelled || out.Polls != 1 {
			t.Fatalf("unexpected outcome %+v", out)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

// blockingReader holds every read until its context ends.
type blockingReader struct{ calls int32 }

func (r *blockingReader) Status(ctx context.Context, jobID string) (ProviderStatus, error) {
	atomic.AddInt32(&r.calls, 1)
	select {
	case <-ctx.Done():
		return ProviderStatus{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return ProviderStatus{Flag: FlagRunning}, nil
	}
}

func TestPollToTerminalBoundsSlowReads(t *testing.T) {
	interval := 10 * time.Millisecond
	deadline := 50 * time.Millisecond
	reader := &blockingReader{}
	poller := NewPoller(reader, interval, discardLogger())

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: deadline})

	if out.State != StateTimedOut {
		t.Fatalf("expected timed_out, got %s (%s)", out.State, out.Reason)
	}
	if out.Elapsed < deadline || out.Elapsed > deadline+interval+250*time.Millisecond {
		t.Fatalf("elapsed %v not near deadline %v plus interval %v", out.Elapsed, deadline, interval)
	}
	if n := atomic.LoadInt32(&reader.calls); n != 1 {
		t.Fatalf("expected a single read, got %d", n)
	}
}

func TestPollToTerminalChecksDeadlineBeforeSleeping(t *testing.T) {
	reader := &scriptedReader{steps: []statusStep{{status: ProviderStatus{Flag: FlagRunning}}}}
	clock := newFakeClock()
	slow := &slowReader{inner: reader, clock: clock, cost: 70 * time.Second}
	poller := NewPoller(slow, 15*time.Second, discardLogger()).WithClock(clock)

	out := poller.PollToTerminal(context.Background(), &Job{ID: "job", Deadline: 60 * time.Second})

	if out.State != StateTimedOut || out.Polls != 1 {
		t.Fatalf("expected timeout after one read, got %s after %d", out.State, out.Polls)
	}
	if out.Elapsed != 70*time.Second {
		t.Fatalf("expected no extra sleep after the read, elapsed %v", out.Elapsed)
	}
}

// slowReader advances the fake clock by cost on every read.
type slowReader struct {
	inner StatusReader
	clock *fakeClock
	cost  time.Duration
}

func (r *slowReader) Status(ctx context.Context, jobID string) (ProviderStatus, error) {
	r.clock.After(r.cost)
	return r.inner.Status(ctx, jobID)
}
