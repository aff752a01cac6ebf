package render

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval matches the provider's recommended status cadence.
const DefaultPollInterval = 15 * time.Second

// Clock is the time source of the poll loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StatusReader is the part of Provider the poller needs.
type StatusReader interface {
	Status(ctx context.Context, jobID string) (ProviderStatus, error)
}

// Poller waits for jobs to reach a terminal state.
type Poller struct {
	reader   StatusReader
	interval time.Duration
	clock    Clock
	logger   *slog.Logger
}

// NewPoller creates a poller reading status every interval.
func NewPoller(r StatusReader, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{reader: r, interval: interval, clock: realClock{}, logger: logger}
}

// WithClock replaces the time source.
func (p *Poller) WithClock(c Clock) *Poller {
	p.clock = c
	return p
}

// Interval returns the configured poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// PollToTerminal reads the job status on a fixed interval until the provider
// reports success or failure, the job deadline passes, or ctx is done.
// Read errors are transient and retried on the next tick.
func (p *Poller) PollToTerminal(ctx context.Context, job *Job) Outcome {
	deadline := job.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	logger := p.logger.With("job_id", job.ID)
	start := p.clock.Now()
	out := Outcome{JobID: job.ID}

	finish := func(state State, reason string) Outcome {
		out.State = state
		out.Reason = reason
		out.Elapsed = p.clock.Now().Sub(start)
		return out
	}

	expired := func() bool { return p.clock.Now().Sub(start) >= deadline }
	timedOut := func() Outcome {
		logger.Warn("render job timed out", "deadline", deadline, "polls", out.Polls)
		return finish(StateTimedOut, "deadline exceeded")
	}

	for {
		if ctx.Err() != nil {
			return finish(StateCancelled, ctx.Err().Error())
		}
		if out.Polls > 0 && expired() {
			return timedOut()
		}

		out.Polls++
		status, err := p.read(ctx, job.ID, deadline+p.interval-p.clock.Now().Sub(start))
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return finish(StateCancelled, ctx.Err().Error())
			}
			logger.Warn("render poll failed, retrying on next tick", "poll", out.Polls, "err", err)
		case status.Flag == FlagSucceeded:
			if len(status.ResultURLs) == 0 || status.ResultURLs[0] == "" {
				logger.Error("render reported success without a result")
				return finish(StateFailed, "malformed success: empty result list")
			}
			if len(status.ResultURLs) > 1 {
				logger.Debug("ignoring extra result urls", "count", len(status.ResultURLs))
			}
			out.ResultURL = status.ResultURLs[0]
			logger.Info("render job succeeded", "polls", out.Polls)
			return finish(StateSucceeded, "")
		case status.Flag == FlagFailed:
			reason := status.Message
			if reason == "" {
				reason = "provider reported failure"
			}
			logger.Warn("render job failed", "reason", reason, "polls", out.Polls)
			return finish(StateFailed, reason)
		default:
			logger.Debug("render job in progress", "flag", status.Flag, "poll", out.Polls)
		}

		if expired() {
			return timedOut()
		}

		select {
		case <-ctx.Done():
			return finish(StateCancelled, ctx.Err().Error())
		case <-p.clock.After(p.interval):
		}
	}
}

// read runs one status read limited to budget.
func (p *Poller) read(ctx context.Context, jobID string, budget time.Duration) (ProviderStatus, error) {
	if budget <= 0 {
		budget = p.interval
	}
	readCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return p.reader.Status(readCtx, jobID)
}
