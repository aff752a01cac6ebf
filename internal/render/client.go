package render

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultDeadline bounds a single job when no deadline is configured.
const DefaultDeadline = 10 * time.Minute

// supportedDurations lists the (quality, duration) pairs the provider accepts.
var supportedDurations = map[Quality][]int{
	QualityFast:    {8},
	QualityQuality: {8},
}

// Validate checks a request before anything is sent.
func Validate(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)
	}
	durations, ok := supportedDurations[req.Quality]
	if !ok {
		return fmt.Errorf("%w: unsupported quality %q", ErrInvalidRequest, req.Quality)
	}
	if !slices.Contains(durations, req.Duration) {
		return fmt.Errorf("%w: duration %ds not available for quality %q", ErrInvalidRequest, req.Duration, req.Quality)
	}
	return nil
}

// Client submits jobs. It never retries: a failed submission produced no
// billable work and is surfaced to the caller as-is.
type Client struct {
	provider Provider
	deadline time.Duration
	logger   *slog.Logger
}

// NewClient wraps a provider. Jobs it creates carry the given poll deadline.
func NewClient(p Provider, deadline time.Duration, logger *slog.Logger) *Client {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{provider: p, deadline: deadline, logger: logger}
}

// Submit validates req and issues exactly one submit call.
func (c *Client) Submit(ctx context.Context, req Request) (*Job, error) {
	if err := Validate(req); err != nil {
		return nil, &SubmissionError{Op: "submit", Err: err}
	}
	id, err := c.provider.Submit(ctx, req)
	if err != nil {
		return nil, &SubmissionError{Op: "submit", Err: err}
	}
	if id == "" {
		return nil, &SubmissionError{Op: "submit", Err: fmt.Errorf("provider returned an empty job id")}
	}
	c.logger.Info("render job submitted", "job_id", id, "duration", req.Duration, "quality", req.Quality)
	return NewJob(id, c.deadline), nil
}

// Extend issues exactly one extend call continuing jobID.
func (c *Client) Extend(ctx context.Context, jobID, prompt string) (*Job, error) {
	if jobID == "" {
		return nil, &SubmissionError{Op: "extend", Err: fmt.Errorf("%w: source job id is empty", ErrInvalidRequest)}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, &SubmissionError{Op: "extend", Err: fmt.Errorf("%w: prompt is empty", ErrInvalidRequest)}
	}
	id, err := c.provider.Extend(ctx, jobID, prompt)
	if err != nil {
		return nil, &SubmissionError{Op: "extend", Err: err}
	}
	if id == "" {
		return nil, &SubmissionError{Op: "extend", Err: fmt.Errorf("provider returned an empty job id")}
	}
	c.logger.Info("render extend submitted", "job_id", id, "source_job_id", jobID)
	return NewJob(id, c.deadline), nil
}

// Resume adopts a job that was submitted outside this process.
func (c *Client) Resume(jobID string) *Job {
	return NewJob(jobID, c.deadline)
}
