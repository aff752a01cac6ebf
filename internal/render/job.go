// internal/render/job.go

package render

import "time"

// State represents the lifecycle state of a render job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Job is a submitted unit of provider work. It is owned by the poll loop
// until that loop returns an Outcome.
type Job struct {
	ID          string
	SubmittedAt time.Time
	Deadline    time.Duration
}

// NewJob stamps a provider job id with the submission time.
func NewJob(id string, deadline time.Duration) *Job {
	return &Job{
		ID:          id,
		SubmittedAt: time.Now(),
		Deadline:    deadline,
	}
}

// Outcome is the terminal result of polling a job.
type Outcome struct {
	JobID     string
	State     State
	ResultURL string
	Reason    string
	Polls     int
	Elapsed   time.Duration
}

// Succeeded reports whether the job produced a result.
func (o Outcome) Succeeded() bool { return o.State == StateSucceeded }
