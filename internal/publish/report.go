package publish

import (
	"fmt"
	"strings"
)

// Status is the final state of one target.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome for one distinct target.
type Result struct {
	Target   Target
	Status   Status
	Reason   string
	Attempts int
	Receipt  *Receipt
	// Deduplicated is set when an identical delivery was already dispatched
	// by this broker and no call was made.
	Deduplicated bool
}

// Report aggregates one Publish call. Results follow the order of the
// deduplicated targets.
type Report struct {
	HostedURL string
	Results   []Result
}

func (r *Report) Succeeded() bool {
	return len(r.Failures()) == 0
}

func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status != StatusSuccess {
			out = append(out, res)
		}
	}
	return out
}

// Summary renders "tiktok: success, youtube: failure (HTTP 400 ...)".
func (r *Report) Summary() string {
	parts := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		s := fmt.Sprintf("%s: %s", res.Target, res.Status)
		if res.Status == StatusFailure && res.Reason != "" {
			s += " (" + res.Reason + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Err returns nil when every target succeeded.
func (r *Report) Err() error {
	failed := r.Failures()
	if len(failed) == 0 {
		return nil
	}
	return &TargetsFailedError{Failed: failed, Total: len(r.Results)}
}

// TargetsFailedError lists the targets that could not be published.
type TargetsFailedError struct {
	Failed []Result
	Total  int
}

func (e *TargetsFailedError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Target.String()
	}
	return fmt.Sprintf("publish failed for %d of %d targets: %s", len(e.Failed), e.Total, strings.Join(names, ", "))
}

// Partial reports whether at least one target succeeded.
func (e *TargetsFailedError) Partial() bool {
	return len(e.Failed) < e.Total
}
