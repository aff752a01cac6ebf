// Package render submits generation jobs to a video provider and waits for
// them to reach a terminal state.
package render

import (
	"context"
	"errors"
	"fmt"
)

// Quality is the provider rendering tier.
type Quality string

const (
	QualityFast    Quality = "fast"
	QualityQuality Quality = "quality"
)

// Flag is the provider-reported status of a job, before classification.
type Flag int

const (
	FlagPending Flag = iota
	FlagRunning
	FlagSucceeded
	FlagFailed
)

func (f Flag) String() string {
	switch f {
	case FlagPending:
		return "pending"
	case FlagRunning:
		return "running"
	case FlagSucceeded:
		return "succeeded"
	case FlagFailed:
		return "failed"
	}
	return fmt.Sprintf("flag(%d)", int(f))
}

// Request describes one render.
type Request struct {
	Prompt      string
	Duration    int // seconds
	Quality     Quality
	AspectRatio string
}

// ProviderStatus is one status read of a job.
type ProviderStatus struct {
	Flag       Flag
	ResultURLs []string
	Message    string
}

// Provider is the external render service.
type Provider interface {
	// Submit starts a new render and returns the provider job id.
	Submit(ctx context.Context, req Request) (string, error)
	// Extend continues the output of an existing job with a new prompt.
	Extend(ctx context.Context, jobID, prompt string) (string, error)
	// Status reads the current state of a job.
	Status(ctx context.Context, jobID string) (ProviderStatus, error)
}

// ErrSubmissionFailed marks failures that happened before any provider job existed.
var ErrSubmissionFailed = errors.New("render submission failed")

// ErrInvalidRequest is returned for requests the provider would reject.
var ErrInvalidRequest = errors.New("invalid render request")

// SubmissionError wraps the cause of a failed submit or extend call.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() []error { return []error{ErrSubmissionFailed, e.Err} }
