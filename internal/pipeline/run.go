package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tendant/simple-reels/internal/chain"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/render"
	"github.com/tendant/simple-reels/internal/retry"
	"github.com/tendant/simple-reels/pkg/schema"
)

// ErrNoContent is returned when a run has neither a prompt nor scenes.
var ErrNoContent = errors.New("run has no prompt or scenes")

// Content is what gets rendered, narrated and posted. Scenes, when present,
// replace Prompt: the first scene starts the render and each later scene
// extends it.
type Content struct {
	Prompt          string
	Scenes          []string
	VoiceoverScript string
	PostText        string
}

// Segments returns the chain segments for c.
func (c Content) Segments() []chain.Segment {
	var prompts []string
	for _, s := range c.Scenes {
		if s = strings.TrimSpace(s); s != "" {
			prompts = append(prompts, s)
		}
	}
	if len(prompts) == 0 {
		if p := strings.TrimSpace(c.Prompt); p != "" {
			prompts = []string{p}
		}
	}
	segments := make([]chain.Segment, len(prompts))
	for i, p := range prompts {
		segments[i] = chain.Segment{Prompt: p}
	}
	return segments
}

// Run is one orchestrator invocation.
type Run struct {
	ID      string
	Content Content
	// TaskID resumes an already-submitted render job instead of submitting.
	TaskID        string
	DevMode       bool
	Targets       []publish.Target
	ScheduledTime string
}

// RunResult is what a run produced. Stage is the last stage reached; when
// Err is set, FailedStage names where it happened.
type RunResult struct {
	RunID        string
	Stage        schema.Stage
	FailedStage  schema.Stage
	Err          error
	Chain        *chain.Result
	ArtifactPath string
	CoverPaths   []string
	Report       *publish.Report
	Lifecycle    []schema.StageEvent
}

func (r *RunResult) Succeeded() bool { return r.Err == nil && r.Stage == schema.StageDone }

// StageError ties a failure to the stage it happened in.
type StageError struct {
	Stage schema.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func classifyError(err error) schema.FailureType {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNoContent),
		errors.Is(err, render.ErrInvalidRequest),
		errors.Is(err, publish.ErrNoTargets),
		errors.Is(err, publish.ErrInvalidTarget),
		errors.Is(err, publish.ErrUnsupportedPlatform):
		return schema.FailureTypeValidation
	case errors.Is(err, context.Canceled):
		return schema.FailureTypePermanent
	case errors.Is(err, context.DeadlineExceeded), retry.IsTransient(err):
		return schema.FailureTypeRetryable
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return schema.FailureTypeRetryable
	}

	var failed *publish.TargetsFailedError
	if errors.As(err, &failed) {
		for _, res := range failed.Failed {
			if strings.Contains(res.Reason, "gave up after") {
				return schema.FailureTypeRetryable
			}
		}
		return schema.FailureTypePermanent
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timed_out") || strings.Contains(errStr, "deadline exceeded") {
		return schema.FailureTypeRetryable
	}
	return schema.FailureTypePermanent
}
