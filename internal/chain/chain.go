// internal/chain/chain.go

// Package chain renders a sequence of prompts as one continuous clip. The
// first prompt starts a new render job; each later prompt extends the job
// before it, so segment i is only submitted once segment i-1 has succeeded.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/simple-reels/internal/render"
)

// ErrChainFailed means not even the first segment produced a clip.
var ErrChainFailed = errors.New("chain failed")

// DefaultCrossfade is the transition used in smooth mode.
const DefaultCrossfade = 500 * time.Millisecond

// Segment is one prompt in a chain. SourceJobID is the job it extends and is
// empty for the first segment. JobID is set once the segment was submitted.
type Segment struct {
	Prompt      string
	SourceJobID string
	JobID       string
}

// Submitter starts and extends render jobs.
type Submitter interface {
	Submit(ctx context.Context, req render.Request) (*render.Job, error)
	Extend(ctx context.Context, jobID, prompt string) (*render.Job, error)
	Resume(jobID string) *render.Job
}

// Poller waits for a job to finish.
type Poller interface {
	PollToTerminal(ctx context.Context, job *render.Job) render.Outcome
}

// Fetcher downloads a render result into dir.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// Stitcher joins clips into one file.
type Stitcher interface {
	Concat(ctx context.Context, clips []string, output string) error
	ConcatCrossfade(ctx context.Context, clips []string, output string, fade time.Duration) error
}

// Options configures an Extender.
type Options struct {
	// Request carries duration, quality and aspect ratio for the first segment.
	Request render.Request
	// WorkDir receives downloaded clips and the joined artifact.
	WorkDir string
	// Smooth re-encodes with a crossfade between segments.
	Smooth    bool
	Crossfade time.Duration
}

// Result describes the artifact a chain produced.
type Result struct {
	Artifact  string
	Segments  []Segment
	Outcomes  []render.Outcome
	Completed int
	Total     int
	LastJobID string
	// Partial is set when a later segment failed and the artifact holds only
	// the completed prefix.
	Partial    bool
	StopReason string
}

// Extender drives a chain of render jobs.
type Extender struct {
	client   Submitter
	poller   Poller
	fetcher  Fetcher
	stitcher Stitcher
	opts     Options
	logger   *slog.Logger
}

// NewExtender wires an Extender.
func NewExtender(client Submitter, poller Poller, fetcher Fetcher, stitcher Stitcher, opts Options, logger *slog.Logger) *Extender {
	if opts.Crossfade <= 0 {
		opts.Crossfade = DefaultCrossfade
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extender{client: client, poller: poller, fetcher: fetcher, stitcher: stitcher, opts: opts, logger: logger}
}

// Extend renders segments in order and joins the completed prefix.
func (e *Extender) Extend(ctx context.Context, segments []Segment) (*Result, error) {
	return e.run(ctx, "", segments)
}

// Resume treats jobID as the already-submitted first segment and continues
// the chain from there. segments[0] describes that job; its prompt is not sent.
func (e *Extender) Resume(ctx context.Context, jobID string, segments []Segment) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: resume job id is empty", ErrChainFailed)
	}
	if len(segments) == 0 {
		segments = []Segment{{}}
	}
	return e.run(ctx, jobID, segments)
}

func (e *Extender) run(ctx context.Context, resumeID string, segments []Segment) (*Result, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrChainFailed)
	}
	res := &Result{Total: len(segments)}
	var clips []string

	abort := func(err error) (*Result, error) {
		removeAll(e.logger, clips)
		return nil, err
	}

	for i, seg := range segments {
		logger := e.logger.With("segment", i+1, "total", len(segments))
		seg.SourceJobID = res.LastJobID

		var job *render.Job
		var err error
		switch {
		case i == 0 && resumeID != "":
			job = e.client.Resume(resumeID)
			logger.Info("resuming existing render job", "job_id", resumeID)
		case i == 0:
			req := e.opts.Request
			req.Prompt = seg.Prompt
			job, err = e.client.Submit(ctx, req)
		default:
			job, err = e.client.Extend(ctx, res.LastJobID, seg.Prompt)
		}
		if err != nil {
			if i == 0 {
				return abort(fmt.Errorf("%w: first segment: %w", ErrChainFailed, err))
			}
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			logger.Warn("extend submission failed, keeping completed prefix", "err", err)
			res.StopReason = err.Error()
			break
		}
		seg.JobID = job.ID

		outcome := e.poller.PollToTerminal(ctx, job)
		res.Outcomes = append(res.Outcomes, outcome)
		if outcome.State == render.StateCancelled {
			return abort(ctx.Err())
		}
		if !outcome.Succeeded() {
			if i == 0 {
				return abort(fmt.Errorf("%w: first segment %s: %s", ErrChainFailed, outcome.State, outcome.Reason))
			}
			logger.Warn("segment did not succeed, keeping completed prefix", "state", outcome.State, "reason", outcome.Reason)
			res.StopReason = fmt.Sprintf("segment %d %s: %s", i+1, outcome.State, outcome.Reason)
			break
		}

		clip, err := e.fetcher.Fetch(ctx, outcome.ResultURL, e.opts.WorkDir)
		if err != nil {
			if i == 0 {
				return abort(fmt.Errorf("%w: first segment: %w", ErrChainFailed, err))
			}
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			logger.Warn("segment download failed, keeping completed prefix", "err", err)
			res.StopReason = err.Error()
			break
		}

		clips = append(clips, clip)
		res.Segments = append(res.Segments, seg)
		res.LastJobID = job.ID
		res.Completed++
		logger.Info("segment complete", "job_id", job.ID, "clip", clip)
	}

	res.Partial = res.Completed < res.Total

	if len(clips) == 1 {
		res.Artifact = clips[0]
		return res, nil
	}

	output := filepath.Join(e.opts.WorkDir, fmt.Sprintf("chain-%s.mp4", res.LastJobID))
	if err := e.join(ctx, clips, output); err != nil {
		os.Remove(output)
		return abort(fmt.Errorf("%w: join %d clips: %w", ErrChainFailed, len(clips), err))
	}
	removeAll(e.logger, clips)
	res.Artifact = output
	e.logger.Info("chain joined", "completed", res.Completed, "total", res.Total, "artifact", output, "partial", res.Partial)
	return res, nil
}

func (e *Extender) join(ctx context.Context, clips []string, output string) error {
	if e.opts.Smooth {
		err := e.stitcher.ConcatCrossfade(ctx, clips, output, e.opts.Crossfade)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("crossfade failed, falling back to plain concat", "err", err)
	}
	return e.stitcher.Concat(ctx, clips, output)
}

func removeAll(logger *slog.Logger, paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove clip", "path", p, "err", err)
		}
	}
}
