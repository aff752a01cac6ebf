// internal/pipeline/orchestrator.go

// Package pipeline runs one reel from prompt to published post:
//
//	generating_content -> awaiting_render -> post_producing -> publishing -> done
//
// A failure in any stage ends the run; there is no orchestrator-level retry.
// In dev mode the run stops after post-production and keeps the artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-reels/internal/chain"
	"github.com/tendant/simple-reels/internal/img"
	"github.com/tendant/simple-reels/internal/postprod"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/pkg/schema"
)

// Chainer renders a list of segments into one clip.
type Chainer interface {
	Extend(ctx context.Context, segments []chain.Segment) (*chain.Result, error)
	Resume(ctx context.Context, jobID string, segments []chain.Segment) (*chain.Result, error)
}

// Narrator turns a script into an audio file inside dir.
type Narrator interface {
	Synthesize(ctx context.Context, script, dir string) (string, error)
}

// Finisher is the post-production step.
type Finisher interface {
	Process(ctx context.Context, in postprod.Input) (string, error)
	Cover(ctx context.Context, video, dst string) ([]img.CoverOutput, error)
}

// Publisher fans a finished artifact out to targets.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Report, error)
}

// Events receives lifecycle notifications.
type Events interface {
	StageChanged(ev schema.StageEvent)
	RunFinished(ev schema.RunDone)
}

// Deps are the collaborators of a run. Chain and Broker are factories so each
// run gets its own work directory and its own dedup memory.
type Deps struct {
	Chain  func(workDir string) Chainer
	Voice  Narrator
	Post   Finisher
	Broker func() Publisher
	Events Events
}

// Options configures the orchestrator.
type Options struct {
	// WorkDir is the parent of the per-run scratch directories.
	WorkDir string
	// OutputDir keeps the final artifact and its covers. Required in dev mode.
	OutputDir string
	Covers    bool
}

// Orchestrator drives runs.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger}
}

// Run executes one run to completion and never panics on stage failures; the
// outcome is in the returned RunResult.
func (o *Orchestrator) Run(ctx context.Context, run Run) *RunResult {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	state := newRunState(run.ID, o.deps.Events)
	logger := o.logger.With("run_id", run.ID)
	res := &RunResult{RunID: run.ID}

	finish := func(err error) *RunResult {
		if err != nil {
			var se *StageError
			if errors.As(err, &se) {
				res.FailedStage = se.Stage
			}
			res.Err = err
			ft := classifyError(err)
			state.fail(res.FailedStage, err, ft)
			logger.Error("run failed", "stage", res.FailedStage, "failure_type", ft, "err", err)
		} else {
			res.Stage = schema.StageDone
			state.enter(schema.StageDone)
			logger.Info("run complete", "artifact", res.ArtifactPath, "processing_time_ms", state.elapsedMs())
		}
		res.Lifecycle = state.lifecycle
		o.deps.Events.RunFinished(state.done(res, run.DevMode))
		return res
	}

	workDir, err := os.MkdirTemp(o.opts.WorkDir, "run-"+run.ID+"-")
	if err != nil {
		return finish(&StageError{Stage: schema.StageGeneratingContent, Err: fmt.Errorf("create work dir: %w", err)})
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("cleanup failed", "work_dir", workDir, "err", err)
		}
	}()

	// generating_content
	res.Stage = schema.StageGeneratingContent
	state.enter(res.Stage)
	segments, err := o.generateContent(run)
	if err != nil {
		return finish(&StageError{Stage: res.Stage, Err: err})
	}
	logger.Info("content ready", "segments", len(segments), "resume_task_id", run.TaskID)

	// awaiting_render
	res.Stage = schema.StageAwaitingRender
	state.enter(res.Stage)
	chained, err := o.awaitRender(ctx, run, workDir, segments)
	if err != nil {
		return finish(&StageError{Stage: res.Stage, Err: err})
	}
	res.Chain = chained
	if chained.Partial {
		logger.Warn("render chain truncated", "completed", chained.Completed, "total", chained.Total, "reason", chained.StopReason)
	}

	// post_producing
	res.Stage = schema.StagePostProducing
	state.enter(res.Stage)
	final, err := o.postProduce(ctx, run, workDir, chained.Artifact, logger)
	if err != nil {
		return finish(&StageError{Stage: res.Stage, Err: err})
	}
	res.ArtifactPath = final

	if o.opts.OutputDir != "" {
		kept, err := o.keep(ctx, run.ID, final, logger)
		if err != nil {
			return finish(&StageError{Stage: res.Stage, Err: err})
		}
		res.ArtifactPath = kept.video
		res.CoverPaths = kept.covers
	}
	if run.DevMode {
		if o.opts.OutputDir == "" {
			return finish(&StageError{Stage: res.Stage, Err: errors.New("dev mode needs an output directory")})
		}
		logger.Info("dev mode, skipping publish", "artifact", res.ArtifactPath)
		return finish(nil)
	}

	// publishing
	res.Stage = schema.StagePublishing
	state.enter(res.Stage)
	artifact := publish.Artifact{LocalPath: res.ArtifactPath}
	if final == chained.Artifact && chained.Completed == 1 && len(chained.Outcomes) > 0 {
		// Untouched single render: the provider URL is already public.
		artifact.RemoteURL = chained.Outcomes[len(chained.Outcomes)-1].ResultURL
	}
	report, err := o.deps.Broker().Publish(ctx, publish.Request{
		Artifact:      artifact,
		Targets:       run.Targets,
		Text:          run.Content.PostText,
		ScheduledTime: run.ScheduledTime,
	})
	if err != nil {
		return finish(&StageError{Stage: res.Stage, Err: err})
	}
	res.Report = report
	state.report = report
	logger.Info("publish report", "summary", report.Summary())
	if err := report.Err(); err != nil {
		return finish(&StageError{Stage: res.Stage, Err: err})
	}
	return finish(nil)
}

func (o *Orchestrator) generateContent(run Run) ([]chain.Segment, error) {
	segments := run.Content.Segments()
	if len(segments) == 0 {
		if run.TaskID == "" {
			return nil, ErrNoContent
		}
		segments = []chain.Segment{{}}
	}
	return segments, nil
}

func (o *Orchestrator) awaitRender(ctx context.Context, run Run, workDir string, segments []chain.Segment) (*chain.Result, error) {
	c := o.deps.Chain(workDir)
	if run.TaskID != "" {
		return c.Resume(ctx, run.TaskID, segments)
	}
	return c.Extend(ctx, segments)
}

func (o *Orchestrator) postProduce(ctx context.Context, run Run, workDir, video string, logger *slog.Logger) (string, error) {
	in := postprod.Input{VideoPath: video, Script: run.Content.VoiceoverScript}
	if o.deps.Voice != nil && run.Content.VoiceoverScript != "" {
		audio, err := o.deps.Voice.Synthesize(ctx, run.Content.VoiceoverScript, workDir)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Error("voiceover failed, continuing without audio", "err", err)
		} else {
			in.AudioPath = audio
		}
	}
	if o.deps.Post == nil {
		return video, nil
	}
	return o.deps.Post.Process(ctx, in)
}

type keptFiles struct {
	video  string
	covers []string
}

// keep moves the final video into the output directory and cuts its covers there.
func (o *Orchestrator) keep(ctx context.Context, runID, video string, logger *slog.Logger) (keptFiles, error) {
	if err := os.MkdirAll(o.opts.OutputDir, 0o755); err != nil {
		return keptFiles{}, fmt.Errorf("ensure output directory: %w", err)
	}
	dst := filepath.Join(o.opts.OutputDir, "reel-"+runID+filepath.Ext(video))
	if err := moveFile(video, dst); err != nil {
		return keptFiles{}, fmt.Errorf("keep artifact: %w", err)
	}
	kept := keptFiles{video: dst}
	logger.Info("artifact saved", "path", dst)

	if o.opts.Covers && o.deps.Post != nil {
		covers, err := o.deps.Post.Cover(ctx, dst, filepath.Join(o.opts.OutputDir, "reel-"+runID+".jpg"))
		if err != nil {
			logger.Warn("cover generation failed", "err", err)
		}
		for _, c := range covers {
			kept.covers = append(kept.covers, c.Path)
		}
	}
	return kept, nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

type nopEvents struct{}

func (nopEvents) StageChanged(schema.StageEvent) {}
func (nopEvents) RunFinished(schema.RunDone)     {}

// runState records the lifecycle of a run, like a job's processing state.
type runState struct {
	runID      string
	events     Events
	start      time.Time
	stageStart time.Time
	lifecycle  []schema.StageEvent
	report     *publish.Report
}

func newRunState(runID string, events Events) *runState {
	now := time.Now()
	return &runState{runID: runID, events: events, start: now, stageStart: now}
}

func (s *runState) enter(stage schema.Stage) {
	now := time.Now()
	ev := schema.StageEvent{
		RunID:      s.runID,
		Stage:      stage,
		StageStart: now.UnixMilli(),
		HappenedAt: now.Unix(),
	}
	s.stageStart = now
	s.lifecycle = append(s.lifecycle, ev)
	s.events.StageChanged(ev)
}

func (s *runState) fail(stage schema.Stage, err error, ft schema.FailureType) {
	now := time.Now()
	ev := schema.StageEvent{
		RunID:       s.runID,
		Stage:       schema.StageFailed,
		FailedStage: stage,
		StageStart:  s.stageStart.UnixMilli(),
		StageEnd:    now.UnixMilli(),
		Error:       err.Error(),
		FailureType: ft,
		HappenedAt:  now.Unix(),
	}
	s.lifecycle = append(s.lifecycle, ev)
	s.events.StageChanged(ev)
}

func (s *runState) elapsedMs() int64 {
	return time.Since(s.start).Milliseconds()
}

func (s *runState) done(res *RunResult, devMode bool) schema.RunDone {
	done := schema.RunDone{
		ID:               res.RunID,
		Stage:            res.Stage,
		FailedStage:      res.FailedStage,
		DevMode:          devMode,
		ArtifactPath:     res.ArtifactPath,
		Lifecycle:        s.lifecycle,
		ProcessingTimeMs: s.elapsedMs(),
		HappenedAt:       time.Now().Unix(),
	}
	if res.Err != nil {
		done.Stage = schema.StageFailed
		done.Error = res.Err.Error()
		done.FailureType = classifyError(res.Err)
	}
	if c := res.Chain; c != nil {
		done.LastJobID = c.LastJobID
		done.SegmentsCompleted = c.Completed
		done.SegmentsTotal = c.Total
		done.Partial = c.Partial
	}
	if r := s.report; r != nil {
		done.HostedURL = r.HostedURL
		for _, t := range r.Results {
			tr := schema.TargetResult{
				Platform:      t.Target.Platform,
				DestinationID: t.Target.DestinationID,
				Status:        string(t.Status),
				Reason:        t.Reason,
				Attempts:      t.Attempts,
				Deduplicated:  t.Deduplicated,
			}
			if t.Receipt != nil {
				tr.SubmissionID = t.Receipt.ID
			}
			done.Targets = append(done.Targets, tr)
		}
	}
	return done
}
