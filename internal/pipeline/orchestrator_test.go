package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tendant/simple-reels/internal/chain"
	"github.com/tendant/simple-reels/internal/img"
	"github.com/tendant/simple-reels/internal/postprod"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/render"
	"github.com/tendant/simple-reels/internal/retry"
	"github.com/tendant/simple-reels/pkg/schema"
)

type fakeChain struct {
	workDir    string
	extended   [][]chain.Segment
	resumedID  string
	err        error
	resultURLs []string
}

func (c *fakeChain) run(segments []chain.Segment) (*chain.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	path := filepath.Join(c.workDir, "chain.mp4")
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		return nil, err
	}
	res := &chain.Result{Artifact: path, Segments: segments, Completed: len(segments), Total: len(segments), LastJobID: "job-1"}
	for i := range segments {
		url := fmt.Sprintf("https://cdn.example/%d.mp4", i)
		res.Outcomes = append(res.Outcomes, render.Outcome{State: render.StateSucceeded, ResultURL: url})
	}
	return res, nil
}

func (c *fakeChain) Extend(ctx context.Context, segments []chain.Segment) (*chain.Result, error) {
	c.extended = append(c.extended, segments)
	return c.run(segments)
}

func (c *fakeChain) Resume(ctx context.Context, jobID string, segments []chain.Segment) (*chain.Result, error) {
	c.resumedID = jobID
	return c.run(segments)
}

type fakeVoice struct{ err error }

func (v *fakeVoice) Synthesize(ctx context.Context, script, dir string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	path := filepath.Join(dir, "voiceover.mp3")
	return path, os.WriteFile(path, []byte("audio"), 0644)
}

type fakeFinisher struct {
	inputs []postprod.Input
	err    error
	// rewrite makes Process produce a new file, as compose would.
	rewrite bool
	covers  int
}

func (f *fakeFinisher) Process(ctx context.Context, in postprod.Input) (string, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return "", f.err
	}
	if !f.rewrite && in.AudioPath == "" {
		return in.VideoPath, nil
	}
	out := in.VideoPath[:len(in.VideoPath)-len(filepath.Ext(in.VideoPath))] + "_with_audio.mp4"
	if err := os.WriteFile(out, []byte("composed"), 0644); err != nil {
		return "", err
	}
	os.Remove(in.VideoPath)
	return out, nil
}

func (f *fakeFinisher) Cover(ctx context.Context, video, dst string) ([]img.CoverOutput, error) {
	f.covers++
	if err := os.WriteFile(dst, []byte("jpeg"), 0644); err != nil {
		return nil, err
	}
	return []img.CoverOutput{{Name: "cover", Path: dst}}, nil
}

type fakeBroker struct {
	requests []publish.Request
	report   *publish.Report
	err      error
}

func (b *fakeBroker) Publish(ctx context.Context, req publish.Request) (*publish.Report, error) {
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if b.report != nil {
		return b.report, nil
	}
	rep := &publish.Report{HostedURL: "https://media.host/x.mp4"}
	for _, t := range req.Targets {
		rep.Results = append(rep.Results, publish.Result{Target: t, Status: publish.StatusSuccess, Attempts: 1})
	}
	return rep, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	stages []schema.Stage
	failed []schema.Stage
	done   []schema.RunDone
}

func (e *recordingEvents) StageChanged(ev schema.StageEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, ev.Stage)
	if ev.Stage == schema.StageFailed {
		e.failed = append(e.failed, ev.FailedStage)
	}
}

func (e *recordingEvents) RunFinished(ev schema.RunDone) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = append(e.done, ev)
}

type harness struct {
	chain    *fakeChain
	voice    *fakeVoice
	post     *fakeFinisher
	broker   *fakeBroker
	events   *recordingEvents
	workRoot string
	output   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		chain:    &fakeChain{},
		voice:    &fakeVoice{},
		post:     &fakeFinisher{},
		broker:   &fakeBroker{},
		events:   &recordingEvents{},
		workRoot: t.TempDir(),
	}
}

func (h *harness) orchestrator() *Orchestrator {
	deps := Deps{
		Chain: func(workDir string) Chainer {
			h.chain.workDir = workDir
			return h.chain
		},
		Voice:  h.voice,
		Post:   h.post,
		Broker: func() Publisher { return h.broker },
		Events: h.events,
	}
	return New(deps, Options{WorkDir: h.workRoot, OutputDir: h.output, Covers: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func productionRun() Run {
	return Run{
		ID:      "run-1",
		Content: Content{Prompt: "a lighthouse at dawn", PostText: "Dawn #reels"},
		Targets: []publish.Target{{Platform: "tiktok"}, {Platform: "instagram"}},
	}
}

func TestRunPublishesThroughAllStages(t *testing.T) {
	h := newHarness(t)
	res := h.orchestrator().Run(context.Background(), productionRun())

	if !res.Succeeded() {
		t.Fatalf("expected success, got stage=%s err=%v", res.Stage, res.Err)
	}
	want := []schema.Stage{schema.StageGeneratingContent, schema.StageAwaitingRender, schema.StagePostProducing, schema.StagePublishing, schema.StageDone}
	if fmt.Sprint(h.events.stages) != fmt.Sprint(want) {
		t.Fatalf("unexpected stages %v", h.events.stages)
	}
	if len(h.broker.requests) != 1 {
		t.Fatalf("expected one publish, got %d", len(h.broker.requests))
	}
	req := h.broker.requests[0]
	if req.Artifact.RemoteURL != "https://cdn.example/0.mp4" || req.Text != "Dawn #reels" || len(req.Targets) != 2 {
		t.Fatalf("unexpected publish request %+v", req)
	}
	if len(h.events.done) != 1 || h.events.done[0].Stage != schema.StageDone || len(h.events.done[0].Targets) != 2 {
		t.Fatalf("unexpected run done %+v", h.events.done)
	}
}

func TestRunRemovesWorkDir(t *testing.T) {
	h := newHarness(t)
	h.orchestrator().Run(context.Background(), productionRun())

	entries, err := os.ReadDir(h.workRoot)
	if err != nil {
		t.Fatalf("read work root: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected per-run work dir to be removed, found %d entries", len(entries))
	}
}

func TestRunDevModeKeepsArtifactAndSkipsPublish(t *testing.T) {
	h := newHarness(t)
	h.output = t.TempDir()
	run := productionRun()
	run.DevMode = true

	res := h.orchestrator().Run(context.Background(), run)

	if !res.Succeeded() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if len(h.broker.requests) != 0 {
		t.Fatal("dev mode must not publish")
	}
	if filepath.Dir(res.ArtifactPath) != h.output {
		t.Fatalf("artifact not kept in output dir: %s", res.ArtifactPath)
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if len(res.CoverPaths) != 1 || h.post.covers != 1 {
		t.Fatalf("expected one cover, got %v", res.CoverPaths)
	}
	for _, s := range h.events.stages {
		if s == schema.StagePublishing {
			t.Fatal("dev mode must not enter publishing")
		}
	}
}

func TestRunDevModeWithoutOutputDirFails(t *testing.T) {
	h := newHarness(t)
	run := productionRun()
	run.DevMode = true

	res := h.orchestrator().Run(context.Background(), run)
	if res.FailedStage != schema.StagePostProducing {
		t.Fatalf("expected post_producing failure, got %s (%v)", res.FailedStage, res.Err)
	}
}

func TestRunFailureStages(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(h *harness, run *Run)
		wantStage schema.Stage
		wantErr   error
		wantType  schema.FailureType
	}{
		{
			name:      "no content",
			setup:     func(h *harness, run *Run) { run.Content = Content{} },
			wantStage: schema.StageGeneratingContent,
			wantErr:   ErrNoContent,
			wantType:  schema.FailureTypeValidation,
		},
		{
			name: "render chain failed",
			setup: func(h *harness, run *Run) {
				h.chain.err = fmt.Errorf("%w: first segment timed_out: deadline exceeded", chain.ErrChainFailed)
			},
			wantStage: schema.StageAwaitingRender,
			wantErr:   chain.ErrChainFailed,
			wantType:  schema.FailureTypeRetryable,
		},
		{
			name:      "compose failed",
			setup:     func(h *harness, run *Run) { h.post.err = errors.New("compose voiceover: ffmpeg exited 1") },
			wantStage: schema.StagePostProducing,
			wantType:  schema.FailureTypePermanent,
		},
		{
			name: "upload failed",
			setup: func(h *harness, run *Run) {
				h.broker.err = fmt.Errorf("%w: upload after 3 attempt(s)", publish.ErrUploadFailed)
			},
			wantStage: schema.StagePublishing,
			wantErr:   publish.ErrUploadFailed,
			wantType:  schema.FailureTypePermanent,
		},
		{
			name:      "no targets",
			setup:     func(h *harness, run *Run) { h.broker.err = publish.ErrNoTargets },
			wantStage: schema.StagePublishing,
			wantErr:   publish.ErrNoTargets,
			wantType:  schema.FailureTypeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			run := productionRun()
			tt.setup(h, &run)

			res := h.orchestrator().Run(context.Background(), run)

			if res.Succeeded() {
				t.Fatal("expected failure")
			}
			if res.FailedStage != tt.wantStage {
				t.Fatalf("failed stage = %s, want %s (%v)", res.FailedStage, tt.wantStage, res.Err)
			}
			var se *StageError
			if !errors.As(res.Err, &se) || se.Stage != tt.wantStage {
				t.Fatalf("expected StageError, got %v", res.Err)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, res.Err)
			}
			if got := classifyError(res.Err); got != tt.wantType {
				t.Fatalf("failure type = %s, want %s", got, tt.wantType)
			}
			if len(h.events.failed) != 1 || h.events.failed[0] != tt.wantStage {
				t.Fatalf("unexpected failure events %v", h.events.failed)
			}
			if h.events.done[0].Stage != schema.StageFailed || h.events.done[0].FailedStage != tt.wantStage {
				t.Fatalf("unexpected run done %+v", h.events.done[0])
			}
		})
	}
}

func TestRunPartialPublishFailure(t *testing.T) {
	h := newHarness(t)
	h.broker.report = &publish.Report{
		HostedURL: "https://media.host/x.mp4",
		Results: []publish.Result{
			{Target: publish.Target{Platform: "tiktok"}, Status: publish.StatusSuccess, Attempts: 1},
			{Target: publish.Target{Platform: "youtube"}, Status: publish.StatusFailure, Reason: "HTTP 400", Attempts: 1},
			{Target: publish.Target{Platform: "instagram"}, Status: publish.StatusSuccess, Attempts: 1},
		},
	}

	res := h.orchestrator().Run(context.Background(), productionRun())

	if res.FailedStage != schema.StagePublishing || res.Report == nil {
		t.Fatalf("expected publishing failure with report, got %s %v", res.FailedStage, res.Err)
	}
	var tfe *publish.TargetsFailedError
	if !errors.As(res.Err, &tfe) || !tfe.Partial() {
		t.Fatalf("expected partial target failure, got %v", res.Err)
	}
	targets := h.events.done[0].Targets
	if len(targets) != 3 || targets[1].Status != "failure" {
		t.Fatalf("unexpected target summary %+v", targets)
	}
}

func TestRunResumesTaskID(t *testing.T) {
	h := newHarness(t)
	run := productionRun()
	run.TaskID = "veo-existing"
	run.Content.Prompt = ""

	res := h.orchestrator().Run(context.Background(), run)

	if !res.Succeeded() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if h.chain.resumedID != "veo-existing" || len(h.chain.extended) != 0 {
		t.Fatalf("expected resume only, resumed=%q extended=%d", h.chain.resumedID, len(h.chain.extended))
	}
}

func TestRunScenesBecomeSegments(t *testing.T) {
	h := newHarness(t)
	run := productionRun()
	run.Content.Scenes = []string{"scene one", " ", "scene two"}

	h.orchestrator().Run(context.Background(), run)

	if len(h.chain.extended) != 1 || len(h.chain.extended[0]) != 2 || h.chain.extended[0][1].Prompt != "scene two" {
		t.Fatalf("unexpected segments %+v", h.chain.extended)
	}
	if h.broker.requests[0].Artifact.RemoteURL != "" {
		t.Fatal("a joined chain has no provider url")
	}
}

func TestRunVoiceoverFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.voice.err = errors.New("HTTP 500 from openai")
	run := productionRun()
	run.Content.VoiceoverScript = "Look at the light."

	res := h.orchestrator().Run(context.Background(), run)

	if !res.Succeeded() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if len(h.post.inputs) != 1 || h.post.inputs[0].AudioPath != "" || h.post.inputs[0].Script == "" {
		t.Fatalf("unexpected post-production input %+v", h.post.inputs)
	}
}

func TestRunWithVoiceoverPublishesLocalFile(t *testing.T) {
	h := newHarness(t)
	run := productionRun()
	run.Content.VoiceoverScript = "Look at the light."

	h.orchestrator().Run(context.Background(), run)

	if h.post.inputs[0].AudioPath == "" {
		t.Fatal("expected voiceover audio")
	}
	art := h.broker.requests[0].Artifact
	if art.RemoteURL != "" || filepath.Base(art.LocalPath) != "chain_with_audio.mp4" {
		t.Fatalf("post-produced artifact must be published from disk, got %+v", art)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want schema.FailureType
	}{
		{nil, ""},
		{ErrNoContent, schema.FailureTypeValidation},
		{fmt.Errorf("submit: %w", render.ErrInvalidRequest), schema.FailureTypeValidation},
		{&retry.StatusError{StatusCode: 503}, schema.FailureTypeRetryable},
		{&retry.StatusError{StatusCode: 401}, schema.FailureTypePermanent},
		{context.DeadlineExceeded, schema.FailureTypeRetryable},
		{context.Canceled, schema.FailureTypePermanent},
		{&publish.TargetsFailedError{Failed: []publish.Result{{Reason: "gave up after 3 attempts: HTTP 503"}}, Total: 2}, schema.FailureTypeRetryable},
		{&publish.TargetsFailedError{Failed: []publish.Result{{Reason: "HTTP 400"}}, Total: 2}, schema.FailureTypePermanent},
	}
	for _, tt := range tests {
		if got := classifyError(tt.err); got != tt.want {
			t.Errorf("classifyError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
