// internal/app/app.go

// Package app wires configuration into a ready orchestrator. Both the
// one-shot CLI and the worker build their runs here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-reels/internal/blotato"
	"github.com/tendant/simple-reels/internal/chain"
	"github.com/tendant/simple-reels/internal/config"
	"github.com/tendant/simple-reels/internal/download"
	"github.com/tendant/simple-reels/internal/hosting"
	"github.com/tendant/simple-reels/internal/img"
	"github.com/tendant/simple-reels/internal/media"
	"github.com/tendant/simple-reels/internal/pipeline"
	"github.com/tendant/simple-reels/internal/postprod"
	"github.com/tendant/simple-reels/internal/publish"
	"github.com/tendant/simple-reels/internal/render"
	"github.com/tendant/simple-reels/internal/retry"
	"github.com/tendant/simple-reels/internal/voice"
	"github.com/tendant/simple-reels/internal/youtube"
	"github.com/tendant/simple-reels/pkg/schema"
)

// coverSeek skips the first second, where renders often fade in.
const coverSeek = time.Second

// Build creates an orchestrator from cfg. events may be nil.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, events pipeline.Events) (*pipeline.Orchestrator, error) {
	ffmpeg := media.NewFFmpeg(media.ExecRunner{}, logger)
	policy := cfg.Publish.Policy()

	kie := render.NewKieProvider(cfg.Render.BaseURL, cfg.Render.APIKey)
	client := render.NewClient(kie, cfg.Render.MaxWait, logger)
	poller := render.NewPoller(kie, cfg.Render.PollInterval, logger)
	fetcher := download.New(policy, logger)
	chainOpts := chain.Options{
		Request: render.Request{
			Duration:    cfg.Render.Duration,
			Quality:     cfg.Render.Quality,
			AspectRatio: cfg.Render.AspectRatio,
		},
		Smooth:    cfg.Render.Smooth,
		Crossfade: cfg.Render.Crossfade,
	}

	deps := pipeline.Deps{
		Chain: func(workDir string) pipeline.Chainer {
			opts := chainOpts
			opts.WorkDir = workDir
			return chain.NewExtender(client, poller, fetcher, ffmpeg, opts, logger.With("component", "chain"))
		},
		Post: postprod.New(ffmpeg, img.NewCoverGenerator(ffmpeg, coverSeek), postprod.Options{
			Subtitles:   cfg.Post.Subtitles,
			Style:       media.SubtitleStyle{FontSize: cfg.Post.SubtitleFontSize, OutlineWidth: media.DefaultSubtitleStyle().OutlineWidth},
			WordsPerCue: cfg.Post.WordsPerCue,
		}, logger.With("component", "postprod")),
		Events: events,
	}

	if cfg.Post.Voiceover {
		deps.Voice = voice.NewOpenAI(voice.Config{
			APIKey: cfg.Post.OpenAIKey,
			Model:  cfg.Post.TTSModel,
			Voice:  cfg.Post.TTSVoice,
		}, policy, logger.With("component", "voice"))
	}

	if cfg.Publishing() {
		factory, err := brokerFactory(ctx, cfg, policy, logger.With("component", "publish"))
		if err != nil {
			return nil, err
		}
		deps.Broker = factory
	}

	return pipeline.New(deps, pipeline.Options{
		WorkDir:   cfg.WorkDir,
		OutputDir: cfg.OutputDir,
		Covers:    cfg.Post.Covers,
	}, logger), nil
}

func brokerFactory(ctx context.Context, cfg config.Config, policy retry.Policy, logger *slog.Logger) (func() pipeline.Publisher, error) {
	bc, err := blotato.New(cfg.Publish.BaseURL, cfg.Publish.APIKey)
	if err != nil {
		return nil, err
	}

	var stager publish.Stager
	if cfg.Hosting.Enabled {
		svc, err := hosting.BuildService(cfg.Hosting.Store)
		if err != nil {
			return nil, fmt.Errorf("hosting: %w", err)
		}
		stager = hosting.NewBridge(svc, cfg.Hosting.Store.Backend, cfg.Hosting.OwnerID, cfg.Hosting.TenantID, logger)
		logger.Info("hosting bridge ready", "backend", cfg.Hosting.Store.Backend)
	}

	router := publish.NewRouter(publish.NewBlotatoPublisher(bc))
	if cfg.YouTube.Direct {
		up, err := youtube.NewUploader(ctx, youtube.Credentials{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			RefreshToken: cfg.YouTube.RefreshToken,
		}, logger)
		if err != nil {
			return nil, err
		}
		router.Handle(publish.PlatformYouTube, youtube.NewPublisher(up, cfg.YouTube.Description, cfg.YouTube.Tags))
		logger.Info("youtube targets publish directly through the data api")
	}

	opts := publish.Options{
		Policy:   policy,
		Payloads: cfg.Publish.Payloads,
		Accounts: cfg.Publish.Accounts,
	}
	return func() pipeline.Publisher {
		return timeoutPublisher{
			next:    publish.NewBroker(bc, stager, router, opts, logger),
			timeout: cfg.Publish.Timeout,
		}
	}, nil
}

// timeoutPublisher bounds one publish call.
type timeoutPublisher struct {
	next    pipeline.Publisher
	timeout time.Duration
}

func (p timeoutPublisher) Publish(ctx context.Context, req publish.Request) (*publish.Report, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.next.Publish(ctx, req)
}

// RunFromConfig describes the run configured through the environment and run file.
func RunFromConfig(cfg config.Config) pipeline.Run {
	return pipeline.Run{
		Content: pipeline.Content{
			Prompt:          cfg.Content.Prompt,
			Scenes:          cfg.Content.Scenes,
			VoiceoverScript: cfg.Content.VoiceoverScript,
			PostText:        cfg.Content.PostText,
		},
		TaskID:        cfg.Content.TaskID,
		DevMode:       !cfg.Publishing(),
		Targets:       cfg.Publish.Targets,
		ScheduledTime: cfg.Publish.ScheduledTime,
	}
}

// RunFromRequest merges a run request over the configured defaults. A
// request can opt into dev mode but never out of it.
func RunFromRequest(req schema.RunRequested, cfg config.Config) pipeline.Run {
	run := RunFromConfig(cfg)
	run.ID = req.ID
	if req.Prompt != "" || len(req.Scenes) > 0 {
		run.Content = pipeline.Content{Prompt: req.Prompt, Scenes: req.Scenes, PostText: req.Prompt}
		run.TaskID = ""
	}
	if req.VoiceoverScript != "" {
		run.Content.VoiceoverScript = req.VoiceoverScript
	}
	if req.PostText != "" {
		run.Content.PostText = req.PostText
	}
	if req.TaskID != "" {
		run.TaskID = req.TaskID
	}
	if req.ScheduledTime != "" {
		run.ScheduledTime = req.ScheduledTime
	}
	if len(req.Targets) > 0 {
		run.Targets = make([]publish.Target, len(req.Targets))
		for i, t := range req.Targets {
			run.Targets[i] = publish.Target{Platform: t.Platform, DestinationID: t.PageID, AccountID: t.AccountID}
		}
	}
	run.DevMode = run.DevMode || req.DevMode
	return run
}
