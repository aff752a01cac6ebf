// internal/postprod/producer.go

// Package postprod turns a raw render into the final deliverable: voiceover
// audio is laid over the video, captions are burned in and a cover is cut.
package postprod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-reels/internal/img"
	"github.com/tendant/simple-reels/internal/media"
)

// Editor is the subset of media.FFmpeg the producer needs.
type Editor interface {
	Compose(ctx context.Context, video, audio, output string) error
	Duration(ctx context.Context, input string) (time.Duration, error)
	BurnSubtitles(ctx context.Context, video, srtPath, output string, style media.SubtitleStyle) error
}

// Options configures captioning.
type Options struct {
	Subtitles   bool
	Style       media.SubtitleStyle
	WordsPerCue int
}

// Input is one video to finish. AudioPath and Script are optional.
type Input struct {
	VideoPath string
	AudioPath string
	Script    string
}

// Producer runs post-production steps.
type Producer struct {
	editor Editor
	covers *img.CoverGenerator
	opts   Options
	logger *slog.Logger
}

// New creates a producer. covers may be nil when no cover is wanted.
func New(editor Editor, covers *img.CoverGenerator, opts Options, logger *slog.Logger) *Producer {
	if opts.WordsPerCue <= 0 {
		opts.WordsPerCue = 8
	}
	if opts.Style.FontSize <= 0 {
		opts.Style = media.DefaultSubtitleStyle()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{editor: editor, covers: covers, opts: opts, logger: logger}
}

// Process composes and captions in.VideoPath and returns the final path.
// A compose failure is fatal; a caption failure keeps the uncaptioned video.
// Superseded intermediates are removed.
func (p *Producer) Process(ctx context.Context, in Input) (string, error) {
	if in.VideoPath == "" {
		return "", errors.New("post-production: no video")
	}
	final := in.VideoPath

	if in.AudioPath != "" {
		composed := siblingPath(in.VideoPath, "with_audio")
		if err := p.editor.Compose(ctx, in.VideoPath, in.AudioPath, composed); err != nil {
			os.Remove(composed)
			return "", fmt.Errorf("compose voiceover: %w", err)
		}
		p.remove(in.VideoPath, in.AudioPath)
		final = composed
	}

	if p.opts.Subtitles && strings.TrimSpace(in.Script) != "" {
		captioned, err := p.caption(ctx, final, in.Script)
		if err != nil {
			p.logger.Error("subtitle burn failed, keeping video without captions", "err", err)
		} else if captioned != "" {
			p.remove(final)
			final = captioned
		}
	}

	return final, nil
}

// caption returns "" when the script yields no cues.
func (p *Producer) caption(ctx context.Context, video, script string) (string, error) {
	total, err := p.editor.Duration(ctx, video)
	if err != nil {
		return "", err
	}
	srtPath := siblingPath(video, "captions")
	srtPath = strings.TrimSuffix(srtPath, filepath.Ext(srtPath)) + ".srt"
	wrote, err := media.WriteSRT(srtPath, script, total, p.opts.WordsPerCue)
	if err != nil {
		return "", err
	}
	if !wrote {
		p.logger.Warn("script produced no subtitles")
		return "", nil
	}
	defer os.Remove(srtPath)

	output := siblingPath(video, "subtitled")
	if err := p.editor.BurnSubtitles(ctx, video, srtPath, output, p.opts.Style); err != nil {
		os.Remove(output)
		return "", err
	}
	p.logger.Info("subtitles burned", "output", output, "duration", total)
	return output, nil
}

// Cover writes cover images for video next to dst.
func (p *Producer) Cover(ctx context.Context, video, dst string) ([]img.CoverOutput, error) {
	if p.covers == nil {
		return nil, nil
	}
	return p.covers.Generate(ctx, video, dst, img.DefaultCoverSpecs)
}

func (p *Producer) remove(paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove intermediate", "path", path, "err", err)
		}
	}
}

func siblingPath(path, suffix string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".mp4"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_" + suffix + ext
}
