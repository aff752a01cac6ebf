// internal/media/ffmpeg.go

package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoClips is returned when a concatenation is requested with nothing to join.
var ErrNoClips = errors.New("no clips to concatenate")

// FileInfo contains metadata about a media file.
type FileInfo struct {
	Width    int
	Height   int
	Duration time.Duration
	Size     int64
}

// SubtitleStyle controls burned-in captions.
type SubtitleStyle struct {
	FontSize     int
	OutlineWidth int
}

// DefaultSubtitleStyle is white text with a black outline, bottom centered.
func DefaultSubtitleStyle() SubtitleStyle {
	return SubtitleStyle{FontSize: 14, OutlineWidth: 2}
}

func (s SubtitleStyle) forceStyle() string {
	return fmt.Sprintf("FontSize=%d,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=%d,Alignment=2",
		s.FontSize, s.OutlineWidth)
}

// FFmpeg drives ffmpeg/ffprobe through a Runner.
type FFmpeg struct {
	runner Runner
	logger *slog.Logger
}

// NewFFmpeg creates an FFmpeg. A nil runner selects ExecRunner.
func NewFFmpeg(runner Runner, logger *slog.Logger) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{runner: runner, logger: logger}
}

// Concat joins clips in order with stream copy (no re-encoding).
// All clips must share codec parameters, which holds for renders of one job chain.
func (f *FFmpeg) Concat(ctx context.Context, clips []string, output string) error {
	if len(clips) == 0 {
		return ErrNoClips
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("mkdir output: %w", err)
	}

	list, err := os.CreateTemp(filepath.Dir(output), "concat-*.txt")
	if err != nil {
		return fmt.Errorf("create concat list: %w", err)
	}
	defer os.Remove(list.Name())

	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			list.Close()
			return fmt.Errorf("resolve clip path: %w", err)
		}
		if _, err := fmt.Fprintf(list, "file '%s'\n", escapeConcatPath(abs)); err != nil {
			list.Close()
			return fmt.Errorf("write concat list: %w", err)
		}
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close concat list: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		output,
	}
	if _, err := f.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("concat %d clips: %w", len(clips), err)
	}
	f.logger.Info("clips concatenated", "clips", len(clips), "output", output)
	return nil
}

// ConcatCrossfade joins clips with a fixed video and audio crossfade. This
// re-encodes. Clip durations are probed to place each transition.
func (f *FFmpeg) ConcatCrossfade(ctx context.Context, clips []string, output string, fade time.Duration) error {
	if len(clips) == 0 {
		return ErrNoClips
	}
	if len(clips) == 1 {
		return f.Concat(ctx, clips, output)
	}

	durations := make([]time.Duration, len(clips))
	for i, clip := range clips {
		d, err := f.Duration(ctx, clip)
		if err != nil {
			return fmt.Errorf("probe clip %d: %w", i, err)
		}
		if d <= fade {
			return fmt.Errorf("clip %d is shorter than the %v crossfade", i, fade)
		}
		durations[i] = d
	}

	args := []string{"-y"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args,
		"-filter_complex", crossfadeFilter(durations, fade),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		output,
	)
	if _, err := f.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("crossfade %d clips: %w", len(clips), err)
	}
	f.logger.Info("clips crossfaded", "clips", len(clips), "fade", fade, "output", output)
	return nil
}

// crossfadeFilter chains xfade/acrossfade pairs. Each transition starts fade
// before the end of everything joined so far.
func crossfadeFilter(durations []time.Duration, fade time.Duration) string {
	n := len(durations)
	parts := make([]string, 0, 2*(n-1))
	curV, curA := "[0:v]", "[0:a]"
	joined := durations[0]
	for i := 1; i < n; i++ {
		outV, outA := fmt.Sprintf("[v%d]", i), fmt.Sprintf("[a%d]", i)
		if i == n-1 {
			outV, outA = "[v]", "[a]"
		}
		offset := joined - fade
		parts = append(parts,
			fmt.Sprintf("%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s", curV, i, seconds(fade), seconds(offset), outV),
			fmt.Sprintf("%s[%d:a]acrossfade=d=%s%s", curA, i, seconds(fade), outA),
		)
		joined = joined + durations[i] - fade
		curV, curA = outV, outA
	}
	return strings.Join(parts, ";")
}

// Compose replaces the audio of video with audio, copying the video stream.
// The output stops at the shorter of the two inputs.
func (f *FFmpeg) Compose(ctx context.Context, video, audio, output string) error {
	for _, p := range []string{video, audio} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("compose input: %w", err)
		}
	}
	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		output,
	}
	if _, err := f.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	f.logger.Info("video composed with audio", "video", video, "audio", audio, "output", output)
	return nil
}

// Duration returns the container duration of a media file.
func (f *FFmpeg) Duration(ctx context.Context, input string) (time.Duration, error) {
	out, err := f.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		input,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Probe returns dimensions, duration and size of the first video stream.
func (f *FFmpeg) Probe(ctx context.Context, input string) (*FileInfo, error) {
	out, err := f.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration,size",
		"-of", "default=noprint_wrappers=1",
		input,
	)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}

	info := &FileInfo{}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = time.Duration(d * float64(time.Second))
			}
		case "size":
			info.Size, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	return info, nil
}

// BurnSubtitles renders an SRT file into the video frames.
func (f *FFmpeg) BurnSubtitles(ctx context.Context, video, srtPath, output string, style SubtitleStyle) error {
	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(srtPath), style.forceStyle())
	args := []string{
		"-y",
		"-i", video,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-threads", "2",
		"-max_muxing_queue_size", "4096",
		"-c:a", "copy",
		output,
	}
	if _, err := f.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("burn subtitles: %w", err)
	}
	f.logger.Info("subtitles burned", "output", output)
	return nil
}

// ExtractFrame writes one representative frame taken after seek as a JPEG.
// width and height bound the frame when both are positive.
func (f *FFmpeg) ExtractFrame(ctx context.Context, video, output string, seek time.Duration, width, height int) error {
	filter := "thumbnail"
	if width > 0 && height > 0 {
		filter = fmt.Sprintf("thumbnail,scale=%d:%d:force_original_aspect_ratio=decrease", width, height)
	}
	args := []string{
		"-ss", seconds(seek),
		"-i", video,
		"-vf", filter,
		"-frames:v", "1",
		"-pix_fmt", "yuvj420p",
		"-q:v", "2",
		"-y",
		output,
	}
	if _, err := f.runner.Run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("extract frame: %w", err)
	}
	return nil
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// escapeFilterPath escapes characters that are special inside a filtergraph argument.
func escapeFilterPath(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `,`, `\,`)
	return r.Replace(p)
}
