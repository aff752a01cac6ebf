// cmd/mediatool runs single post-production steps against local files
// without the render provider or the publishing host.
//
// Usage:
//
//	./mediatool -input reel.mp4 -probe
//	./mediatool -input reel.mp4 -cover cover.jpg
//	./mediatool -concat a.mp4,b.mp4,c.mp4 -output chain.mp4 [-crossfade 0.5]
//	./mediatool -input reel.mp4 -audio voice.mp3 -output final.mp4
//	./mediatool -input reel.mp4 -script "Every morning the light goes out." -output captioned.mp4
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tendant/simple-reels/internal/img"
	"github.com/tendant/simple-reels/internal/media"
	"github.com/tendant/simple-reels/internal/postprod"
)

func main() {
	input := flag.String("input", "", "Input video path")
	output := flag.String("output", "", "Output path (default: derived from input)")
	probe := flag.Bool("probe", false, "Show video metadata only")
	cover := flag.String("cover", "", "Write cover images to this path")
	concat := flag.String("concat", "", "Comma separated clips to join in order")
	crossfade := flag.Float64("crossfade", 0, "Crossfade seconds between joined clips (0 = stream copy)")
	audio := flag.String("audio", "", "Voiceover to lay over the input video")
	script := flag.String("script", "", "Script to burn in as subtitles")
	fontSize := flag.Int("font-size", media.DefaultSubtitleStyle().FontSize, "Subtitle font size")
	words := flag.Int("words", 8, "Words per subtitle cue")
	timeout := flag.Int("timeout", 300, "Timeout in seconds")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	ffmpeg := media.NewFFmpeg(media.ExecRunner{}, logger)
	start := time.Now()

	if *concat != "" {
		clips := parseClips(*concat)
		out := *output
		if out == "" {
			out = siblingOutput(clips[0], "joined")
		}
		var err error
		if *crossfade > 0 {
			err = ffmpeg.ConcatCrossfade(ctx, clips, out, time.Duration(*crossfade*float64(time.Second)))
		} else {
			err = ffmpeg.Concat(ctx, clips, out)
		}
		if err != nil {
			log.Fatalf("❌ Join failed: %v", err)
		}
		printOutput(out, start)
		return
	}

	if *input == "" {
		fmt.Println("Error: -input or -concat is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(*input); os.IsNotExist(err) {
		log.Fatalf("❌ Input file not found: %s", *input)
	}

	if *probe {
		fmt.Println("\n📊 Video Metadata:")
		fmt.Println(strings.Repeat("-", 40))
		info, err := ffmpeg.Probe(ctx, *input)
		if err != nil {
			log.Fatalf("❌ Failed to probe file: %v", err)
		}
		printFileInfo(info)
		return
	}

	if *cover != "" {
		producer := postprod.New(ffmpeg, img.NewCoverGenerator(ffmpeg, time.Second), postprod.Options{}, logger)
		covers, err := producer.Cover(ctx, *input, *cover)
		if err != nil {
			log.Fatalf("❌ Cover failed: %v", err)
		}
		for _, c := range covers {
			fmt.Printf("🖼️  %s: %s (%dx%d)\n", c.Name, c.Path, c.Width, c.Height)
		}
		return
	}

	if *audio == "" && *script == "" {
		log.Fatalf("❌ Nothing to do: pass -probe, -cover, -audio or -script")
	}

	// Work on a copy so the producer's cleanup never touches the caller's files.
	work, err := os.MkdirTemp("", "mediatool-*")
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer os.RemoveAll(work)
	video, err := copyInto(work, *input)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	in := postprod.Input{VideoPath: video, Script: *script}
	if *audio != "" {
		if in.AudioPath, err = copyInto(work, *audio); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}

	producer := postprod.New(ffmpeg, nil, postprod.Options{
		Subtitles:   *script != "",
		Style:       media.SubtitleStyle{FontSize: *fontSize, OutlineWidth: media.DefaultSubtitleStyle().OutlineWidth},
		WordsPerCue: *words,
	}, logger)
	final, err := producer.Process(ctx, in)
	if err != nil {
		log.Fatalf("❌ Post-production failed: %v", err)
	}

	out := *output
	if out == "" {
		out = siblingOutput(*input, "final")
	}
	if err := os.Rename(final, out); err != nil {
		if _, err := copyTo(final, out); err != nil {
			log.Fatalf("❌ Save output: %v", err)
		}
	}
	printOutput(out, start)
}

func parseClips(value string) []string {
	var clips []string
	for _, c := range strings.Split(value, ",") {
		if c = strings.TrimSpace(c); c != "" {
			clips = append(clips, c)
		}
	}
	if len(clips) == 0 {
		log.Fatalf("❌ -concat needs at least one clip")
	}
	return clips
}

func siblingOutput(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ".mp4"
}

func copyInto(dir, src string) (string, error) {
	return copyTo(src, filepath.Join(dir, filepath.Base(src)))
}

func copyTo(src, dst string) (string, error) {
	b, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	return dst, os.WriteFile(dst, b, 0o644)
}

func printOutput(path string, start time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("❌ Failed to read output file: %v", err)
	}
	fmt.Printf("\n✅ Done!\n")
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", path)
	fmt.Printf("📏 Size: %s\n", formatBytes(info.Size()))
	fmt.Printf("⏱️  Time: %v\n\n", time.Since(start).Round(time.Millisecond))
}

// printFileInfo prints file metadata in a readable format
func printFileInfo(info *media.FileInfo) {
	if info.Width > 0 && info.Height > 0 {
		fmt.Printf("Dimensions: %dx%d pixels\n", info.Width, info.Height)
	}
	if info.Duration > 0 {
		fmt.Printf("Duration: %.2f seconds (%s)\n", info.Duration.Seconds(), formatDuration(info.Duration))
	}
	if info.Size > 0 {
		fmt.Printf("File Size: %s (%.2f MB)\n", formatBytes(info.Size), float64(info.Size)/(1024*1024))
	}
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration as MM:SS
func formatDuration(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
