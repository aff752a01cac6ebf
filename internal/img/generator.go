package img

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FrameExtractor grabs a still image from a video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, video, output string, seek time.Duration, width, height int) error
}

// CoverGenerator produces cover images for a finished video: a representative
// frame is extracted once and then resized per spec with the imaging library.
type CoverGenerator struct {
	frames FrameExtractor
	seek   time.Duration
}

// NewCoverGenerator creates a generator that looks for a frame after seek,
// skipping fade-ins at the very start of a clip.
func NewCoverGenerator(frames FrameExtractor, seek time.Duration) *CoverGenerator {
	return &CoverGenerator{frames: frames, seek: seek}
}

// Generate writes covers for videoPath according to specs.
func (g *CoverGenerator) Generate(ctx context.Context, videoPath, baseDstPath string, specs []CoverSpec) ([]CoverOutput, error) {
	if len(specs) == 0 {
		specs = DefaultCoverSpecs
	}
	if err := os.MkdirAll(filepath.Dir(baseDstPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	frame, err := os.CreateTemp(filepath.Dir(baseDstPath), "frame-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("create frame file: %w", err)
	}
	frame.Close()
	defer os.Remove(frame.Name())

	if err := g.frames.ExtractFrame(ctx, videoPath, frame.Name(), g.seek, 0, 0); err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}

	results, err := RenderCovers(frame.Name(), baseDstPath, specs)
	if err != nil {
		return nil, fmt.Errorf("render covers: %w", err)
	}
	return results, nil
}
