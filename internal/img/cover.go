// internal/img/cover.go
package img

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Mode selects how a frame is fitted into a cover box.
type Mode int

const (
	// ModeFit scales the frame to fit inside the box, keeping aspect ratio.
	ModeFit Mode = iota
	// ModeFill scales and center-crops the frame to exactly the box size.
	ModeFill
)

type CoverSpec struct {
	Name   string
	Width  int
	Height int
	Mode   Mode
}

type CoverOutput struct {
	Name         string
	Path         string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// DefaultCoverSpecs are a full-size vertical cover and a small preview.
var DefaultCoverSpecs = []CoverSpec{
	{Name: "cover", Width: 1080, Height: 1920, Mode: ModeFill},
	{Name: "preview", Width: 360, Height: 640, Mode: ModeFit},
}

// FitImage loads an image from srcPath, fits it into the given bounding box
// and writes it to dstPath. Smaller sources are not upscaled.
func FitImage(srcPath, dstPath string, boxW, boxH int) (w int, h int, _ error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return 0, 0, fmt.Errorf("open: %w", err)
	}

	out := imaging.Fit(src, boxW, boxH, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return 0, 0, fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.Save(out, dstPath); err != nil {
		return 0, 0, fmt.Errorf("save: %w", err)
	}

	b := out.Bounds()
	return b.Dx(), b.Dy(), nil
}

// RenderCovers writes one image per spec next to baseDstPath, named
// base_<spec>.<ext>.
func RenderCovers(srcPath, baseDstPath string, specs []CoverSpec) ([]CoverOutput, error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	srcBounds := src.Bounds()
	ext := filepath.Ext(baseDstPath)
	base := baseDstPath[:len(baseDstPath)-len(ext)]

	var results []CoverOutput
	for _, spec := range specs {
		var out *image.NRGBA
		switch spec.Mode {
		case ModeFill:
			out = imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
		default:
			out = imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
		}

		dstPath := fmt.Sprintf("%s_%s%s", base, spec.Name, ext)
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir for %s: %w", spec.Name, err)
		}
		if err := imaging.Save(out, dstPath); err != nil {
			return nil, fmt.Errorf("save %s: %w", spec.Name, err)
		}

		b := out.Bounds()
		results = append(results, CoverOutput{
			Name:         spec.Name,
			Path:         dstPath,
			Width:        b.Dx(),
			Height:       b.Dy(),
			SourceWidth:  srcBounds.Dx(),
			SourceHeight: srcBounds.Dy(),
		})
	}

	return results, nil
}
