package imaging

import (
	"image"
	"image/color"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
)

// baseBlendAlpha is the weight of the base image in the blend: 30% base over
// 70% generated, matching a uint8 alpha of 76/255.
const baseBlendAlpha = 76

// Composite blends a user-supplied base image under the generated foreground.
// The base is normalized to the foreground's exact dimensions first. Any
// failure to read or decode the base degrades to the unmodified foreground;
// the fallback is logged but never aborts the export.
func Composite(fg *image.RGBA, baseImagePath string, logger *slog.Logger) *image.RGBA {
	if baseImagePath == "" {
		return fg
	}

	data, err := os.ReadFile(baseImagePath)
	if err != nil {
		logger.Warn("compositing skipped, base image unreadable", "error", err)
		return fg
	}

	bounds := fg.Bounds()
	base, err := Normalize(data, bounds.Dx(), bounds.Dy())
	if err != nil {
		logger.Warn("compositing skipped, base image undecodable", "error", err)
		return fg
	}

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, fg, image.Point{}, draw.Src)
	mask := image.NewUniform(color.Alpha{A: baseBlendAlpha})
	draw.DrawMask(out, bounds, base, image.Point{}, mask, image.Point{}, draw.Over)
	return out
}
