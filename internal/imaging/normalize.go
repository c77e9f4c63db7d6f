package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	// Register decoders for the formats the generator and users may supply.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"thumbgen/internal/thumbnails"
)

// Normalize decodes arbitrary image bytes into an opaque RGB raster.
// Transparent regions are flattened onto a white background so that dropping
// the alpha channel never leaves black fill. When width and height are
// positive the raster is resampled to exactly that size; caller-specified
// dimensions are applied as-is, so distortion is possible.
func Normalize(data []byte, width, height int) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", thumbnails.ErrDecode, err)
	}

	bounds := src.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, bounds.Min, draw.Over)

	if width <= 0 || height <= 0 || (width == bounds.Dx() && height == bounds.Dy()) {
		return flat, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), flat, flat.Bounds(), draw.Src, nil)
	return dst, nil
}
