package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestCompositeBlendsBaseImage(t *testing.T) {
	fg := solidImage(40, 40, color.RGBA{R: 255, A: 255})
	base := solidImage(20, 20, color.RGBA{B: 255, A: 255})

	basePath := filepath.Join(t.TempDir(), "base.png")
	require.NoError(t, os.WriteFile(basePath, encodePNG(t, base), 0644))

	out := Composite(fg, basePath, discardLogger())
	require.Equal(t, fg.Bounds(), out.Bounds())

	// 70% generated red, 30% base blue.
	r, _, b, _ := out.At(10, 10).RGBA()
	assert.InDelta(t, 179, r>>8, 12)
	assert.InDelta(t, 76, b>>8, 12)
}

func TestCompositeSkippedWithoutBasePath(t *testing.T) {
	fg := solidImage(10, 10, color.RGBA{R: 255, A: 255})
	out := Composite(fg, "", discardLogger())
	assert.Same(t, fg, out)
}

func TestCompositeFallsBackWhenBaseMissing(t *testing.T) {
	fg := solidImage(10, 10, color.RGBA{R: 255, A: 255})
	out := Composite(fg, filepath.Join(t.TempDir(), "missing.png"), discardLogger())
	assert.Same(t, fg, out)
}

func TestCompositeFallsBackWhenBaseCorrupt(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(basePath, []byte("definitely not a png"), 0644))

	fg := solidImage(10, 10, color.RGBA{R: 255, A: 255})
	out := Composite(fg, basePath, discardLogger())
	assert.Same(t, fg, out)
}
