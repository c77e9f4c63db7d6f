package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbgen/internal/thumbnails"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gradientImage returns a raster whose pixels vary with position, so that
// compression level and quality settings have a measurable effect on size.
func gradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func TestNormalizeFlattensAlphaOntoWhite(t *testing.T) {
	// Fully transparent source: dropping alpha naively would leave black.
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	out, err := Normalize(encodePNG(t, src), 0, 0)
	require.NoError(t, err)

	r, g, b, a := out.At(5, 5).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalizePreservesOpaquePixels(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	out, err := Normalize(encodePNG(t, src), 0, 0)
	require.NoError(t, err)

	r, g, b, _ := out.At(2, 2).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(100), g>>8)
	assert.Equal(t, uint32(50), b>>8)
}

func TestNormalizeResizesToExactDimensions(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		dstW, dstH   int
		wantW, wantH int
	}{
		{"upscale", 100, 50, 200, 100, 200, 100},
		{"downscale", 100, 50, 40, 20, 40, 20},
		{"distorting resize", 100, 50, 64, 64, 64, 64},
		{"no dimensions keeps source", 100, 50, 0, 0, 100, 50},
		{"same dimensions", 100, 50, 100, 50, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodePNG(t, gradientImage(tt.srcW, tt.srcH))
			out, err := Normalize(data, tt.dstW, tt.dstH)
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, out.Bounds().Dx())
			assert.Equal(t, tt.wantH, out.Bounds().Dy())
		})
	}
}

func TestNormalizeGrayscaleInput(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = 128
	}

	out, err := Normalize(encodePNG(t, src), 0, 0)
	require.NoError(t, err)

	r, g, b, a := out.At(4, 4).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestNormalizeInvalidData(t *testing.T) {
	_, err := Normalize([]byte("not an image"), 0, 0)
	assert.ErrorIs(t, err, thumbnails.ErrDecode)
}
