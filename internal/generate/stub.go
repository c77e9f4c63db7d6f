package generate

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"sync/atomic"
)

// Stub dimensions are deliberately smaller than any target aspect ratio so
// the normalizer's resize path is exercised on every export.
const (
	stubWidth  = 800
	stubHeight = 450
)

var stubPalette = []color.RGBA{
	{R: 0x2f, G: 0x6f, B: 0xa5, A: 0xff},
	{R: 0xc0, G: 0x56, B: 0x3b, A: 0xff},
	{R: 0x3f, G: 0x8c, B: 0x5a, A: 0xff},
	{R: 0x8a, G: 0x4f, B: 0x9e, A: 0xff},
	{R: 0xb8, G: 0x8a, B: 0x2e, A: 0xff},
}

// Stub is an offline generator used when no API key is configured. It
// returns deterministic solid-color PNG rasters so the rest of the pipeline
// behaves exactly as in production.
type Stub struct {
	logger *slog.Logger
	seq    atomic.Uint64
}

// NewStub creates the offline generator.
func NewStub(logger *slog.Logger) *Stub {
	return &Stub{logger: logger}
}

// Generate returns a solid-color PNG whose color is derived from the prompt
// and the call sequence, so repeated variations differ.
func (s *Stub) Generate(_ context.Context, prompt string, _ string) ([]byte, error) {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	n := s.seq.Add(1)
	c := stubPalette[(uint64(h.Sum32())+n)%uint64(len(stubPalette))]

	img := image.NewRGBA(image.Rect(0, 0, stubWidth, stubHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	s.logger.Debug("stub generator produced image", "sequence", n)
	return buf.Bytes(), nil
}
