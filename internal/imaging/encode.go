package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chai2010/webp"
	"github.com/dustin/go-humanize"

	"thumbgen/internal/thumbnails"
)

// Exporter is the multi-format encoder. It normalizes and optionally
// composites one generated image, then writes PNG, JPEG and WebP files under
// the output directory.
type Exporter struct {
	outputDir      string
	pngCompression int
	jpegQuality    int
	webpQuality    int
	logger         *slog.Logger
}

// NewExporter creates an exporter writing into outputDir. The directory is
// created if missing. PNG compression is 0-9, JPEG and WebP quality 0-100.
func NewExporter(outputDir string, pngCompression, jpegQuality, webpQuality int, logger *slog.Logger) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Exporter{
		outputDir:      outputDir,
		pngCompression: pngCompression,
		jpegQuality:    jpegQuality,
		webpQuality:    webpQuality,
		logger:         logger,
	}, nil
}

// Export runs the full pipeline for one generated image. The returned error
// is non-nil only when the input bytes cannot be decoded. Per-format encode
// failures are reported in the error map while sibling formats still export.
func (e *Exporter) Export(id string, data []byte, baseImagePath string, width, height int) (thumbnails.ExportSet, map[thumbnails.Format]error, error) {
	img, err := Normalize(data, width, height)
	if err != nil {
		return nil, nil, err
	}
	img = Composite(img, baseImagePath, e.logger)

	exports := make(thumbnails.ExportSet, len(thumbnails.DefaultFormats))
	encodeErrs := make(map[thumbnails.Format]error)
	for _, format := range thumbnails.DefaultFormats {
		record, err := e.encode(img, id, format)
		if err != nil {
			e.logger.Error("format export failed", "format", format, "error", err)
			encodeErrs[format] = err
			continue
		}
		exports[format.Key()] = record
	}
	return exports, encodeErrs, nil
}

func (e *Exporter) encode(img image.Image, id string, format thumbnails.Format) (thumbnails.ExportRecord, error) {
	filePath := filepath.Join(e.outputDir, fmt.Sprintf("export_%s%s", id, format.Ext()))

	file, err := os.Create(filePath)
	if err != nil {
		return thumbnails.ExportRecord{}, fmt.Errorf("failed to create file: %w", err)
	}

	switch format {
	case thumbnails.FormatPNG:
		encoder := &png.Encoder{CompressionLevel: pngCompressionLevel(e.pngCompression)}
		err = encoder.Encode(file, img)
	case thumbnails.FormatJPEG:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: e.jpegQuality})
	case thumbnails.FormatWebP:
		err = webp.Encode(file, img, &webp.Options{Quality: float32(e.webpQuality)})
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		file.Close()
		os.Remove(filePath)
		return thumbnails.ExportRecord{}, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(filePath)
		return thumbnails.ExportRecord{}, fmt.Errorf("failed to write file: %w", err)
	}

	// Stat back the written file so Size is exact, not an estimate.
	info, err := os.Stat(filePath)
	if err != nil {
		return thumbnails.ExportRecord{}, fmt.Errorf("failed to stat file: %w", err)
	}

	e.logger.Info("exported image",
		"format", format, "file", filepath.Base(filePath), "size", humanize.Bytes(uint64(info.Size())))

	return thumbnails.ExportRecord{
		Format:     format,
		FilePath:   filePath,
		Size:       info.Size(),
		ExportedAt: time.Now(),
	}, nil
}

// pngCompressionLevel maps the 0-9 configuration scale onto the discrete
// levels the stdlib encoder supports, preserving size monotonicity.
func pngCompressionLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 8:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
