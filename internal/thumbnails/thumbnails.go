package thumbnails

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Error taxonomy shared by the export pipeline and the download endpoint.
// Handlers map these to HTTP statuses with errors.Is; messages never include
// filesystem paths.
var (
	ErrDecode           = errors.New("invalid image data")
	ErrPathTraversal    = errors.New("invalid file name")
	ErrExpired          = errors.New("url expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotFound         = errors.New("file not found")
)

// Format is one of the export targets.
type Format string

const (
	FormatPNG  Format = "PNG"
	FormatJPEG Format = "JPEG"
	FormatWebP Format = "WebP"
)

// DefaultFormats is the set produced for every variation.
var DefaultFormats = []Format{FormatPNG, FormatJPEG, FormatWebP}

// Key is the lowercase name used as an ExportSet key.
func (f Format) Key() string {
	return strings.ToLower(string(f))
}

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatWebP:
		return ".webp"
	default:
		return ".png"
	}
}

// ExportRecord describes one exported file. FilePath exists on disk and Size
// equals the on-disk byte count at the moment the record is returned.
type ExportRecord struct {
	Format     Format    `json:"format"`
	URL        string    `json:"url"`
	FilePath   string    `json:"file_path"`
	Size       int64     `json:"size"`
	ExportedAt time.Time `json:"exported_at"`
}

// ExportSet maps a format key ("png", "jpeg", "webp") to its record.
type ExportSet map[string]ExportRecord

// AspectRatio is a supported thumbnail aspect ratio.
type AspectRatio string

const (
	Ratio16x9 AspectRatio = "16:9"
	Ratio9x16 AspectRatio = "9:16"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x3  AspectRatio = "4:3"
	Ratio3x4  AspectRatio = "3:4"
)

// ParseAspectRatio normalizes and validates a client-supplied ratio.
// "16x9" is accepted as an alias for "16:9".
func ParseAspectRatio(s string) (AspectRatio, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	normalized = strings.ReplaceAll(normalized, "x", ":")
	switch r := AspectRatio(normalized); r {
	case Ratio16x9, Ratio9x16, Ratio1x1, Ratio4x3, Ratio3x4:
		return r, nil
	}
	return "", fmt.Errorf("invalid aspect ratio %q, supported values: 16:9, 9:16, 1:1, 4:3, 3:4", s)
}

// Dimensions returns the target pixel size for the ratio.
func (r AspectRatio) Dimensions() (width, height int) {
	switch r {
	case Ratio9x16:
		return 720, 1280
	case Ratio1x1:
		return 1024, 1024
	case Ratio4x3:
		return 1024, 768
	case Ratio3x4:
		return 768, 1024
	default:
		return 1280, 720
	}
}

// Generator produces one generated image per call.
type Generator interface {
	Generate(ctx context.Context, prompt string, baseImagePath string) ([]byte, error)
}

// Exporter runs one raw image through normalize, composite and multi-format
// encode. A non-nil error means the whole variation failed (bad input bytes);
// per-format encode failures come back in the error map while the remaining
// formats are still exported.
type Exporter interface {
	Export(id string, data []byte, baseImagePath string, width, height int) (ExportSet, map[Format]error, error)
}

// URLIssuer turns an exported file name into a download URL, signed or static
// depending on configuration.
type URLIssuer interface {
	Issue(fileName string) string
}

// Storage persists uploaded base images and raw generated bytes.
type Storage interface {
	SaveUpload(name string, content io.Reader) (string, error)
	SaveTemp(data []byte) (string, error)
}

// StoredExport is the persisted metadata row for one exported file.
type StoredExport struct {
	ID          string    `json:"id"`
	VariationID string    `json:"variation_id"`
	Format      Format    `json:"format"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRepository stores export metadata for the admin listing endpoint.
type ExportRepository interface {
	Create(export *StoredExport) error
	ListRecent(limit int) ([]*StoredExport, error)
	DeleteOlderThan(cutoff time.Time) (int, error)
	Close() error
}
