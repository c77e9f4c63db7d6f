package thumbnails

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Service orchestrates thumbnail generation: it calls the generator once per
// variation and runs each result through the export pipeline. Failures are
// collected per variation so one bad image never aborts the batch.
type Service struct {
	generator     Generator
	exporter      Exporter
	issuer        URLIssuer
	storage       Storage
	repo          ExportRepository
	maxVariations int
	logger        *slog.Logger
}

// NewService creates a new thumbnail service.
func NewService(
	generator Generator,
	exporter Exporter,
	issuer URLIssuer,
	storage Storage,
	repo ExportRepository,
	maxVariations int,
	logger *slog.Logger,
) *Service {
	return &Service{
		generator:     generator,
		exporter:      exporter,
		issuer:        issuer,
		storage:       storage,
		repo:          repo,
		maxVariations: maxVariations,
		logger:        logger,
	}
}

// Request describes one generation request.
type Request struct {
	Script        string
	AspectRatio   AspectRatio
	Count         int
	BaseImagePath string
}

// VariationResult is the per-variation outcome: either an ExportSet, or an
// error message when generation or decoding failed. A partially failed encode
// carries both.
type VariationResult struct {
	ID      string    `json:"id"`
	Exports ExportSet `json:"exports,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Failed reports whether the variation produced no exports at all.
func (v VariationResult) Failed() bool {
	return len(v.Exports) == 0
}

// Response is the result of a generation request.
type Response struct {
	RequestID  string            `json:"request_id"`
	Variations []VariationResult `json:"variations"`
}

// CreateThumbnails generates up to Count variations and exports each one in
// all default formats. Count values above the configured maximum are silently
// truncated.
func (s *Service) CreateThumbnails(ctx context.Context, req Request) (*Response, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > s.maxVariations {
		s.logger.Debug("truncating variation count",
			"requested", count, "max_variations", s.maxVariations)
		count = s.maxVariations
	}

	width, height := req.AspectRatio.Dimensions()
	prompt := buildPrompt(req.Script, req.AspectRatio)
	requestID := "req_" + uuid.NewString()

	variations := make([]VariationResult, 0, count)
	for i := 0; i < count; i++ {
		variations = append(variations, s.generateOne(ctx, prompt, req.BaseImagePath, width, height, i))
	}

	return &Response{RequestID: requestID, Variations: variations}, nil
}

func (s *Service) generateOne(ctx context.Context, prompt, basePath string, width, height, index int) VariationResult {
	id := uuid.NewString()

	data, err := s.generator.Generate(ctx, prompt, basePath)
	if err != nil {
		s.logger.Warn("thumbnail generation failed",
			"variation_id", id, "index", index, "error", err)
		return VariationResult{ID: id, Error: "generation failed"}
	}

	// Keep the raw generated bytes around; the temp sweeper prunes them.
	if _, err := s.storage.SaveTemp(data); err != nil {
		s.logger.Warn("failed to save raw generated image", "variation_id", id, "error", err)
	}

	exports, encodeErrs, err := s.exporter.Export(id, data, basePath, width, height)
	if err != nil {
		s.logger.Warn("export failed", "variation_id", id, "index", index, "error", err)
		return VariationResult{ID: id, Error: ErrDecode.Error()}
	}

	for key, record := range exports {
		record.URL = s.issuer.Issue(filepath.Base(record.FilePath))
		exports[key] = record

		stored := &StoredExport{
			ID:          uuid.NewString(),
			VariationID: id,
			Format:      record.Format,
			FileName:    filepath.Base(record.FilePath),
			FilePath:    record.FilePath,
			Size:        record.Size,
			CreatedAt:   record.ExportedAt,
		}
		if err := s.repo.Create(stored); err != nil {
			s.logger.Warn("failed to record export metadata",
				"variation_id", id, "format", record.Format, "error", err)
		}
	}

	result := VariationResult{ID: id, Exports: exports}
	if len(encodeErrs) > 0 {
		result.Error = joinEncodeErrors(encodeErrs)
	}
	return result
}

func buildPrompt(script string, ratio AspectRatio) string {
	return fmt.Sprintf(
		"Generate a high-quality YouTube thumbnail based on the following video script. Aspect Ratio: %s. Script: %s",
		ratio, script,
	)
}

func joinEncodeErrors(encodeErrs map[Format]error) string {
	parts := make([]string, 0, len(encodeErrs))
	for format := range encodeErrs {
		parts = append(parts, fmt.Sprintf("%s export failed", format.Key()))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
