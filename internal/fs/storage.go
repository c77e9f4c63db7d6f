package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage implements thumbnails.Storage on the local filesystem. Uploaded
// base images land in the upload directory; raw generated bytes land in the
// temp directory where the retention sweeper prunes them.
type Storage struct {
	uploadDir string
	tempDir   string
}

// NewStorage creates a new filesystem storage.
func NewStorage(uploadDir, tempDir string) *Storage {
	return &Storage{
		uploadDir: uploadDir,
		tempDir:   tempDir,
	}
}

// EnsureDirs creates the upload and temp directories if missing.
func (s *Storage) EnsureDirs() error {
	for _, dir := range []string{s.uploadDir, s.tempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}

// SaveUpload stores an uploaded base image under a unique name, keeping the
// original extension, and returns the file path.
func (s *Storage) SaveUpload(name string, content io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	filePath := filepath.Join(s.uploadDir, uuid.NewString()+filepath.Ext(name))
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return filePath, nil
}

// SaveTemp stores raw generated image bytes in the temp directory and
// returns the file path.
func (s *Storage) SaveTemp(data []byte) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	filePath := filepath.Join(s.tempDir, fmt.Sprintf("temp_%s.png", uuid.NewString()))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return filePath, nil
}
