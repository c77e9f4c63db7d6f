package sweep

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// Sweeper deletes files older than a retention threshold. It is best-effort:
// a file that cannot be removed is logged and skipped, never stopping the
// rest of the sweep.
type Sweeper struct {
	logger *slog.Logger
}

// New creates a new sweeper.
func New(logger *slog.Logger) *Sweeper {
	return &Sweeper{logger: logger}
}

// Sweep removes regular files in dir whose modification time is older than
// olderThan and returns the number removed. A missing directory is not an
// error. Safe to run concurrently with active writers: a freshly written
// file is never old enough to match.
func (s *Sweeper) Sweep(dir string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("sweep: failed to stat file", "name", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			s.logger.Warn("sweep: failed to remove file", "name", entry.Name(), "error", err)
			continue
		}
		removed++
		s.logger.Info("sweep: removed file",
			"name", entry.Name(),
			"size", humanize.Bytes(uint64(info.Size())),
			"age", time.Since(info.ModTime()).Round(time.Second).String())
	}
	return removed, nil
}

// Schedule runs job on the given cron expression until the returned cron is
// stopped.
func Schedule(spec string, job func()) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}
	c.Start()
	return c, nil
}
