package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kwatanabe/amazon-order-scraper/internal/models"
)

// Store persists crawl progress to a single JSON file. Saves happen
// only at page boundaries, so a crash loses at most the page in flight.
type Store struct {
	path   string
	logger *slog.Logger
}

func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: slog.Default().With("component", "checkpoint"),
	}
}

// Load returns the persisted crawl state. A missing or unreadable file
// yields a fresh empty state: starting over is always safe, losing
// progress silently to a malformed read is not worth crashing over.
func (s *Store) Load() *models.CrawlState {
	state := &models.CrawlState{}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("checkpoint unreadable, starting fresh", "path", s.path, "error", err)
		}
		return state
	}

	if err := json.Unmarshal(data, state); err != nil {
		s.logger.Warn("checkpoint corrupt, starting fresh", "path", s.path, "error", err)
		return &models.CrawlState{}
	}

	return state
}

// Save atomically overwrites the checkpoint file: write to a temp file
// in the same directory, then rename over the old one.
func (s *Store) Save(state *models.CrawlState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	return nil
}
