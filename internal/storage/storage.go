package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kwatanabe/amazon-order-scraper/internal/models"
)

// Sink receives the complete harvested item set at the end of a run.
type Sink interface {
	Write(items []models.LineItem) error
	Close() error
}

// JSONFileSink writes the items as a single JSON array, the document
// the report layer consumes.
type JSONFileSink struct {
	path string
}

func NewJSONFileSink(path string) *JSONFileSink {
	return &JSONFileSink{path: path}
}

func (s *JSONFileSink) Write(items []models.LineItem) error {
	if items == nil {
		items = []models.LineItem{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (s *JSONFileSink) Close() error { return nil }

// MultiSink fans one item set out to several sinks. The first write
// error wins but every sink still gets its chance.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Write(items []models.LineItem) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Write(items); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
