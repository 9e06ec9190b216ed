package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"auction-scraper/models"
)

// JSONWriter accumulates a batch and writes it as one pretty-printed JSON
// array on Close, alongside the CSV export.
type JSONWriter struct {
	mu    sync.Mutex
	path  string
	items []*models.Property
}

// NewJSONWriter prepares a timestamped JSON file for the given source under
// dir.
func NewJSONWriter(dir, source string) (*JSONWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("json: create output dir: %w", err)
	}

	name := fmt.Sprintf("%s_auctions_%s.json",
		strings.ToLower(source), time.Now().Format("20060102_150405"))
	return &JSONWriter{path: filepath.Join(dir, name)}, nil
}

// Path returns the file this writer will produce.
func (j *JSONWriter) Path() string { return j.path }

// Write buffers the batch. Records without a property URL are skipped.
func (j *JSONWriter) Write(properties []*models.Property) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, p := range properties {
		if p == nil || p.PropertyURL == "" {
			continue
		}
		j.items = append(j.items, p)
	}
	return nil
}

// Close writes the buffered records to disk.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.MarshalIndent(j.items, "", "  ")
	if err != nil {
		return fmt.Errorf("json: marshal: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0644); err != nil {
		return fmt.Errorf("json: write %q: %w", j.path, err)
	}
	return nil
}
