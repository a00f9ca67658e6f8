package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"train-orchestrator/core/models"
)

// FileMetricsSink appends metric records to a JSON-lines file, one record
// per line.
type FileMetricsSink struct {
	mu   sync.Mutex
	path string
}

// NewFileMetricsSink creates the parent directory if needed.
func NewFileMetricsSink(path string) (*FileMetricsSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating metrics dir")
	}
	return &FileMetricsSink{path: path}, nil
}

// Append implements MetricsSink
func (s *FileMetricsSink) Append(ctx context.Context, record models.MetricRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	line, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encoding metric record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening metrics file")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "appending metric record")
	}
	return nil
}
