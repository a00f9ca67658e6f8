package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"train-orchestrator/core/models"
)

// FileRunStore keeps every run record in one JSON file, a map from run ID
// to record. Writes go through a temp file and rename so a crash can never
// leave a half-written state file behind.
type FileRunStore struct {
	mu   sync.Mutex
	path string
}

// NewFileRunStore creates the parent directory if needed.
func NewFileRunStore(path string) (*FileRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating run store dir")
	}
	return &FileRunStore{path: path}, nil
}

// Upsert implements RunStateStore
func (s *FileRunStore) Upsert(ctx context.Context, record models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return err
	}
	state[record.RunID] = record
	return s.save(state)
}

// LoadAll implements RunStateStore. Records come back ordered by creation
// time so recovery sees them in submission order.
func (s *FileRunStore) LoadAll(ctx context.Context) ([]models.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load()
	if err != nil {
		return nil, err
	}
	records := make([]models.RunRecord, 0, len(state))
	for _, record := range state {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RunID < records[j].RunID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (s *FileRunStore) load() (map[string]models.RunRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]models.RunRecord{}, nil
		}
		return nil, errors.Wrap(err, "reading run state file")
	}
	state := map[string]models.RunRecord{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrap(err, "decoding run state file")
	}
	return state, nil
}

func (s *FileRunStore) save(state map[string]models.RunRecord) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding run state")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing run state file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replacing run state file")
}
