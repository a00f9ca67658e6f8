package manager

import (
	"sort"
	"sync"

	"train-orchestrator/core/models"
)

// runRegistry is the in-memory view of every known run. All reads served
// by the manager come from here; the durable store is only read back at
// startup. Callers always get copies, never the stored record.
type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*models.RunRecord
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		runs: make(map[string]*models.RunRecord),
	}
}

// Put stores a copy of record, replacing any previous version.
func (r *runRegistry) Put(record models.RunRecord) {
	copied := record.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[record.RunID] = &copied
}

// Get returns a copy of the record for runID.
func (r *runRegistry) Get(runID string) (models.RunRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.runs[runID]
	if !ok {
		return models.RunRecord{}, false
	}
	return record.Clone(), true
}

// Update applies fn to the stored record under the write lock, so state
// transitions are atomic, and returns a copy of the result.
func (r *runRegistry) Update(runID string, fn func(*models.RunRecord)) (models.RunRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.runs[runID]
	if !ok {
		return models.RunRecord{}, false
	}
	fn(record)
	return record.Clone(), true
}

// List returns copies of all records, newest first. An empty tenantID
// returns every tenant's runs.
func (r *runRegistry) List(tenantID string) []models.RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []models.RunRecord
	for _, record := range r.runs {
		if tenantID != "" && record.TenantID != tenantID {
			continue
		}
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RunID > records[j].RunID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}

// CountByState returns how many runs sit in each state.
func (r *runRegistry) CountByState() map[models.RunState]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[models.RunState]int)
	for _, record := range r.runs {
		counts[record.State]++
	}
	return counts
}
