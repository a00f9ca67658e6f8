package models

import "time"

// MetricRecord represents one set of training metrics for a (run, epoch) pair.
// Epochs are 1-based and never exceed the run's EpochCount.
type MetricRecord struct {
	RunID      string             `json:"run_id"`
	Epoch      int                `json:"epoch"`
	Metrics    map[string]float64 `json:"metrics"`
	RecordedAt time.Time          `json:"recorded_at"`
}
