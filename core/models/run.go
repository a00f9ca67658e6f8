package models

import "time"

// RunRecord represents a single training run submitted to the orchestrator
type RunRecord struct {
	RunID        string   `json:"run_id"`
	TenantID     string   `json:"tenant_id"`
	RunName      string   `json:"run_name"` // Caller-chosen label, seeds artifact naming; not unique
	BaseModelRef string   `json:"base_model_ref"`
	DatasetRef   string   `json:"dataset_ref"`
	EpochCount   int      `json:"epoch_count"`
	State        RunState `json:"state"`
	// FinalArtifactPath is set only once the run reaches StateCompleted
	FinalArtifactPath string     `json:"final_artifact_path,omitempty"`
	Error             string     `json:"error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// RunState represents the current state of a run
type RunState string

const (
	StateQueued    RunState = "queued"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// Terminal reports whether no further state transitions are possible
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Clone returns a copy of the record safe to hand to callers
func (r *RunRecord) Clone() RunRecord {
	out := *r
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
