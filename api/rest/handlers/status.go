package handlers

import (
	"net/http"

	"train-orchestrator/core/models"
)

// StatusHandler reports orchestrator occupancy
type StatusHandler struct {
	orchestrator Orchestrator
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(orchestrator Orchestrator) *StatusHandler {
	return &StatusHandler{orchestrator: orchestrator}
}

// GetStatus handles GET /v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.orchestrator.Snapshot()

	runs := make(map[string]int, 4)
	for _, state := range []models.RunState{
		models.StateQueued,
		models.StateRunning,
		models.StateCompleted,
		models.StateFailed,
	} {
		runs[string(state)] = snap.RunStates[state]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":        runs,
		"queue_depth": snap.QueueDepth,
		"admission": map[string]interface{}{
			"global_limit":  snap.Admission.GlobalLimit,
			"global_in_use": snap.Admission.GlobalInUse,
			"tenant_limit":  snap.Admission.TenantLimit,
			"waiting":       snap.Admission.Waiting,
		},
	})
}
