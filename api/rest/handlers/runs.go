package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"train-orchestrator/core/manager"
	"train-orchestrator/core/models"
)

// RunHandler handles training-run HTTP requests
type RunHandler struct {
	orchestrator Orchestrator
	validate     *validator.Validate
}

// NewRunHandler creates a new run handler
func NewRunHandler(orchestrator Orchestrator) *RunHandler {
	return &RunHandler{
		orchestrator: orchestrator,
		validate:     validator.New(),
	}
}

// SubmitRunRequest represents the request to start a training run
type SubmitRunRequest struct {
	TenantID     string `json:"tenant_id" validate:"required"`
	RunName      string `json:"run_name" validate:"required"`
	BaseModelRef string `json:"base_model_ref" validate:"required"`
	DatasetRef   string `json:"dataset_ref" validate:"required"`
	EpochCount   int    `json:"epoch_count" validate:"gte=0"`
	Device       string `json:"device"`
}

// SubmitRunResponse represents the response after submitting a run
type SubmitRunResponse struct {
	RunID     string          `json:"run_id"`
	State     models.RunState `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// SubmitRun handles POST /v1/runs
func (h *RunHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	runID, err := h.orchestrator.Submit(r.Context(), manager.SubmitRequest{
		TenantID:     req.TenantID,
		RunName:      req.RunName,
		BaseModelRef: req.BaseModelRef,
		DatasetRef:   req.DatasetRef,
		EpochCount:   req.EpochCount,
		Device:       req.Device,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.orchestrator.QueryRun(runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitRunResponse{
		RunID:     record.RunID,
		State:     record.State,
		CreatedAt: record.CreatedAt,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	record, err := h.orchestrator.QueryRun(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListRuns handles GET /v1/runs. The optional tenant query parameter
// restricts the listing to one tenant.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	records := h.orchestrator.ListRuns(r.URL.Query().Get("tenant"))
	if records == nil {
		records = []models.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": records,
	})
}
