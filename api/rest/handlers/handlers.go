// Package handlers implements the REST surface over the run manager.
// Handlers translate HTTP to manager calls and map the core error types
// onto status codes; no orchestration logic lives here.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"train-orchestrator/core/manager"
	"train-orchestrator/core/models"
	"train-orchestrator/core/trainer"
	"train-orchestrator/core/trainerrors"
)

// Orchestrator is the slice of the run manager the REST layer uses.
type Orchestrator interface {
	Submit(ctx context.Context, req manager.SubmitRequest) (string, error)
	QueryRun(runID string) (models.RunRecord, error)
	ListRuns(tenantID string) []models.RunRecord
	ListModels(ctx context.Context, tenantID string) ([]models.ModelMeta, error)
	DeleteModel(ctx context.Context, tenantID, modelName string) (bool, error)
	Infer(ctx context.Context, tenantID, modelName string, images []string, opts trainer.PredictOptions) ([]models.ImageResult, error)
	Snapshot() manager.Snapshot
}

// writeJSON encodes body with the given status code.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps the core error taxonomy onto HTTP status codes:
// not-found resources are 404, rejected input is 400, a failing training
// or inference backend is 502 and everything else is 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var notFound *trainerrors.ErrNotFound
	var invalid *trainerrors.ErrInvalidArgument
	var capability *trainerrors.ErrCapability
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.As(err, &capability):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeAndValidate reads a JSON body into req and checks its validate
// tags, reporting the first failure as a 400.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	if err := validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return false
	}
	return true
}

// requireTenant reads the tenant query parameter shared by the model
// endpoints.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing tenant query parameter"})
		return "", false
	}
	return tenant, true
}
