package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"train-orchestrator/core/models"
	"train-orchestrator/core/trainer"
)

// ModelHandler handles stored-model and inference HTTP requests
type ModelHandler struct {
	orchestrator Orchestrator
	validate     *validator.Validate
}

// NewModelHandler creates a new model handler
func NewModelHandler(orchestrator Orchestrator) *ModelHandler {
	return &ModelHandler{
		orchestrator: orchestrator,
		validate:     validator.New(),
	}
}

// ListModels handles GET /v1/models
func (h *ModelHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	metas, err := h.orchestrator.ListModels(r.Context(), tenant)
	if err != nil {
		writeError(w, err)
		return
	}
	if metas == nil {
		metas = []models.ModelMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": metas,
	})
}

// DeleteModel handles DELETE /v1/models/{name}. Deleting a name with no
// stored versions reports deleted=false rather than an error.
func (h *ModelHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	deleted, err := h.orchestrator.DeleteModel(r.Context(), tenant, mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"deleted": deleted,
	})
}

// InferRequest represents the request to run detection with a stored model
type InferRequest struct {
	TenantID      string   `json:"tenant_id" validate:"required"`
	ModelName     string   `json:"model_name" validate:"required"`
	Images        []string `json:"images" validate:"required,min=1,dive,required"`
	ConfThreshold float64  `json:"conf_threshold" validate:"gte=0,lte=1"`
	IOUThreshold  float64  `json:"iou_threshold" validate:"gte=0,lte=1"`
}

// Infer handles POST /v1/infer
func (h *ModelHandler) Infer(w http.ResponseWriter, r *http.Request) {
	var req InferRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	results, err := h.orchestrator.Infer(r.Context(), req.TenantID, req.ModelName, req.Images, trainer.PredictOptions{
		ConfThreshold: req.ConfThreshold,
		IOUThreshold:  req.IOUThreshold,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []models.ImageResult{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
