package routes

import (
	"github.com/gorilla/mux"

	"train-orchestrator/api/rest/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, orchestrator handlers.Orchestrator) {
	runHandler := handlers.NewRunHandler(orchestrator)
	modelHandler := handlers.NewModelHandler(orchestrator)
	statusHandler := handlers.NewStatusHandler(orchestrator)

	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.SubmitRun).Methods("POST")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")

	// Model endpoints
	api.HandleFunc("/models", modelHandler.ListModels).Methods("GET")
	api.HandleFunc("/models/{name}", modelHandler.DeleteModel).Methods("DELETE")
	api.HandleFunc("/infer", modelHandler.Infer).Methods("POST")

	// Status endpoint
	api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")
}
