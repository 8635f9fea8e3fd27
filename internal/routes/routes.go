package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pipetrack/pipetrack-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(pipeline *handlers.PipelineHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", pipeline.HealthCheck).Methods(http.MethodGet)

	router.HandleFunc("/", pipeline.Root).Methods(http.MethodGet)
	router.HandleFunc("/get_pipeline_info", pipeline.GetPipelineInfo).Methods(http.MethodGet)
	router.HandleFunc("/pipelines", pipeline.ListPipelines).Methods(http.MethodGet)
	router.HandleFunc("/pipelines", pipeline.CreatePipeline).Methods(http.MethodPost)
	router.HandleFunc("/pipelines/runs/{dateCode}", pipeline.GetRunByDateCode).Methods(http.MethodGet)

	return router
}
