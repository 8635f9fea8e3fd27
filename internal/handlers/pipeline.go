package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pipetrack/pipetrack-api/internal/models"
	"github.com/pipetrack/pipetrack-api/internal/repository"
)

type PipelineHandler struct {
	repo    repository.PipelineRunRepository
	backend string
	logger  zerolog.Logger
}

func NewPipelineHandler(repo repository.PipelineRunRepository, backend string, logger zerolog.Logger) *PipelineHandler {
	return &PipelineHandler{
		repo:    repo,
		backend: backend,
		logger:  logger,
	}
}

// GetPipelineInfo serves filtered, paginated run queries.
func (h *PipelineHandler) GetPipelineInfo(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.repo.List(r.Context(), filter, page)
	if err != nil {
		h.writeError(w, "list pipeline runs", err)
		return
	}

	total := len(runs)
	if !page.All {
		total, err = h.repo.Count(r.Context(), filter)
		if err != nil {
			h.writeError(w, "count pipeline runs", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, models.PipelineRunList{
		Total:     total,
		Count:     len(runs),
		Results:   runs,
		Pipelines: uniquePipelines(runs),
	})
}

// ListPipelines serves the per-signature summary view.
func (h *PipelineHandler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.Summaries(r.Context())
	if err != nil {
		h.writeError(w, "summarize pipelines", err)
		return
	}
	writeJSON(w, http.StatusOK, models.PipelineSummaryList{Pipelines: summaries})
}

// CreatePipeline inserts a single run record.
func (h *PipelineHandler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var run models.PipelineRun
	if err := json.NewDecoder(r.Body).Decode(&run); err != nil {
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := run.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.Insert(r.Context(), &run); err != nil {
		h.writeError(w, "insert pipeline run", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// GetRunByDateCode looks up one run for file-serving callers.
func (h *PipelineHandler) GetRunByDateCode(w http.ResponseWriter, r *http.Request) {
	dateCode := mux.Vars(r)["dateCode"]
	run, err := h.repo.FindByDateCode(r.Context(), dateCode)
	if err != nil {
		h.writeError(w, "find pipeline run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HealthCheck returns a simple JSON status naming the active backend.
func (h *PipelineHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": h.backend,
	})
}

// Root returns service metadata.
func (h *PipelineHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Pipeline run metadata API. See /get_pipeline_info and /pipelines.",
		"backend":  h.backend,
		"features": []string{"multi-pipeline", "filtering", "pagination", "statistics"},
	})
}

func (h *PipelineHandler) writeError(w http.ResponseWriter, op string, err error) {
	var validation *models.ValidationError
	var configErr *repository.ConfigError

	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "Record not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrResourceExhausted):
		h.logger.Error().Err(err).Str("op", op).Msg("backend overloaded")
		http.Error(w, "Storage backend is overloaded", http.StatusServiceUnavailable)
	case errors.As(err, &configErr):
		h.logger.Error().Err(err).Str("op", op).Msg("backend misconfigured")
		http.Error(w, "Storage backend is misconfigured", http.StatusInternalServerError)
	default:
		h.logger.Error().Err(err).Str("op", op).Msg("storage failure")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func parseFilter(r *http.Request) (repository.Filter, error) {
	q := r.URL.Query()
	var f repository.Filter

	var err error
	if f.StartUTC, err = parseTimeParam(q.Get("start_utc"), "start_utc"); err != nil {
		return f, err
	}
	if f.EndUTC, err = parseTimeParam(q.Get("end_utc"), "end_utc"); err != nil {
		return f, err
	}
	if f.MinRowcount, err = parseIntParam(q.Get("min_rowcount"), "min_rowcount"); err != nil {
		return f, err
	}
	if f.MaxRowcount, err = parseIntParam(q.Get("max_rowcount"), "max_rowcount"); err != nil {
		return f, err
	}
	f.PipelineName = optionalParam(q.Get("pipeline_name"))
	f.ScriptName = optionalParam(q.Get("script_name"))
	f.PipelineType = optionalParam(q.Get("pipeline_type"))
	f.Environment = optionalParam(q.Get("environment"))
	return f, nil
}

func parsePage(r *http.Request) (repository.Page, error) {
	q := r.URL.Query()
	page := repository.Page{Limit: repository.DefaultLimit}

	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return page, &models.ValidationError{Field: "limit", Reason: "must be an integer"}
		}
		page.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return page, &models.ValidationError{Field: "offset", Reason: "must be an integer"}
		}
		page.Offset = v
	}
	if raw := q.Get("all_data"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return page, &models.ValidationError{Field: "all_data", Reason: "must be a boolean"}
		}
		page.All = v
	}
	if err := page.Validate(); err != nil {
		return page, err
	}
	return page, nil
}

func parseTimeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := models.ParseTimestamp(raw)
	if err != nil {
		return nil, &models.ValidationError{Field: name, Reason: "unparseable timestamp"}
	}
	t := ts.Time
	return &t, nil
}

func parseIntParam(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &models.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return &v, nil
}

func optionalParam(raw string) *string {
	if raw == "" {
		return nil
	}
	return &raw
}

func uniquePipelines(runs []models.PipelineRun) []string {
	seen := make(map[string]bool)
	names := []string{}
	for i := range runs {
		if runs[i].PipelineName == nil {
			continue
		}
		name := *runs[i].PipelineName
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
