// -----------------------------------------------------------------------
// Job Handler - /v1/jobs API surface
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/describo/internal/common"
	"github.com/ternarybob/describo/internal/interfaces"
	"github.com/ternarybob/describo/internal/jobs"
	"github.com/ternarybob/describo/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 100
)

// CreateJobRequest is the POST /v1/jobs body.
type CreateJobRequest struct {
	Source         string `json:"source" validate:"required"`
	CallerID       string `json:"caller_id,omitempty" validate:"omitempty,max=128"`
	Credential     string `json:"credential,omitempty"`
	Variant        string `json:"variant,omitempty" validate:"omitempty,oneof=docs docs+comments"`
	HasWriteAccess bool   `json:"has_write_access,omitempty"`
}

// JobHandler serves the job management API.
type JobHandler struct {
	submitter *jobs.Submitter
	store     interfaces.JobStore
	gateway   interfaces.ArtifactGateway
	validate  *validator.Validate
	config    *common.Config
	logger    arbor.ILogger
}

func NewJobHandler(submitter *jobs.Submitter, store interfaces.JobStore, gateway interfaces.ArtifactGateway, config *common.Config, logger arbor.ILogger) *JobHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &JobHandler{
		submitter: submitter,
		store:     store,
		gateway:   gateway,
		validate:  validator.New(),
		config:    config,
		logger:    logger,
	}
}

// CreateJobHandler accepts a documentation request.
// POST /v1/jobs -> 201 created, 200 returning existing, 400 invalid source,
// 422 validation failure.
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	job, created, err := h.submitter.Submit(r.Context(), jobs.SubmitRequest{
		SourceURL:      req.Source,
		CallerID:       req.CallerID,
		Credential:     req.Credential,
		Variant:        models.Variant(req.Variant),
		HasWriteAccess: req.HasWriteAccess,
	})
	if err != nil {
		var stageErr *models.StageError
		if errors.As(err, &stageErr) && stageErr.Kind == models.ErrInvalidSource {
			WriteError(w, http.StatusBadRequest, stageErr.Message())
			return
		}
		h.logger.Error().Err(err).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, job)
}

// GetJobHandler returns a single job.
// GET /v1/jobs/{id} -> 200, 404
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// ListJobsHandler returns jobs newest-first.
// GET /v1/jobs?skip=&limit= -> 200; limit defaults to 100 and is capped there.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	skip := 0
	limit := defaultListLimit

	if s := r.URL.Query().Get("skip"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed >= 0 {
			skip = parsed
		}
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	list, err := h.store.ListJobs(r.Context(), skip, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []*models.Job{}
	}
	WriteJSON(w, http.StatusOK, list)
}

// DeleteJobHandler removes the job record. Published artifacts are retained.
// DELETE /v1/jobs/{id} -> 204, 404
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if err := h.store.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to delete job")
		WriteError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ArtifactHandler streams the generated document from the local docs tree,
// falling back to the artifact store when the local copy is gone.
// GET /v1/jobs/{id}/artifact -> 200 text/markdown, 404, 409 if not completed.
func (h *JobHandler) ArtifactHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job for artifact")
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	if job.Status != models.JobStatusCompleted {
		WriteError(w, http.StatusConflict, "job has not completed")
		return
	}

	path := filepath.Join(h.config.Workspace.Root, "docs", jobID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			h.serveFromGateway(w, r, jobID)
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to open artifact")
		WriteError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Artifact stream interrupted")
	}
}

// serveFromGateway fetches a published artifact whose local copy has been
// removed, typically after the reaper purged an expired job workspace.
func (h *JobHandler) serveFromGateway(w http.ResponseWriter, r *http.Request, jobID string) {
	if h.gateway == nil || !h.gateway.Configured() {
		WriteError(w, http.StatusNotFound, "artifact not found")
		return
	}

	body, err := h.gateway.Get(r.Context(), "docs/"+jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Artifact store fetch failed")
		WriteError(w, http.StatusNotFound, "artifact not found")
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Artifact stream interrupted")
	}
}
