package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job management
	mux.HandleFunc("/v1/jobs", s.handleJobsRoute)  // POST (create), GET (list)
	mux.HandleFunc("/v1/jobs/", s.handleJobRoutes) // GET/DELETE /{id}, GET /{id}/artifact

	// System
	mux.HandleFunc("/v1/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/v1/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute serves the collection endpoint
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.JobHandler.CreateJobHandler(w, r)
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes serves per-job endpoints: /v1/jobs/{id} and
// /v1/jobs/{id}/artifact
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	if suffix == "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if jobID, ok := strings.CutSuffix(suffix, "/artifact"); ok && jobID != "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.app.JobHandler.ArtifactHandler(w, r, jobID)
		return
	}

	if strings.Contains(suffix, "/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.GetJobHandler(w, r, suffix)
	case http.MethodDelete:
		s.app.JobHandler.DeleteJobHandler(w, r, suffix)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
