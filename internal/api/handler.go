// Package api implements the HTTP control plane of the jobfeed service.
//
// Routes:
//
//	GET      /, /health        → liveness, run state and artifact metadata
//	GET      /status           → run state snapshot
//	GET|POST /run-search       → start a cycle in the background
//	GET      /job_results.csv  → latest artifact as a CSV attachment
//	GET      /jobs             → latest artifact as JSON
//	GET      /metrics          → Prometheus exposition
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobmate/jobfeed-service/internal/logger"
	"jobmate/jobfeed-service/internal/model"
	"jobmate/jobfeed-service/internal/orchestrator"
	"jobmate/jobfeed-service/internal/store"
)

// ReasonManual is the trigger reason recorded for /run-search.
const ReasonManual = "manual"

const serviceName = "jobfeed-service"

// Runner is the part of the orchestrator exposed over HTTP.
type Runner interface {
	Start(ctx context.Context, reason string) (orchestrator.RunResult, bool)
	Status() orchestrator.RunState
}

// ArtifactReader returns the latest published artifact.
type ArtifactReader interface {
	Current() (*model.Artifact, error)
}

// ─── Response types ───────────────────────────────────────────────────────────

// HealthResponse is returned by / and /health.
type HealthResponse struct {
	Status           string                `json:"status"`
	Service          string                `json:"service"`
	Version          string                `json:"version"`
	CSVExists        bool                  `json:"csvExists"`
	CSVUpdated       *time.Time            `json:"csvUpdated"`
	CSVSizeBytes     int                   `json:"csvSizeBytes"`
	LastSearch       *time.Time            `json:"lastSearch"`
	SearchInProgress bool                  `json:"searchInProgress"`
	State            orchestrator.RunState `json:"state"`
}

// RunSearchResponse is returned by /run-search.
type RunSearchResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RunID       string `json:"runId,omitempty"`
	CheckStatus string `json:"checkStatus,omitempty"`
}

// JobsResponse is returned by /jobs.
type JobsResponse struct {
	Count   int                  `json:"count"`
	Updated time.Time            `json:"updated"`
	RunID   string               `json:"runId"`
	Jobs    []model.OutputRecord `json:"jobs"`
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	runner    Runner
	artifacts ArtifactReader
	metrics   http.Handler
	version   string
	log       logger.Logger
}

// NewHandler returns a configured Handler. gatherer backs /metrics.
func NewHandler(runner Runner, artifacts ArtifactReader, gatherer prometheus.Gatherer, version string, log logger.Logger) *Handler {
	return &Handler{
		runner:    runner,
		artifacts: artifacts,
		metrics:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		version:   version,
		log:       log,
	}
}

// RegisterRoutes mounts all control-plane routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.handleIndex)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/run-search", h.handleRunSearch)
	mux.HandleFunc("/job_results.csv", h.handleCSV)
	mux.HandleFunc("/jobs", h.handleJobs)
	mux.Handle("/metrics", h.metrics)
}

// ─── Individual handlers ──────────────────────────────────────────────────────

// handleIndex serves GET / and rejects every unknown path.
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonError(w, "not found", http.StatusNotFound)
		return
	}
	h.handleHealth(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.runner.Status()
	resp := HealthResponse{
		Status:           "waiting",
		Service:          serviceName,
		Version:          h.version,
		LastSearch:       state.LastRunCompletedAt,
		SearchInProgress: state.Status == orchestrator.StatusRunning,
		State:            state,
	}

	if a, err := h.artifacts.Current(); err == nil {
		var buf bytes.Buffer
		if err := store.WriteCSV(&buf, a); err != nil {
			h.log.Error("Render CSV for health failed", logger.Error(err))
		}
		generated := a.GeneratedAt
		resp.Status = "healthy"
		resp.CSVExists = true
		resp.CSVUpdated = &generated
		resp.CSVSizeBytes = buf.Len()
	}

	jsonOK(w, resp)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, h.runner.Status())
}

func (h *Handler) handleRunSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res, started := h.runner.Start(r.Context(), ReasonManual)
	if !started {
		jsonWrite(w, http.StatusConflict, RunSearchResponse{
			Status:  string(orchestrator.OutcomeSkipped),
			Message: "A search is already in progress",
		})
		return
	}

	h.log.Info("Manual cycle started", logger.String("run_id", res.RunID))
	jsonWrite(w, http.StatusAccepted, RunSearchResponse{
		Status:      string(orchestrator.OutcomeStarted),
		Message:     "Job search started in background",
		RunID:       res.RunID,
		CheckStatus: "/status",
	})
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a, err := h.artifacts.Current()
	if errors.Is(err, store.ErrNoArtifact) {
		jsonError(w, "No results available yet", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Read artifact failed", logger.Error(err))
		jsonError(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := store.WriteCSV(&buf, a); err != nil {
		h.log.Error("Render CSV failed", logger.Error(err))
		jsonError(w, "artifact unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="job_results.csv"`)
	w.Header().Set("Last-Modified", a.GeneratedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a, err := h.artifacts.Current()
	if err != nil {
		if !errors.Is(err, store.ErrNoArtifact) {
			h.log.Error("Read artifact failed", logger.Error(err))
		}
		jsonWrite(w, http.StatusNotFound, map[string]any{
			"error": "No results available",
			"jobs":  []model.OutputRecord{},
		})
		return
	}

	jobs := a.Records
	if jobs == nil {
		jobs = []model.OutputRecord{}
	}
	jsonOK(w, JobsResponse{
		Count:   a.Count,
		Updated: a.GeneratedAt,
		RunID:   a.RunID,
		Jobs:    jobs,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func jsonOK(w http.ResponseWriter, v any) {
	jsonWrite(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonWrite(w, code, map[string]string{"error": msg})
}

func jsonWrite(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
