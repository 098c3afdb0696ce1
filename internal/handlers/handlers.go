// Package handlers implements the rowguard HTTP API.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/veridian-systems/rowguard/internal/httputil"
	"github.com/veridian-systems/rowguard/internal/logging"
	"github.com/veridian-systems/rowguard/internal/models"
	"github.com/veridian-systems/rowguard/internal/pipeline"
	"github.com/veridian-systems/rowguard/internal/state"
)

// Runner starts one pipeline run for an artifact.
type Runner interface {
	Run(ctx context.Context, artifact string) (models.RunSummary, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves run triggering and status endpoints.
type Handler struct {
	runner Runner
	state  *state.Manager
	pinger Pinger
	logger *logging.Logger
}

// New creates a handler. pinger may be nil when no dependency readiness check
// applies (file-based rule source).
func New(runner Runner, st *state.Manager, pinger Pinger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		runner: runner,
		state:  st,
		pinger: pinger,
		logger: logger.With(logging.Component("http")),
	}
}

type runRequest struct {
	Artifact string `json:"artifact"`
}

// TriggerRun starts a synchronous run for the artifact in the request body.
// Partial failures (faulted rules, rejected rows) still return 200 with the
// summary; only total run failure maps to an error status.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Artifact == "" {
		httputil.WriteError(w, http.StatusBadRequest, "artifact is required")
		return
	}

	summary, err := h.runner.Run(r.Context(), req.Artifact)
	if err != nil {
		var runErr *pipeline.RunError
		if errors.As(err, &runErr) {
			httputil.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":   runErr.Error(),
				"stage":   runErr.Stage,
				"summary": summary,
			})
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, summary)
}

// LastRun returns the most recent run summary, when state tracking is on.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.state.LastRun(r.Context())
	if errors.Is(err, state.ErrNoLastRun) {
		httputil.WriteError(w, http.StatusNotFound, "no completed runs recorded")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports whether backing dependencies are reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
