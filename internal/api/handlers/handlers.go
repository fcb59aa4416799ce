// Package handlers implements the HTTP API surface. Handlers depend
// only on the interfaces in pkg/contracts; wiring happens in
// pkg/server.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/internal/limiter"
	"github.com/easygenie/orchestrator/pkg/contracts"
	"github.com/easygenie/orchestrator/pkg/models"
)

// Handlers bundles the services the API exposes.
type Handlers struct {
	Orchestrator contracts.OrchestratorService
	Context      contracts.ContextService
	Learning     contracts.LearningService
	Registry     contracts.RegistryService
}

// New creates the handler set.
func New(o contracts.OrchestratorService, c contracts.ContextService, l contracts.LearningService, r contracts.RegistryService) *Handlers {
	return &Handlers{Orchestrator: o, Context: c, Learning: l, Registry: r}
}

// ── JSON helpers ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// Ready handles GET /readyz. The service is ready once at least one
// provider passes its health check.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.Orchestrator.Status(r.Context())
	if providers, ok := status["providers"].(map[models.Provider]*models.ProviderHealth); ok {
		for _, health := range providers {
			if health.Healthy {
				writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
				return
			}
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// ── Pipeline ─────────────────────────────────────────────────

// Process handles POST /v1/process — the full pipeline.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.Orchestrator.Process(r.Context(), &req)
	if err != nil {
		var rateErr *limiter.RateLimitError
		if errors.As(err, &rateErr) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Request handles POST /v1/request — the direct path.
func (h *Handlers) Request(w http.ResponseWriter, r *http.Request) {
	var req models.BasicRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.Orchestrator.MakeRequest(r.Context(), &req)
	if err != nil {
		var rateErr *limiter.RateLimitError
		if errors.As(err, &rateErr) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// textPayload is the shared body for the canned helper endpoints.
type textPayload struct {
	Text string `json:"text"`
}

type helperFunc func(ctx context.Context, text string) (*models.BasicResponse, error)

// AnalyzeText handles POST /v1/analyze-text.
func (h *Handlers) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	h.cannedHelper(w, r, h.Orchestrator.AnalyzeText)
}

// BreakDownTask handles POST /v1/break-down-task.
func (h *Handlers) BreakDownTask(w http.ResponseWriter, r *http.Request) {
	h.cannedHelper(w, r, h.Orchestrator.BreakDownTask)
}

// OptimizeRoutine handles POST /v1/optimize-routine.
func (h *Handlers) OptimizeRoutine(w http.ResponseWriter, r *http.Request) {
	h.cannedHelper(w, r, h.Orchestrator.OptimizeRoutine)
}

func (h *Handlers) cannedHelper(w http.ResponseWriter, r *http.Request, fn helperFunc) {
	var body textPayload
	if !decode(w, r, &body) {
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	resp, err := fn(r.Context(), body.Text)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Status, metrics, cache ───────────────────────────────────

// Status handles GET /v1/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Status(r.Context()))
}

// Metrics handles GET /v1/metrics.
func (h *Handlers) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Orchestrator.Metrics())
}

// ClearCache handles DELETE /v1/cache.
func (h *Handlers) ClearCache(w http.ResponseWriter, _ *http.Request) {
	h.Orchestrator.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ── Learning ─────────────────────────────────────────────────

// Recommendations handles GET /v1/recommendations/{tool}. The ?user=
// parameter scopes the quality insight to that user's trend.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	if tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}
	user := r.URL.Query().Get("user")
	writeJSON(w, http.StatusOK, h.Learning.Recommendations(user, tool))
}

// Patterns handles GET /v1/patterns.
func (h *Handlers) Patterns(w http.ResponseWriter, _ *http.Request) {
	patterns := h.Learning.TopPatterns()
	if patterns == nil {
		patterns = []*models.AdaptationPattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

// ── Capabilities ─────────────────────────────────────────────

// Capabilities handles GET /v1/capabilities, optionally filtered by
// the ?capability= query parameter.
func (h *Handlers) Capabilities(w http.ResponseWriter, r *http.Request) {
	if cap := r.URL.Query().Get("capability"); cap != "" {
		writeJSON(w, http.StatusOK, h.Registry.ListByCapability(cap))
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.ListModels())
}

// ── Preferences ──────────────────────────────────────────────

// GetPreferences handles GET /v1/preferences/{user}.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	prefs, err := h.Context.Preferences(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// SetPreferences handles PUT /v1/preferences/{user}.
func (h *Handlers) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.Preferences
	if !decode(w, r, &prefs) {
		return
	}
	prefs.UserID = chi.URLParam(r, "user")
	if err := h.Context.SetPreferences(r.Context(), &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &prefs)
}

// ── Context ──────────────────────────────────────────────────

// AddContext handles POST /v1/context.
func (h *Handlers) AddContext(w http.ResponseWriter, r *http.Request) {
	var entry models.ContextEntry
	if !decode(w, r, &entry) {
		return
	}
	if entry.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := h.Context.AddEntry(r.Context(), &entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &entry)
}

// EndSession handles DELETE /v1/context/sessions/{session}: the
// session is flushed to the store and dropped from memory.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session")
	if err := h.Context.EndSession(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended", "session_id": id})
}

// QueryContext handles POST /v1/context/query.
func (h *Handlers) QueryContext(w http.ResponseWriter, r *http.Request) {
	var q models.ContextQuery
	if !decode(w, r, &q) {
		return
	}
	entries, err := h.Context.Relevant(r.Context(), &q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*models.ContextEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
