// Package handlers implements the HTTP handlers for the agent
// orchestration core. The only contract the dashboard layer depends on is
// the run endpoint; the rest is operational surface (model list, health).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dashforge/dashforge/agent-core/internal/dispatch"
	"github.com/dashforge/dashforge/agent-core/internal/modelcache"
	"github.com/dashforge/dashforge/agent-core/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Dispatcher *dispatch.Dispatcher
	Models     *modelcache.Cache
}

// New creates a Handlers instance.
func New(d *dispatch.Dispatcher, mc *modelcache.Cache) *Handlers {
	return &Handlers{Dispatcher: d, Models: mc}
}

// runRequest is the inbound payload of the run endpoint.
type runRequest struct {
	Agent   *models.AgentConfig      `json:"agent"`
	Data    *models.AgentRequestData `json:"data"`
	BaseURL string                   `json:"baseUrl,omitempty"`
}

// RunAgent is the single orchestration entry point: it accepts an agent
// configuration plus request data and answers with the uniform envelope.
// Failures are normal 200 envelopes with success=false; only an unreadable
// request body is a 400.
func (h *Handlers) RunAgent(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.Failure("Invalid request body"))
		return
	}

	resp := h.Dispatcher.Dispatch(r.Context(), req.Agent, req.Data, req.BaseURL)
	respondJSON(w, http.StatusOK, resp)
}

// ListModels serves the cached model list.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	list := h.Models.Models(r.Context())
	if list == nil {
		list = []models.ModelDescriptor{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    list,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
