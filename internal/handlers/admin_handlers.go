package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finance-a2a-backend/internal/agents"
	"finance-a2a-backend/internal/models"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

// WhitelistService is what the admin handlers need for access control.
type WhitelistService interface {
	List(ctx context.Context) ([]models.UserWhitelist, error)
	Upsert(ctx context.Context, email string, req models.WhitelistRequest) (*models.UserWhitelist, error)
	Delete(ctx context.Context, email string) error
}

// AgentDirectory is the remote agent registry as seen by operators.
type AgentDirectory interface {
	List() []agents.Connection
	Refresh(ctx context.Context) int
	Check(ctx context.Context, name string) (*agents.AgentCard, error)
}

type AdminHandlers struct {
	whitelist WhitelistService
	agents    AgentDirectory
	log       *logger.Logger
}

func NewAdminHandlers(whitelist WhitelistService, directory AgentDirectory) *AdminHandlers {
	return &AdminHandlers{
		whitelist: whitelist,
		agents:    directory,
		log:       logger.Get().With("component", "admin_handlers"),
	}
}

// HandleListWhitelist handles GET /v1/admin/whitelist.
func (h *AdminHandlers) HandleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.whitelist.List(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	out := make([]models.WhitelistResponse, 0, len(entries))
	for i := range entries {
		out = append(out, models.ToWhitelistResponse(&entries[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, out)
}

// HandleUpsertWhitelist handles PUT /v1/admin/whitelist/{email}.
func (h *AdminHandlers) HandleUpsertWhitelist(w http.ResponseWriter, r *http.Request) {
	var req models.WhitelistRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := h.whitelist.Upsert(r.Context(), chi.URLParam(r, "email"), req)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.ToWhitelistResponse(entry))
}

// HandleDeleteWhitelist handles DELETE /v1/admin/whitelist/{email}.
func (h *AdminHandlers) HandleDeleteWhitelist(w http.ResponseWriter, r *http.Request) {
	if err := h.whitelist.Delete(r.Context(), chi.URLParam(r, "email")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func agentsStatus(conns []agents.Connection) models.AgentsStatusResponse {
	resp := models.AgentsStatusResponse{Agents: make([]models.AgentStatusResponse, 0, len(conns)), Count: len(conns)}
	for _, c := range conns {
		resp.Agents = append(resp.Agents, models.AgentStatusResponse{
			Name:        c.Card.Name,
			URL:         c.URL,
			Description: c.Card.Description,
			Version:     c.Card.Version,
			Skills:      c.Card.SkillNames(),
		})
	}
	return resp
}

// HandleListAgents handles GET /v1/admin/agents.
func (h *AdminHandlers) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, agentsStatus(h.agents.List()))
}

// HandleRefreshAgents handles POST /v1/admin/agents/refresh.
func (h *AdminHandlers) HandleRefreshAgents(w http.ResponseWriter, r *http.Request) {
	resolved := h.agents.Refresh(r.Context())
	h.log.Infow("Agents refreshed by operator", "resolved", resolved)
	httputil.RespondJSON(w, http.StatusOK, agentsStatus(h.agents.List()))
}

// HandleTestAgent handles POST /v1/admin/agents/{name}/test.
func (h *AdminHandlers) HandleTestAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	card, err := h.agents.Check(r.Context(), name)
	if err != nil {
		if !errors.Is(err, agents.ErrAgentNotFound) {
			h.log.Warnw("Agent check failed", "agent", name, "error", err)
			httputil.RespondError(w, http.StatusBadGateway, "Agent did not respond with a valid card")
			return
		}
		respondServiceError(w, r, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.AgentStatusResponse{
		Name:        card.Name,
		Description: card.Description,
		Version:     card.Version,
		Skills:      card.SkillNames(),
	})
}
