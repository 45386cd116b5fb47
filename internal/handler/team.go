package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/team"
)

// TeamHandler handles team endpoints.
type TeamHandler struct {
	teams *team.Service
}

// NewTeamHandler creates a new TeamHandler.
func NewTeamHandler(teams *team.Service) *TeamHandler {
	return &TeamHandler{teams: teams}
}

type createTeamRequest struct {
	Name      string   `json:"name"`
	Country   string   `json:"country"`
	OwnerID   string   `json:"ownerId"`
	PlayerIDs []string `json:"players"`
}

// Create handles POST /teams. A regular caller always creates for itself;
// only an admin may name another owner.
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req createTeamRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	ownerID := req.OwnerID
	if ownerID == "" {
		ownerID = ident.UserID
	}
	if !ident.IsAdmin() && ownerID != ident.UserID {
		RespondError(w, domain.ErrInadequatePermissions())
		return
	}

	t, err := h.teams.Create(r.Context(), team.CreateRequest{
		Name:      req.Name,
		Country:   req.Country,
		OwnerID:   ownerID,
		PlayerIDs: req.PlayerIDs,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, t)
}

// List handles GET /teams.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	q := r.URL.Query()
	teams, err := h.teams.Fetch(r.Context(), ident, team.Query{
		Name:     q.Get("name"),
		Country:  q.Get("country"),
		PlayerID: q.Get("playerId"),
		OwnerID:  q.Get("ownerId"),
		Value:    cmpParams(q, "value"),
		Budget:   cmpParams(q, "budget"),
	}, parsePage(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, teams)
}

// Get handles GET /teams/{id}.
func (h *TeamHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	t, err := h.teams.FetchByID(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, t)
}

type updateTeamRequest struct {
	Name      *string   `json:"name"`
	Country   *string   `json:"country"`
	Budget    *int64    `json:"budget"`
	PlayerIDs *[]string `json:"players"`
	OwnerID   *string   `json:"ownerId"`
}

// Update handles PATCH /teams/{id}.
func (h *TeamHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req updateTeamRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.teams.UpdateByID(r.Context(), ident, id, team.UpdateRequest{
		Name:      req.Name,
		Country:   req.Country,
		Budget:    req.Budget,
		PlayerIDs: req.PlayerIDs,
		OwnerID:   req.OwnerID,
	}); err != nil {
		RespondError(w, err)
		return
	}

	t, err := h.teams.FetchByID(r.Context(), ident, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /teams/{id}.
func (h *TeamHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.teams.Delete(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
