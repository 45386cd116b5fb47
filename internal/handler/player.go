package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/player"
)

// PlayerHandler handles player endpoints.
type PlayerHandler struct {
	players *player.Service
}

// NewPlayerHandler creates a new PlayerHandler.
func NewPlayerHandler(players *player.Service) *PlayerHandler {
	return &PlayerHandler{players: players}
}

type createPlayerRequest struct {
	Type      domain.PlayerType `json:"type"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Country   string            `json:"country"`
	Birthdate *time.Time        `json:"birthdate"`
	TeamID    string            `json:"teamId"`
}

// Create handles POST /players. Admin only; mounted behind RequireAdmin.
func (h *PlayerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	p, err := h.players.Create(r.Context(), player.CreateRequest{
		Type:      req.Type,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		Birthdate: req.Birthdate,
		TeamID:    req.TeamID,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, p)
}

// List handles GET /players.
func (h *PlayerHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	q := r.URL.Query()
	players, err := h.players.Fetch(r.Context(), ident, player.Query{
		Type:      domain.PlayerType(q.Get("type")),
		FirstName: q.Get("firstName"),
		LastName:  q.Get("lastName"),
		Country:   q.Get("country"),
		TeamID:    q.Get("teamId"),
		OwnerID:   q.Get("ownerId"),
		Uncapped:  q.Get("uncapped") == "true",
		Value:     cmpParams(q, "value"),
		Age:       cmpParams(q, "age"),
	}, parsePage(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, players)
}

// Get handles GET /players/{id}.
func (h *PlayerHandler) Get(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	p, err := h.players.FetchByID(r.Context(), ident, chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

type updatePlayerRequest struct {
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Country   string     `json:"country"`
	Birthdate *time.Time `json:"birthdate"`
	Value     int64      `json:"value"`
	TeamID    string     `json:"teamId"`
}

// Update handles PATCH /players/{id}.
func (h *PlayerHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req updatePlayerRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.players.UpdateByID(r.Context(), ident, id, player.UpdateRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Country:   req.Country,
		Birthdate: req.Birthdate,
		Value:     req.Value,
		TeamID:    req.TeamID,
	}); err != nil {
		RespondError(w, err)
		return
	}

	p, err := h.players.FetchByID(r.Context(), ident, id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /players/{id}.
func (h *PlayerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.players.DeleteByID(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
