package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/squadmarket/platform/internal/domain"
	"github.com/squadmarket/platform/internal/transfer"
)

// TransferHandler handles marketplace endpoints.
type TransferHandler struct {
	transfers *transfer.Service
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transfers *transfer.Service) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	PlayerID        string `json:"playerId"`
	InitiatorTeamID string `json:"initiatorTeamId"`
	BuyNowPrice     int64  `json:"buyNowPrice"`
}

// Create handles POST /transfers.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req createTransferRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	tr, err := h.transfers.Create(r.Context(), ident, transfer.CreateRequest{
		PlayerID:        req.PlayerID,
		InitiatorTeamID: req.InitiatorTeamID,
		BuyNowPrice:     req.BuyNowPrice,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tr)
}

// List handles GET /transfers. The market is visible to every
// authenticated caller.
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := identityFrom(r); err != nil {
		RespondError(w, err)
		return
	}

	q := r.URL.Query()
	transfers, err := h.transfers.Fetch(r.Context(), transfer.Query{
		PlayerID:        q.Get("playerId"),
		FirstName:       q.Get("firstName"),
		LastName:        q.Get("lastName"),
		Status:          domain.TransferStatus(q.Get("status")),
		InitiatorTeamID: q.Get("teamId"),
		OwnerID:         q.Get("ownerId"),
		Price:           cmpParams(q, "price"),
	}, parsePage(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, transfers)
}

// Get handles GET /transfers/{id}.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, err := identityFrom(r); err != nil {
		RespondError(w, err)
		return
	}

	tr, err := h.transfers.FetchByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tr)
}

type buyTransferRequest struct {
	ToTeamID string `json:"toTeamId"`
}

// Buy handles POST /transfers/{id}/buy: the buy-now settlement.
func (h *TransferHandler) Buy(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req buyTransferRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}
	if req.ToTeamID == "" {
		RespondError(w, domain.ErrInvalidInput("toTeamId is required"))
		return
	}

	tr, err := h.transfers.Settle(r.Context(), ident, chi.URLParam(r, "id"), req.ToTeamID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tr)
}

type updateTransferRequest struct {
	PlayerID    string `json:"playerId"`
	BuyNowPrice *int64 `json:"buyNowPrice"`
}

// Update handles PATCH /transfers/{id}.
func (h *TransferHandler) Update(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req updateTransferRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidInput("invalid JSON body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.transfers.UpdateByID(r.Context(), ident, id, transfer.UpdateRequest{
		PlayerID:    req.PlayerID,
		BuyNowPrice: req.BuyNowPrice,
	}); err != nil {
		RespondError(w, err)
		return
	}

	tr, err := h.transfers.FetchByID(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tr)
}

// Delete handles DELETE /transfers/{id}.
func (h *TransferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFrom(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	if err := h.transfers.DeleteByID(r.Context(), ident, chi.URLParam(r, "id")); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusNoContent, nil)
}
