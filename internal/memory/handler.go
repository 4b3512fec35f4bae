package memory

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/api"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List returns an account's memory cards, most recently updated first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}

	page, pageSize := 1, 20
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	cards, total, err := h.svc.List(r.Context(), accountID, page, pageSize)
	if err != nil {
		slog.Error("listing memory cards", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, cards, total, page, pageSize)
}

// Search runs similarity search over an account's cards.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		api.HandleError(w, api.NewBadRequestError("missing query parameter q"))
		return
	}

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 50 {
			limit = v
		}
	}

	results, err := h.svc.Search(r.Context(), accountID, query, limit, 0.7)
	if err != nil {
		slog.Error("searching memory cards", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, results)
}

type CreateRequest struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Scope      string  `json:"scope"`
	Importance int     `json:"importance"`
	Evidence   string  `json:"evidence"`
	Confidence float64 `json:"confidence"`
	MemberID   string  `json:"member_id"`
}

// Create stores an operator-written card directly.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if req.Content == "" {
		api.HandleError(w, api.NewValidationError("content is required"))
		return
	}
	if req.Scope == ScopeMember && req.MemberID == "" {
		api.HandleError(w, api.NewValidationError("member_id is required for member scope"))
		return
	}

	card, err := h.svc.CreateManual(r.Context(), accountID, req.MemberID, ExtractedMemory{
		Content:    req.Content,
		Category:   req.Category,
		Scope:      req.Scope,
		Importance: req.Importance,
		Evidence:   req.Evidence,
		Confidence: req.Confidence,
	})
	if err != nil {
		slog.Error("creating memory card", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, card)
}

// Delete removes one card.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}
	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid card id"))
		return
	}

	if err := h.svc.Delete(r.Context(), cardID, accountID); err != nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSONMessage(w, http.StatusOK, "memory card deleted")
}
