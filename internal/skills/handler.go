package skills

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/api"
)

type Handler struct {
	index    *Index
	customs  CustomizationStore
	validate *validator.Validate
}

func NewHandler(index *Index, customs CustomizationStore) *Handler {
	return &Handler{
		index:    index,
		customs:  customs,
		validate: validator.New(),
	}
}

// List returns the loaded skill catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, h.index.Skills())
}

// Reload drops and rebuilds the skill catalog from disk.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	h.index.Invalidate()
	if err := h.index.Load(); err != nil {
		slog.Error("reloading skill catalog", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "skill catalog reloaded")
}

// ListCustomizations returns all of an account's skill notes.
func (h *Handler) ListCustomizations(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}

	customs, err := h.customs.ListByAccount(r.Context(), accountID)
	if err != nil {
		slog.Error("listing skill customizations", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, customs)
}

// UpsertCustomization creates or replaces an account's note for a skill.
// The skill must exist in the loaded catalog.
func (h *Handler) UpsertCustomization(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}
	skillID := chi.URLParam(r, "skillID")
	if h.index.Get(skillID) == nil {
		api.HandleError(w, api.NewNotFoundError("unknown skill"))
		return
	}

	var req UpsertCustomizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	custom := &Customization{
		AccountID: accountID,
		SkillID:   skillID,
		Note:      req.Note,
	}
	if err := h.customs.Upsert(r.Context(), custom); err != nil {
		slog.Error("upserting skill customization", "error", err, "account_id", accountID, "skill_id", skillID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, custom)
}

// DeleteCustomization removes an account's note for a skill.
func (h *Handler) DeleteCustomization(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}
	skillID := chi.URLParam(r, "skillID")

	if err := h.customs.Delete(r.Context(), accountID, skillID); err != nil {
		slog.Error("deleting skill customization", "error", err, "account_id", accountID, "skill_id", skillID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "customization deleted")
}
