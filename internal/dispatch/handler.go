package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/api"
)

// TimezoneResolver returns the account's IANA timezone for the approval
// quiet-hours check.
type TimezoneResolver interface {
	AccountTimezone(ctx context.Context, accountID uuid.UUID) (string, error)
}

type Handler struct {
	svc       *Service
	timezones TimezoneResolver
}

func NewHandler(svc *Service, timezones TimezoneResolver) *Handler {
	return &Handler{svc: svc, timezones: timezones}
}

// ListPending returns an account's withheld replies awaiting review.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}

	pending, err := h.svc.ListPending(r.Context(), accountID)
	if err != nil {
		slog.Error("listing pending dispatches", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, pending)
}

// Approve releases one withheld reply. The response reports whether it
// went out immediately or was deferred to the next send window.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}
	dispatchID, err := uuid.Parse(chi.URLParam(r, "dispatchID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid dispatch id"))
		return
	}

	tz, err := h.timezones.AccountTimezone(r.Context(), accountID)
	if err != nil {
		slog.Error("resolving account timezone", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	sent, err := h.svc.Approve(r.Context(), dispatchID, accountID, tz)
	if err != nil {
		if errors.Is(err, ErrNotPending) {
			api.HandleError(w, api.NewNotFoundError("dispatch is not pending"))
			return
		}
		slog.Error("approving dispatch", "error", err, "dispatch_id", dispatchID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"sent": sent, "deferred": !sent})
}

// Reject discards one withheld reply.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid account id"))
		return
	}
	dispatchID, err := uuid.Parse(chi.URLParam(r, "dispatchID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid dispatch id"))
		return
	}

	if err := h.svc.Reject(r.Context(), dispatchID, accountID); err != nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	api.JSONMessage(w, http.StatusOK, "dispatch rejected")
}
