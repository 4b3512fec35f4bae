package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rejoinhq/rejoin/internal/api"
	"github.com/rejoinhq/rejoin/internal/sentiment"
)

// AccountResolver fills in the per-account settings for a thread. The
// accounts service implements it.
type AccountResolver interface {
	ResolveThreadContext(ctx context.Context, accountID, threadID uuid.UUID, memberAddr, memberName string) (ThreadContext, error)
}

// DecisionNotifier receives every recorded decision for downstream
// consumers (audit trail, memory extraction). May be nil.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, tc ThreadContext, result *EvalResult)
}

type Handler struct {
	engine   *Engine
	store    Store
	accounts AccountResolver
	notifier DecisionNotifier
	validate *validator.Validate
}

func NewHandler(engine *Engine, store Store, accounts AccountResolver, notifier DecisionNotifier) *Handler {
	return &Handler{
		engine:   engine,
		store:    store,
		accounts: accounts,
		notifier: notifier,
		validate: validator.New(),
	}
}

func (h *Handler) notify(ctx context.Context, tc ThreadContext, result *EvalResult) {
	if h.notifier != nil && result != nil && result.Decision != nil {
		h.notifier.NotifyDecision(ctx, tc, result)
	}
}

type EvaluateRequest struct {
	AccountID  uuid.UUID `json:"account_id" validate:"required"`
	MemberAddr string    `json:"member_addr" validate:"required"`
	MemberName string    `json:"member_name"`
	Text       string    `json:"text" validate:"required"`
}

// Evaluate records an inbound member message and runs one decision cycle.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid thread id"))
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tc, err := h.accounts.ResolveThreadContext(r.Context(), req.AccountID, threadID, req.MemberAddr, req.MemberName)
	if err != nil {
		slog.Error("resolving thread context", "error", err, "account_id", req.AccountID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	result, err := h.engine.EvaluateInbound(r.Context(), tc, req.Text)
	if err != nil {
		if errors.Is(err, ErrMalformedDecision) {
			slog.Error("decision parse failure", "error", err, "thread_id", threadID)
			api.HandleError(w, api.NewUnprocessableError("model produced no usable decision"))
			return
		}
		slog.Error("evaluating thread", "error", err, "thread_id", threadID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if result.DispatchErr != nil {
		slog.Error("dispatching reply", "error", result.DispatchErr, "thread_id", threadID)
	}
	h.notify(r.Context(), tc, result)

	api.JSON(w, http.StatusOK, result)
}

type OutreachRequest struct {
	AccountID  uuid.UUID `json:"account_id" validate:"required"`
	MemberAddr string    `json:"member_addr" validate:"required"`
	MemberName string    `json:"member_name"`
	Goal       string    `json:"goal" validate:"required"`
}

// StartOutreach opens a new thread with a drafted first message.
func (h *Handler) StartOutreach(w http.ResponseWriter, r *http.Request) {
	var req OutreachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	// Same derivation the inbound path uses, so the member's reply lands
	// on this thread.
	threadID := ThreadIDFor(req.AccountID, req.MemberAddr)
	tc, err := h.accounts.ResolveThreadContext(r.Context(), req.AccountID, threadID, req.MemberAddr, req.MemberName)
	if err != nil {
		slog.Error("resolving thread context", "error", err, "account_id", req.AccountID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	result, err := h.engine.StartOutreach(r.Context(), tc, req.Goal)
	if err != nil {
		slog.Error("starting outreach", "error", err, "account_id", req.AccountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, map[string]any{
		"thread_id": threadID,
		"result":    result,
	})
}

type ReopenRequest struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	NewGoal   string    `json:"new_goal" validate:"required"`
}

// Reopen clears a resolved thread and sets a fresh goal.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid thread id"))
		return
	}

	var req ReopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tc, err := h.accounts.ResolveThreadContext(r.Context(), req.AccountID, threadID, "", "")
	if err != nil {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	state, err := h.engine.Reopen(r.Context(), tc, req.NewGoal)
	if err != nil {
		slog.Error("reopening thread", "error", err, "thread_id", threadID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, state)
}

// MessageView is a Message annotated for the operator UI. Sentiment is
// only set on inbound rows.
type MessageView struct {
	Message
	Sentiment *sentiment.Result `json:"sentiment,omitempty"`
}

// ListMessages returns a thread's log. include_decisions=true returns the
// full audit view; the default is the transcript the model sees.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid thread id"))
		return
	}

	includeDecisions := r.URL.Query().Get("include_decisions") == "true"
	msgs, err := h.store.ListThread(r.Context(), threadID, includeDecisions)
	if err != nil {
		slog.Error("listing thread messages", "error", err, "thread_id", threadID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	views := make([]MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = MessageView{Message: m}
		if m.Role == RoleInbound {
			res := sentiment.Score(m.Body)
			views[i].Sentiment = &res
		}
	}

	api.JSON(w, http.StatusOK, views)
}

// State returns the derived thread state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid thread id"))
		return
	}

	state, err := h.engine.State(r.Context(), threadID)
	if err != nil {
		slog.Error("deriving thread state", "error", err, "thread_id", threadID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, state)
}

// ListThreads returns the distinct thread ids of an account, newest first.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
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

	threads, err := h.store.ListThreads(r.Context(), accountID, page, pageSize)
	if err != nil {
		slog.Error("listing threads", "error", err, "account_id", accountID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, threads, int64(len(threads)), page, pageSize)
}
