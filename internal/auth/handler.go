package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/rejoinhq/rejoin/internal/api"
	"github.com/rejoinhq/rejoin/internal/operators"
)

// Handler serves the operator auth endpoints: register, login, token
// refresh, and logout.
type Handler struct {
	authSvc     *Service
	operatorSvc *operators.Service
	validate    *validator.Validate
}

func NewHandler(authSvc *Service, operatorSvc *operators.Service) *Handler {
	return &Handler{
		authSvc:     authSvc,
		operatorSvc: operatorSvc,
		validate:    validator.New(),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// decodeValid decodes the request body into req and validates it,
// writing the error response itself. Returns false when the handler
// should stop.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	exists, err := h.operatorSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	operator, err := h.operatorSvc.Create(r.Context(), req.Email, hash)
	if err != nil {
		slog.Error("creating operator", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.issueTokens(w, http.StatusCreated, operator)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	operator, err := h.operatorSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting operator by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	// Unknown email and wrong password get the same answer.
	if operator == nil || ComparePassword(operator.PasswordHash, req.Password) != nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	h.issueTokens(w, http.StatusOK, operator)
}

func (h *Handler) issueTokens(w http.ResponseWriter, status int, operator *operators.Operator) {
	tokens, err := h.authSvc.GenerateTokens(operator.ID.String(), operator.Email)
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, status, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	tokens, err := h.authSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		slog.Error("refreshing tokens", "error", err)
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetOperatorClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(claims.OperatorID); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}
