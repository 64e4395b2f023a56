package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes the account registry over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/tree", h.tree)
	r.Post("/", h.create)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type createAccountRequest struct {
	Code          string `json:"code" validate:"required"`
	Name          string `json:"name" validate:"required"`
	Type          string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	NormalBalance string `json:"normal_balance" validate:"omitempty,oneof=DEBIT CREDIT"`
	ParentID      *int64 `json:"parent_id"`
}

type updateAccountRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
	IsActive bool   `json:"is_active"`
}

type accountResponse struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	NormalBalance string `json:"normal_balance"`
	ParentID      *int64 `json:"parent_id,omitempty"`
	Level         int    `json:"level"`
	IsActive      bool   `json:"is_active"`
}

func toAccountResponse(acc Account) accountResponse {
	return accountResponse{
		ID:            acc.ID,
		Code:          acc.Code,
		Name:          acc.Name,
		Type:          string(acc.Type),
		NormalBalance: string(acc.NormalBalance),
		ParentID:      acc.ParentID,
		Level:         acc.Level,
		IsActive:      acc.IsActive,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	accounts, err := h.service.List(r.Context(), id.TenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, toAccountResponse(acc))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type treeNodeResponse struct {
	accountResponse
	Children []treeNodeResponse `json:"children,omitempty"`
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	roots, err := h.service.Tree(r.Context(), id.TenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTreeResponse(roots))
}

func toTreeResponse(nodes []*Node) []treeNodeResponse {
	out := make([]treeNodeResponse, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, treeNodeResponse{
			accountResponse: toAccountResponse(node.Account),
			Children:        toTreeResponse(node.Children),
		})
	}
	return out
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acc, err := h.service.Create(r.Context(), CreateInput{
		TenantID:      id.TenantID,
		ActorID:       id.ActorID,
		Code:          req.Code,
		Name:          req.Name,
		Type:          AccountType(req.Type),
		NormalBalance: NormalBalance(req.NormalBalance),
		ParentID:      req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(acc))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	acc, err := h.service.Update(r.Context(), UpdateInput{
		TenantID: id.TenantID,
		ActorID:  id.ActorID,
		ID:       accountID,
		Code:     req.Code,
		Name:     req.Name,
		ParentID: req.ParentID,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(acc))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	if err := h.service.Delete(r.Context(), id.TenantID, id.ActorID, accountID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "DuplicateCode", err.Error())
	case errors.Is(err, ErrInvalidParent):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "InvalidParent", err.Error())
	case errors.Is(err, ErrCycleDetected):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "CycleDetected", err.Error())
	case errors.Is(err, ErrAccountInUse):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AccountInUse", err.Error())
	case errors.Is(err, ErrAccountHasChildren):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AccountHasChildren", err.Error())
	case errors.Is(err, ErrCodeImmutable):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "CodeImmutable", err.Error())
	default:
		h.logger.Error("accounts handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
