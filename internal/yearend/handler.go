package yearend

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes year-end closing over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches closing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{year}", h.status)
	r.Post("/", h.close)
}

type closeRequest struct {
	FiscalYear                int   `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	RetainedEarningsAccountID int64 `json:"retained_earnings_account_id" validate:"required"`
}

type closingResponse struct {
	ID            int64  `json:"id"`
	FiscalYear    int    `json:"fiscal_year"`
	TotalIncome   string `json:"total_income"`
	TotalExpenses string `json:"total_expenses"`
	NetIncome     string `json:"net_income"`
	JournalID     *int64 `json:"journal_id,omitempty"`
	Status        string `json:"status"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

func toClosingResponse(c YearEndClosing) closingResponse {
	return closingResponse{
		ID:            c.ID,
		FiscalYear:    c.FiscalYear,
		TotalIncome:   c.TotalIncome.String(),
		TotalExpenses: c.TotalExpenses.String(),
		NetIncome:     c.NetIncome.String(),
		JournalID:     c.JournalID,
		Status:        string(c.Status),
		ErrorMessage:  c.ErrorMessage,
	}
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	c, err := h.service.Close(r.Context(), id.TenantID, id.ActorID, req.FiscalYear, req.RetainedEarningsAccountID)
	if err != nil {
		if errors.Is(err, ErrAggregationFailed) {
			// The record carries the captured failure; report both.
			httpx.JSON(w, http.StatusUnprocessableEntity, toClosingResponse(c))
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toClosingResponse(c))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Year", "year must be numeric")
		return
	}
	c, err := h.service.Status(r.Context(), id.TenantID, year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClosingResponse(c))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrClosingNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, ErrAlreadyClosed):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AlreadyClosed", err.Error())
	case errors.Is(err, accounts.ErrAccountNotFound):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "InvalidRetainedEarnings", err.Error())
	default:
		h.logger.Error("yearend handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
