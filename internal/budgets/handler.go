package budgets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes the budget engine over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/monthly", h.monthly)
	r.Post("/", h.create)
	r.Put("/{id}/lines", h.updateLines)
	r.Post("/{id}/activate", h.activate)
}

type budgetLineRequest struct {
	AccountID int64             `json:"account_id" validate:"required"`
	Annual    string            `json:"annual" validate:"required"`
	Monthly   map[string]string `json:"monthly"`
}

type createBudgetRequest struct {
	FiscalYear int                 `json:"fiscal_year" validate:"required,min=1900,max=9999"`
	Name       string              `json:"name" validate:"required"`
	Lines      []budgetLineRequest `json:"lines" validate:"dive"`
}

type updateLinesRequest struct {
	Lines []budgetLineRequest `json:"lines" validate:"required,dive"`
}

type budgetLineResponse struct {
	ID        int64             `json:"id"`
	AccountID int64             `json:"account_id"`
	Annual    string            `json:"annual"`
	Monthly   map[string]string `json:"monthly,omitempty"`
}

type budgetResponse struct {
	ID         int64                `json:"id"`
	FiscalYear int                  `json:"fiscal_year"`
	Name       string               `json:"name"`
	Status     string               `json:"status"`
	Lines      []budgetLineResponse `json:"lines,omitempty"`
}

func toBudgetResponse(b Budget) budgetResponse {
	lines := make([]budgetLineResponse, 0, len(b.Lines))
	for _, line := range b.Lines {
		lines = append(lines, budgetLineResponse{
			ID:        line.ID,
			AccountID: line.AccountID,
			Annual:    line.Annual.String(),
			Monthly:   monthlyToWire(line.Monthly),
		})
	}
	return budgetResponse{
		ID:         b.ID,
		FiscalYear: b.FiscalYear,
		Name:       b.Name,
		Status:     string(b.Status),
		Lines:      lines,
	}
}

func monthlyToWire(monthly map[time.Month]decimal.Decimal) map[string]string {
	if monthly == nil {
		return nil
	}
	out := make(map[string]string, len(monthly))
	for m, amount := range monthly {
		out[strconv.Itoa(int(m))] = amount.String()
	}
	return out
}

func linesFromWire(reqs []budgetLineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		annual, err := decimal.NewFromString(lr.Annual)
		if err != nil {
			return nil, errors.New("annual must be a decimal string")
		}
		line := LineInput{AccountID: lr.AccountID, Annual: annual}
		if lr.Monthly != nil {
			line.Monthly = make(map[time.Month]decimal.Decimal, len(lr.Monthly))
			for k, v := range lr.Monthly {
				m, err := strconv.Atoi(k)
				if err != nil || m < 1 || m > 12 {
					return nil, errors.New("monthly keys must be month numbers 1-12")
				}
				amount, err := decimal.NewFromString(v)
				if err != nil {
					return nil, errors.New("monthly amounts must be decimal strings")
				}
				line.Monthly[time.Month(m)] = amount
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req createBudgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines, err := linesFromWire(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	b, err := h.service.Create(r.Context(), CreateInput{
		TenantID:   id.TenantID,
		ActorID:    id.ActorID,
		FiscalYear: req.FiscalYear,
		Name:       req.Name,
		Lines:      lines,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBudgetResponse(b))
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	budgetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "budget id must be numeric")
		return
	}
	var req updateLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	lines, err := linesFromWire(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	b, err := h.service.UpdateLines(r.Context(), id.TenantID, id.ActorID, budgetID, lines)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(b))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	budgetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "budget id must be numeric")
		return
	}
	b, err := h.service.Activate(r.Context(), id.TenantID, id.ActorID, budgetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(b))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	budgetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "budget id must be numeric")
		return
	}
	b, err := h.service.Get(r.Context(), id.TenantID, budgetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(b))
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	budgetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "budget id must be numeric")
		return
	}
	monthly, err := h.service.MonthlyFor(r.Context(), id.TenantID, budgetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make(map[string]map[string]string, len(monthly))
	for accountID, months := range monthly {
		out[strconv.FormatInt(accountID, 10)] = monthlyToWire(months)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	budgets, err := h.service.List(r.Context(), id.TenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBudgetNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, ErrDuplicateYear):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "DuplicateYear", err.Error())
	case errors.Is(err, ErrAlreadyActive):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AlreadyActive", err.Error())
	case errors.Is(err, ErrBudgetActive):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "BudgetActive", err.Error())
	case errors.Is(err, ErrMonthlyMismatch):
		httpx.ProblemCode(w, http.StatusUnprocessableEntity, "Validation Failed", "MonthlyMismatch", err.Error())
	case errors.Is(err, ErrDuplicateAccount):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "DuplicateAccount", err.Error())
	default:
		h.logger.Error("budgets handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
