package assets

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes fixed assets over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/logs", h.logs)
	r.Post("/", h.create)
	r.Post("/{id}/depreciate", h.depreciate)
	r.Post("/run", h.run)
	r.Delete("/{id}", h.deactivate)
}

type createAssetRequest struct {
	Name                 string `json:"name" validate:"required"`
	AcquisitionDate      string `json:"acquisition_date" validate:"required"`
	Cost                 string `json:"cost" validate:"required"`
	Salvage              string `json:"salvage" validate:"required"`
	UsefulLifeMonths     int    `json:"useful_life_months" validate:"required,min=1"`
	AssetAccountID       int64  `json:"asset_account_id" validate:"required"`
	ExpenseAccountID     int64  `json:"expense_account_id" validate:"required"`
	AccumulatedAccountID int64  `json:"accumulated_account_id" validate:"required"`
}

type periodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1900,max=9999"`
}

type assetResponse struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	AcquisitionDate      string `json:"acquisition_date"`
	Cost                 string `json:"cost"`
	Salvage              string `json:"salvage"`
	UsefulLifeMonths     int    `json:"useful_life_months"`
	Method               string `json:"method"`
	AssetAccountID       int64  `json:"asset_account_id"`
	ExpenseAccountID     int64  `json:"expense_account_id"`
	AccumulatedAccountID int64  `json:"accumulated_account_id"`
	IsActive             bool   `json:"is_active"`
}

type logResponse struct {
	ID          int64  `json:"id"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Amount      string `json:"amount"`
	Accumulated string `json:"accumulated"`
	BookValue   string `json:"book_value"`
	JournalID   int64  `json:"journal_id"`
}

func toAssetResponse(a FixedAsset) assetResponse {
	return assetResponse{
		ID:                   a.ID,
		Name:                 a.Name,
		AcquisitionDate:      a.AcquisitionDate.Format("2006-01-02"),
		Cost:                 a.Cost.String(),
		Salvage:              a.Salvage.String(),
		UsefulLifeMonths:     a.UsefulLifeMonths,
		Method:               string(a.Method),
		AssetAccountID:       a.AssetAccountID,
		ExpenseAccountID:     a.ExpenseAccountID,
		AccumulatedAccountID: a.AccumulatedAccountID,
		IsActive:             a.IsActive,
	}
}

func toLogResponse(entry DepreciationLogEntry) logResponse {
	return logResponse{
		ID:          entry.ID,
		Year:        entry.Year,
		Month:       int(entry.Month),
		Amount:      entry.Amount.String(),
		Accumulated: entry.Accumulated.String(),
		BookValue:   entry.BookValue.String(),
		JournalID:   entry.JournalID,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req createAssetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	acquired, err := time.Parse("2006-01-02", req.AcquisitionDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "acquisition_date must be formatted YYYY-MM-DD")
		return
	}
	cost, err := decimal.NewFromString(req.Cost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "cost must be a decimal string")
		return
	}
	salvage, err := decimal.NewFromString(req.Salvage)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "salvage must be a decimal string")
		return
	}
	a, err := h.service.Create(r.Context(), CreateInput{
		TenantID:             id.TenantID,
		ActorID:              id.ActorID,
		Name:                 req.Name,
		AcquisitionDate:      acquired,
		Cost:                 cost,
		Salvage:              salvage,
		UsefulLifeMonths:     req.UsefulLifeMonths,
		AssetAccountID:       req.AssetAccountID,
		ExpenseAccountID:     req.ExpenseAccountID,
		AccumulatedAccountID: req.AccumulatedAccountID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssetResponse(a))
}

func (h *Handler) depreciate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	assetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "asset id must be numeric")
		return
	}
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.PostMonthly(r.Context(), id.TenantID, id.ActorID, assetID, time.Month(req.Month), req.Year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLogResponse(entry))
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req periodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.RunMonthly(r.Context(), id.TenantID, id.ActorID, time.Month(req.Month), req.Year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"posted":   result.Posted,
		"skipped":  result.Skipped,
		"failures": result.Failures,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	assetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "asset id must be numeric")
		return
	}
	a, err := h.service.Get(r.Context(), id.TenantID, assetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	assetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "asset id must be numeric")
		return
	}
	logs, err := h.service.Logs(r.Context(), id.TenantID, assetID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]logResponse, 0, len(logs))
	for _, entry := range logs {
		out = append(out, toLogResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	assets, err := h.service.ListActive(r.Context(), id.TenantID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	assetID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "asset id must be numeric")
		return
	}
	if err := h.service.Deactivate(r.Context(), id.TenantID, id.ActorID, assetID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAssetNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, ErrAlreadyPosted):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AlreadyPosted", err.Error())
	case errors.Is(err, ErrFullyDepreciated):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "FullyDepreciated", err.Error())
	case errors.Is(err, ErrAssetInactive):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AssetInactive", err.Error())
	case errors.Is(err, periods.ErrPeriodLocked):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "PeriodLocked", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "ConcurrencyConflict", err.Error())
	case errors.Is(err, journals.ErrUnbalanced):
		httpx.ProblemCode(w, http.StatusInternalServerError, "Posting Failed", "Unbalanced", err.Error())
	default:
		h.logger.Error("assets handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
