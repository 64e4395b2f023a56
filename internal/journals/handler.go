package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes journal posting over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/", h.post)
	r.Put("/{id}", h.update)
	r.Post("/{id}/approve", h.approve)
	r.Put("/{id}/attachments", h.attachments)
	r.Delete("/{id}", h.delete)
}

type journalLineRequest struct {
	AccountID    int64  `json:"account_id" validate:"required"`
	Description  string `json:"description"`
	Debit        string `json:"debit"`
	Credit       string `json:"credit"`
	CostCenterID *int64 `json:"cost_center_id"`
}

type postJournalRequest struct {
	Date          string               `json:"date" validate:"required"`
	Description   string               `json:"description" validate:"required"`
	Type          string               `json:"type" validate:"required,oneof=GENERAL OPENING_BALANCE DEPRECIATION QUICK_ENTRY YEAR_END_CLOSING"`
	Status        string               `json:"status" validate:"required,oneof=DRAFT APPROVED"`
	Lines         []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
	AttachmentIDs []string             `json:"attachment_ids"`
}

type attachmentsRequest struct {
	AttachmentIDs []string `json:"attachment_ids" validate:"required"`
}

type journalLineResponse struct {
	ID           int64  `json:"id"`
	AccountID    int64  `json:"account_id"`
	Description  string `json:"description,omitempty"`
	Debit        string `json:"debit"`
	Credit       string `json:"credit"`
	CostCenterID *int64 `json:"cost_center_id,omitempty"`
}

type journalResponse struct {
	ID            int64                 `json:"id"`
	Number        string                `json:"number"`
	Date          string                `json:"date"`
	Description   string                `json:"description"`
	Type          string                `json:"type"`
	Status        string                `json:"status"`
	TotalDebit    string                `json:"total_debit"`
	TotalCredit   string                `json:"total_credit"`
	IsBalanced    bool                  `json:"is_balanced"`
	AttachmentIDs []string              `json:"attachment_ids,omitempty"`
	ApprovedBy    *int64                `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time            `json:"approved_at,omitempty"`
	Lines         []journalLineResponse `json:"lines,omitempty"`
}

func toJournalResponse(j Journal) journalResponse {
	lines := make([]journalLineResponse, 0, len(j.Lines))
	for _, line := range j.Lines {
		lines = append(lines, journalLineResponse{
			ID:           line.ID,
			AccountID:    line.AccountID,
			Description:  line.Description,
			Debit:        line.Debit.String(),
			Credit:       line.Credit.String(),
			CostCenterID: line.CostCenterID,
		})
	}
	return journalResponse{
		ID:            j.ID,
		Number:        j.Number,
		Date:          j.Date.Format("2006-01-02"),
		Description:   j.Description,
		Type:          string(j.Type),
		Status:        string(j.Status),
		TotalDebit:    j.TotalDebit.String(),
		TotalCredit:   j.TotalCredit.String(),
		IsBalanced:    j.IsBalanced,
		AttachmentIDs: j.AttachmentIDs,
		ApprovedBy:    j.ApprovedBy,
		ApprovedAt:    j.ApprovedAt,
		Lines:         lines,
	}
}

func (h *Handler) buildInput(id shared.Identity, req postJournalRequest) (PostingInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return PostingInput{}, errors.New("date must be formatted YYYY-MM-DD")
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, lr := range req.Lines {
		line := LineInput{AccountID: lr.AccountID, Description: lr.Description, CostCenterID: lr.CostCenterID}
		if lr.Debit != "" {
			if line.Debit, err = decimal.NewFromString(lr.Debit); err != nil {
				return PostingInput{}, errors.New("debit must be a decimal string")
			}
		}
		if lr.Credit != "" {
			if line.Credit, err = decimal.NewFromString(lr.Credit); err != nil {
				return PostingInput{}, errors.New("credit must be a decimal string")
			}
		}
		lines = append(lines, line)
	}
	return PostingInput{
		TenantID:      id.TenantID,
		ActorID:       id.ActorID,
		Date:          date,
		Description:   req.Description,
		Type:          JournalType(req.Type),
		Status:        JournalStatus(req.Status),
		Lines:         lines,
		AttachmentIDs: req.AttachmentIDs,
	}, nil
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.buildInput(id, req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	j, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toJournalResponse(j))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	journalID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "journal id must be numeric")
		return
	}
	var req postJournalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	req.Status = string(StatusDraft)
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := h.buildInput(id, req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	j, err := h.service.UpdateDraft(r.Context(), input, journalID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(j))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	journalID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "journal id must be numeric")
		return
	}
	j, err := h.service.Approve(r.Context(), id.TenantID, id.ActorID, journalID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(j))
}

func (h *Handler) attachments(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	journalID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "journal id must be numeric")
		return
	}
	var req attachmentsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	j, err := h.service.SetAttachments(r.Context(), id.TenantID, id.ActorID, journalID, req.AttachmentIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(j))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	journalID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "journal id must be numeric")
		return
	}
	if err := h.service.DeleteDraft(r.Context(), id.TenantID, id.ActorID, journalID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	journalID, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "journal id must be numeric")
		return
	}
	j, err := h.service.Get(r.Context(), id.TenantID, journalID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toJournalResponse(j))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "year query parameter required")
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "month query parameter must be 1-12")
		return
	}
	journals, err := h.service.List(r.Context(), id.TenantID, year, time.Month(month))
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]journalResponse, 0, len(journals))
	for _, j := range journals {
		out = append(out, toJournalResponse(j))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrJournalNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, ErrTooFewLines), errors.Is(err, ErrDuplicateAccount), errors.Is(err, ErrInvalidLine):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "InvalidLines", err.Error())
	case errors.Is(err, ErrUnbalanced):
		httpx.ProblemCode(w, http.StatusBadRequest, "Validation Failed", "Unbalanced", err.Error())
	case errors.Is(err, ErrAlreadyApproved):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "AlreadyApproved", err.Error())
	case errors.Is(err, periods.ErrPeriodLocked):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "PeriodLocked", err.Error())
	case errors.Is(err, periods.ErrPeriodClosed):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "PeriodClosed", err.Error())
	case errors.Is(err, shared.ErrConcurrencyConflict):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "ConcurrencyConflict", err.Error())
	case errors.Is(err, ErrIntegrity):
		h.logger.Error("journal integrity violation", slog.Any("error", err))
		httpx.ProblemCode(w, http.StatusInternalServerError, "Integrity Violation", "IntegrityViolation", err.Error())
	default:
		h.logger.Error("journals handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
