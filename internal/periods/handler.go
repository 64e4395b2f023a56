package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// Handler exposes period lifecycle routes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/close", h.transition("close"))
	r.Post("/lock", h.transition("lock"))
	r.Post("/unlock", h.transition("unlock"))
}

type periodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1900,max=9999"`
}

type periodResponse struct {
	Month    int    `json:"month"`
	Year     int    `json:"year"`
	Status   string `json:"status"`
	ClosedBy *int64 `json:"closed_by,omitempty"`
	LockedBy *int64 `json:"locked_by,omitempty"`
}

func toPeriodResponse(p FiscalPeriod) periodResponse {
	return periodResponse{
		Month:    int(p.Month),
		Year:     p.Year,
		Status:   string(p.Status),
		ClosedBy: p.ClosedBy,
		LockedBy: p.LockedBy,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		year = time.Now().Year()
	}
	list, err := h.service.List(r.Context(), id.TenantID, year)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) transition(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
		var (
			period FiscalPeriod
			err    error
		)
		switch op {
		case "close":
			period, err = h.service.Close(r.Context(), id.TenantID, id.ActorID, time.Month(req.Month), req.Year)
		case "lock":
			period, err = h.service.Lock(r.Context(), id.TenantID, id.ActorID, time.Month(req.Month), req.Year)
		default:
			period, err = h.service.Unlock(r.Context(), id.TenantID, id.ActorID, time.Month(req.Month), req.Year)
		}
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidStateTransition):
		httpx.ProblemCode(w, http.StatusConflict, "Conflict", "InvalidStateTransition", err.Error())
	case errors.Is(err, ErrPeriodNotFound):
		httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		h.logger.Error("periods handler", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
