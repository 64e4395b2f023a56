package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
)

// SettingsHandler exposes tenant settings over JSON.
type SettingsHandler struct {
	logger   *slog.Logger
	cache    *SettingsCache
	validate *validator.Validate
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(logger *slog.Logger, cache *SettingsCache) *SettingsHandler {
	return &SettingsHandler{logger: logger, cache: cache, validate: validator.New()}
}

// MountRoutes attaches settings routes.
func (h *SettingsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Put("/", h.update)
}

type settingsRequest struct {
	Currency                  string `json:"currency" validate:"required,len=3"`
	Timezone                  string `json:"timezone" validate:"required"`
	RetainedEarningsAccountID int64  `json:"retained_earnings_account_id"`
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	settings, err := h.cache.Get(r.Context(), id.TenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.ProblemCode(w, http.StatusNotFound, "Not Found", "NotFound", err.Error())
			return
		}
		h.logger.Error("settings get", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant identity required")
		return
	}
	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	settings := TenantSettings{
		Currency:                  req.Currency,
		Timezone:                  req.Timezone,
		RetainedEarningsAccountID: req.RetainedEarningsAccountID,
	}
	if err := h.cache.Update(r.Context(), id.TenantID, settings); err != nil {
		h.logger.Error("settings update", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}
