package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/assets"
	"github.com/shepherd-cms/shepherd/internal/budgets"
	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/shared"
	"github.com/shepherd-cms/shepherd/internal/yearend"
	"github.com/shepherd-cms/shepherd/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AccountsHandler *accounts.Handler
	PeriodsHandler  *periods.Handler
	JournalsHandler *journals.Handler
	BudgetsHandler  *budgets.Handler
	AssetsHandler   *assets.Handler
	YearEndHandler  *yearend.Handler
	SettingsHandler *shared.SettingsHandler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Shepherd defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(identityMiddleware(params.Logger))
		api.Route("/accounts", params.AccountsHandler.MountRoutes)
		api.Route("/periods", params.PeriodsHandler.MountRoutes)
		api.Route("/journals", params.JournalsHandler.MountRoutes)
		api.Route("/budgets", params.BudgetsHandler.MountRoutes)
		api.Route("/assets", params.AssetsHandler.MountRoutes)
		api.Route("/yearend", params.YearEndHandler.MountRoutes)
		if params.SettingsHandler != nil {
			api.Route("/settings", params.SettingsHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
