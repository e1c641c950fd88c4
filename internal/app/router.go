package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obra-ledger/obra-ledger/internal/balances"
	"github.com/obra-ledger/obra-ledger/internal/closures"
	"github.com/obra-ledger/obra-ledger/internal/movements"
	"github.com/obra-ledger/obra-ledger/internal/observability"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/projects"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/transactions"
	"github.com/obra-ledger/obra-ledger/internal/users"
	"github.com/obra-ledger/obra-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Metrics        *observability.Metrics
	RBACMiddleware rbac.Middleware

	PeriodsHandler      *periods.Handler
	ClosuresHandler     *closures.Handler
	MovementsHandler    *movements.Handler
	TransactionsHandler *transactions.Handler
	BalancesHandler     *balances.Handler
	UsersHandler        *users.Handler
	ProjectsHandler     *projects.Handler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router serving the ledger API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		if params.PeriodsHandler != nil {
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
		}
		if params.ClosuresHandler != nil {
			r.Route("/closures", params.ClosuresHandler.MountRoutes)
		}
		if params.MovementsHandler != nil {
			r.Route("/movements", params.MovementsHandler.MountRoutes)
		}
		if params.TransactionsHandler != nil {
			r.Route("/transactions", params.TransactionsHandler.MountRoutes)
		}
		if params.BalancesHandler != nil {
			r.Route("/balances", params.BalancesHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.ProjectsHandler != nil {
			r.Route("/projects", params.ProjectsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireAdmin)
				r.Route("/jobs", params.JobHandler.MountRoutes)
			})
		}
	})

	return r
}
