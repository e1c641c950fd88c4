package balances

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type balanceService interface {
	Current(ctx context.Context, actor rbac.Actor, userID int64) (Balance, error)
	History(ctx context.Context, actor rbac.Actor, userID int64) ([]PeriodBalance, error)
	PeriodLeaderboard(ctx context.Context, periodID int64) ([]Standing, error)
	ReconcilePeriod(ctx context.Context, periodID int64) (ReconcileResult, error)
}

// Handler exposes the balance aggregator over JSON.
type Handler struct {
	logger  *slog.Logger
	service balanceService
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service balanceService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Get("/users/{userID}", h.user)
	r.Get("/users/{userID}/history", h.history)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin)
		r.Get("/periods/{periodID}", h.leaderboard)
		r.Post("/periods/{periodID}/reconcile", h.reconcile)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	b, err := h.service.Current(r.Context(), actor, actor.ID)
	if err != nil {
		h.fail(w, "current balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	b, err := h.service.Current(r.Context(), actor, userID)
	if err != nil {
		h.fail(w, "user balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	list, err := h.service.History(r.Context(), actor, userID)
	if err != nil {
		h.fail(w, "balance history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": list})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "periodID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.PeriodLeaderboard(r.Context(), periodID)
	if err != nil {
		h.fail(w, "period leaderboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": list})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "periodID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ReconcilePeriod(r.Context(), periodID)
	if err != nil {
		h.fail(w, "reconcile period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
