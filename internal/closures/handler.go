package closures

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type closureService interface {
	Close(ctx context.Context, actor rbac.Actor, periodID, userID int64, notes string) (Lock, error)
	CloseMany(ctx context.Context, actor rbac.Actor, periodID int64, userIDs []int64, notes string) (BatchResult, error)
	Reopen(ctx context.Context, actor rbac.Actor, lockID int64) (Lock, error)
	UsersWithoutClosure(ctx context.Context, periodID int64) ([]UserRef, error)
	Summary(ctx context.Context, periodID int64) (Summary, error)
	ListForUser(ctx context.Context, actor rbac.Actor, userID int64) ([]LockDetail, error)
	Status(ctx context.Context, periodID, userID int64) (Status, error)
	Dashboard(ctx context.Context) (Dashboard, error)
}

// Handler exposes the period lock ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service closureService
	periods CurrentPeriodSource
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service closureService, periods CurrentPeriodSource, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, periods: periods, rbac: rbac}
}

// MountRoutes registers closure routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{userID}", h.listForUser)
	r.Get("/status/{periodID}", h.status)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin)
		r.Post("/close", h.close)
		r.Post("/close-many", h.closeMany)
		r.Delete("/{id}", h.reopen)
		r.Get("/pending", h.pending)
		r.Get("/summary/{periodID}", h.summary)
		r.Get("/dashboard", h.dashboard)
	})
}

type closeRequest struct {
	PeriodID int64  `json:"period_id" validate:"required,gt=0"`
	UserID   int64  `json:"user_id" validate:"required,gt=0"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type closeManyRequest struct {
	PeriodID int64   `json:"period_id" validate:"required,gt=0"`
	UserIDs  []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
	Notes    string  `json:"notes" validate:"max=2000"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	lock, err := h.service.Close(r.Context(), actor, req.PeriodID, req.UserID, req.Notes)
	if err != nil {
		h.fail(w, "close period", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lock)
}

func (h *Handler) closeMany(w http.ResponseWriter, r *http.Request) {
	var req closeManyRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	result, err := h.service.CloseMany(r.Context(), actor, req.PeriodID, req.UserIDs, req.Notes)
	if err != nil {
		h.fail(w, "close periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	lock, err := h.service.Reopen(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "reopen period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lock)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if periodID == nil {
		current, ok, err := h.periods.Current(r.Context())
		if err != nil {
			h.fail(w, "current period", err)
			return
		}
		if !ok {
			httpx.RespondError(w, shared.ErrNoActivePeriod)
			return
		}
		periodID = &current.ID
	}
	list, err := h.service.UsersWithoutClosure(r.Context(), *periodID)
	if err != nil {
		h.fail(w, "pending users", err)
		return
	}
	if list == nil {
		list = []UserRef{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period_id": *periodID, "users": list})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "periodID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Summary(r.Context(), periodID)
	if err != nil {
		h.fail(w, "closure summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, "closure dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	list, err := h.service.ListForUser(r.Context(), actor, userID)
	if err != nil {
		h.fail(w, "list user closures", err)
		return
	}
	if list == nil {
		list = []LockDetail{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closures": list})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "periodID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	st, err := h.service.Status(r.Context(), periodID, actor.ID)
	if err != nil {
		h.fail(w, "closure status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
