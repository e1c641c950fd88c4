package periods

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type periodService interface {
	GenerateYear(ctx context.Context, year int) ([]Period, error)
	Current(ctx context.Context) (Period, bool, error)
	Upcoming(ctx context.Context, daysAhead int) ([]Period, error)
	SetActive(ctx context.Context, id int64, active bool) (Period, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (Period, error)
	ListByYear(ctx context.Context, year int) ([]Period, error)
	Flagged(ctx context.Context) (Period, bool, error)
	Info(ctx context.Context, userID int64) (Info, error)
}

// Handler exposes the period registry over JSON.
type Handler struct {
	logger  *slog.Logger
	service periodService
	rbac    rbac.Middleware
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service periodService, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/current", h.current)
	r.Get("/flagged", h.flagged)
	r.Get("/upcoming", h.upcoming)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin)
		r.Post("/generate", h.generate)
		r.Put("/{id}/active", h.setActive)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.QueryInt(r, "year", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListByYear(r.Context(), year)
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	if list == nil {
		list = []Period{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": list})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	info, err := h.service.Info(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, "current period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) flagged(w http.ResponseWriter, r *http.Request) {
	p, ok, err := h.service.Flagged(r.Context())
	if err != nil {
		h.fail(w, "flagged period", err)
		return
	}
	if !ok {
		httpx.RespondError(w, ErrPeriodNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "days", DefaultDaysAhead)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.Upcoming(r.Context(), days)
	if err != nil {
		h.fail(w, "upcoming periods", err)
		return
	}
	if list == nil {
		list = []Period{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type generateRequest struct {
	Year int `json:"year"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.GenerateYear(r.Context(), req.Year)
	if err != nil {
		h.fail(w, "generate periods", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"periods": created})
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req activeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Active == nil {
		httpx.RespondError(w, shared.FieldError("active", "is required"))
		return
	}
	p, err := h.service.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		h.fail(w, "set period active", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete period", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
