package movements

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type movementService interface {
	Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Movement, error)
	Update(ctx context.Context, actor rbac.Actor, id int64, patch Patch) (Movement, error)
	SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error
	Get(ctx context.Context, id int64) (Movement, error)
	List(ctx context.Context, f Filter) (Page, error)
	SummaryByPeriod(ctx context.Context, periodID int64) (Summary, error)
	SummaryByProject(ctx context.Context, projectID int64, periodID *int64) (Summary, error)
}

type currentPeriod interface {
	Current(ctx context.Context) (periods.Period, bool, error)
}

// Handler exposes the movement ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service movementService
	periods currentPeriod
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service movementService, periods currentPeriod) *Handler {
	return &Handler{logger: logger, service: service, periods: periods}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/summary", h.periodSummary)
	r.Get("/summary/projects/{projectID}", h.projectSummary)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	Date          string          `json:"date" validate:"required"`
	ProjectID     int64           `json:"project_id" validate:"required,gt=0"`
	Kind          string          `json:"kind" validate:"required,oneof=INCOME OUTFLOW"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Memo          string          `json:"memo" validate:"required,max=1000"`
	Attachments   []string        `json:"attachments"`
}

type updateRequest struct {
	Date          *string          `json:"date"`
	ProjectID     *int64           `json:"project_id" validate:"omitempty,gt=0"`
	Kind          *string          `json:"kind" validate:"omitempty,oneof=INCOME OUTFLOW"`
	PaymentMethod *string          `json:"payment_method"`
	Amount        *decimal.Decimal `json:"amount"`
	Memo          *string          `json:"memo" validate:"omitempty,max=1000"`
	Attachments   []string         `json:"attachments"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := shared.ParseDay("date", req.Date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	m, err := h.service.Create(r.Context(), actor, CreateInput{
		Date:          date,
		ProjectID:     req.ProjectID,
		Kind:          Kind(req.Kind),
		PaymentMethod: shared.PaymentMethod(req.PaymentMethod),
		Amount:        req.Amount,
		Memo:          req.Memo,
		Attachments:   req.Attachments,
	})
	if err != nil {
		h.fail(w, "create movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	patch := Patch{ProjectID: req.ProjectID, Amount: req.Amount, Memo: req.Memo, Attachments: req.Attachments}
	if req.Date != nil {
		d, err := shared.ParseDay("date", *req.Date)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		patch.Date = &d
	}
	if req.Kind != nil {
		k := Kind(*req.Kind)
		patch.Kind = &k
	}
	if req.PaymentMethod != nil {
		pm := shared.PaymentMethod(*req.PaymentMethod)
		patch.PaymentMethod = &pm
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	m, err := h.service.Update(r.Context(), actor, id, patch)
	if err != nil {
		h.fail(w, "update movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	if err := h.service.SoftDelete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete movement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get movement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, "list movements", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) periodSummary(w http.ResponseWriter, r *http.Request) {
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
	summary, err := h.service.SummaryByPeriod(r.Context(), *periodID)
	if err != nil {
		h.fail(w, "period summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period_id": *periodID, "summary": summary})
}

func (h *Handler) projectSummary(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.IDParam(r, "projectID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	periodID, err := httpx.QueryInt64(r, "period_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.SummaryByProject(r.Context(), projectID, periodID)
	if err != nil {
		h.fail(w, "project summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"project_id": projectID, "summary": summary})
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter
	var err error
	q := r.URL.Query()
	if f.From, err = httpx.QueryDay(r, "from"); err != nil {
		return Filter{}, err
	}
	if f.To, err = httpx.QueryDay(r, "to"); err != nil {
		return Filter{}, err
	}
	if f.ProjectID, err = httpx.QueryInt64(r, "project_id"); err != nil {
		return Filter{}, err
	}
	if f.OwnerID, err = httpx.QueryInt64(r, "owner_id"); err != nil {
		return Filter{}, err
	}
	if f.PeriodID, err = httpx.QueryInt64(r, "period_id"); err != nil {
		return Filter{}, err
	}
	if f.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		return Filter{}, err
	}
	if f.PerPage, err = httpx.QueryInt(r, "limit", 0); err != nil {
		return Filter{}, err
	}
	f.Kind = Kind(q.Get("kind"))
	f.PaymentMethod = shared.PaymentMethod(q.Get("payment_method"))
	return f, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
