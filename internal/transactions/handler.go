package transactions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/obra-ledger/obra-ledger/internal/platform/httpx"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// IdempotencyHeader carries the client supplied key for Create.
const IdempotencyHeader = "Idempotency-Key"

type transactionService interface {
	Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Transaction, error)
	ConfirmOrReject(ctx context.Context, actor rbac.Actor, id int64, action Action) (Transaction, error)
	PendingFor(ctx context.Context, userID int64) ([]Transaction, error)
	SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error
	Get(ctx context.Context, actor rbac.Actor, id int64) (Transaction, error)
	List(ctx context.Context, actor rbac.Actor, f Filter) (Page, error)
}

// Handler exposes the transaction ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service transactionService
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service transactionService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/pending", h.pending)
	r.Get("/{id}", h.get)
	r.Put("/{id}/confirmation", h.confirm)
	r.Delete("/{id}", h.delete)
}

type createRequest struct {
	Date          string          `json:"date" validate:"required"`
	OriginID      int64           `json:"origin_id" validate:"required,gt=0"`
	DestinationID int64           `json:"destination_id" validate:"required,gt=0"`
	Kind          string          `json:"kind" validate:"required,oneof=INCOME OUTFLOW EXPENSE"`
	ExpenseType   string          `json:"expense_type" validate:"omitempty,oneof=PROJECT SUPPLIER OTHER"`
	ProjectID     *int64          `json:"project_id"`
	SupplierName  string          `json:"supplier_name" validate:"max=255"`
	Memo          string          `json:"memo" validate:"max=1000"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Attachments   []string        `json:"attachments"`
	Notes         string          `json:"notes" validate:"max=1000"`
}

type confirmRequest struct {
	Action string `json:"action" validate:"required,oneof=confirm reject"`
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
	t, err := h.service.Create(r.Context(), actor, CreateInput{
		Date:           date,
		OriginID:       req.OriginID,
		DestinationID:  req.DestinationID,
		Kind:           Kind(req.Kind),
		ExpenseType:    ExpenseType(req.ExpenseType),
		ProjectID:      req.ProjectID,
		SupplierName:   req.SupplierName,
		Memo:           req.Memo,
		PaymentMethod:  shared.PaymentMethod(req.PaymentMethod),
		Amount:         req.Amount,
		Attachments:    req.Attachments,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "create transaction", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req confirmRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	t, err := h.service.ConfirmOrReject(r.Context(), actor, id, Action(req.Action))
	if err != nil {
		h.fail(w, "confirm transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	actor, _ := rbac.ActorFromContext(r.Context())
	list, err := h.service.PendingFor(r.Context(), actor.ID)
	if err != nil {
		h.fail(w, "pending transactions", err)
		return
	}
	if list == nil {
		list = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pending": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	t, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	if err := h.service.SoftDelete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := rbac.ActorFromContext(r.Context())
	page, err := h.service.List(r.Context(), actor, f)
	if err != nil {
		h.fail(w, "list transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (Filter, error) {
	var f Filter
	var err error
	if f.From, err = httpx.QueryDay(r, "from"); err != nil {
		return Filter{}, err
	}
	if f.To, err = httpx.QueryDay(r, "to"); err != nil {
		return Filter{}, err
	}
	if f.OriginID, err = httpx.QueryInt64(r, "origin_id"); err != nil {
		return Filter{}, err
	}
	if f.DestinationID, err = httpx.QueryInt64(r, "destination_id"); err != nil {
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
	q := r.URL.Query()
	f.Kind = Kind(q.Get("kind"))
	f.State = State(q.Get("state"))
	return f, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindStorage {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
