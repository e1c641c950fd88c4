package transactions

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type stubTransactionService struct {
	transactionService
	createFn  func(ctx context.Context, actor rbac.Actor, in CreateInput) (Transaction, error)
	confirmFn func(ctx context.Context, actor rbac.Actor, id int64, action Action) (Transaction, error)
	deleteFn  func(ctx context.Context, actor rbac.Actor, id int64) error
	listFn    func(ctx context.Context, actor rbac.Actor, f Filter) (Page, error)
}

func (s *stubTransactionService) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Transaction, error) {
	return s.createFn(ctx, actor, in)
}

func (s *stubTransactionService) ConfirmOrReject(ctx context.Context, actor rbac.Actor, id int64, action Action) (Transaction, error) {
	return s.confirmFn(ctx, actor, id, action)
}

func (s *stubTransactionService) SoftDelete(ctx context.Context, actor rbac.Actor, id int64) error {
	return s.deleteFn(ctx, actor, id)
}

func (s *stubTransactionService) List(ctx context.Context, actor rbac.Actor, f Filter) (Page, error) {
	return s.listFn(ctx, actor, f)
}

func newTestRouter(svc transactionService, actor rbac.Actor) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithActor(req.Context(), actor)))
		})
	})
	r.Route("/transactions", h.MountRoutes)
	return r
}

func TestCreateRoutePassesIdempotencyKey(t *testing.T) {
	svc := &stubTransactionService{createFn: func(_ context.Context, actor rbac.Actor, in CreateInput) (Transaction, error) {
		require.Equal(t, ana.ID, actor.ID)
		require.Equal(t, "abc-123", in.IdempotencyKey)
		require.Equal(t, KindExpense, in.Kind)
		require.Equal(t, ExpenseProject, in.ExpenseType)
		require.NotNil(t, in.ProjectID)
		require.Equal(t, int64(3), *in.ProjectID)
		return Transaction{ID: 5, Kind: in.Kind, OriginStatus: StatusConfirmed, DestinationStatus: StatusPending}, nil
	}}
	body := `{"date":"2025-01-10","origin_id":10,"destination_id":11,"kind":"EXPENSE","expense_type":"PROJECT","project_id":3,"payment_method":"CASH","amount":"75.00","memo":"varilla"}`
	req := httptest.NewRequest(http.MethodPost, "/transactions/", strings.NewReader(body))
	req.Header.Set(IdempotencyHeader, "abc-123")
	rr := httptest.NewRecorder()
	newTestRouter(svc, ana).ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "awaiting", got["state"])
}

func TestCreateRouteRejectsUnknownKind(t *testing.T) {
	body := `{"date":"2025-01-10","origin_id":10,"destination_id":11,"kind":"GIFT","payment_method":"CASH","amount":"5"}`
	rr := httptest.NewRecorder()
	newTestRouter(&stubTransactionService{}, ana).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/transactions/", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateRouteMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{ErrInvalidDate, http.StatusUnprocessableEntity, "invalid_date"},
		{ErrNotParticipant, http.StatusForbidden, "not_participant"},
		{shared.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{shared.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	}
	for _, tc := range cases {
		svc := &stubTransactionService{createFn: func(context.Context, rbac.Actor, CreateInput) (Transaction, error) {
			return Transaction{}, tc.err
		}}
		body := `{"date":"2025-01-10","origin_id":10,"destination_id":11,"kind":"INCOME","payment_method":"CASH","amount":"5"}`
		rr := httptest.NewRecorder()
		newTestRouter(svc, ana).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/transactions/", strings.NewReader(body)))
		require.Equal(t, tc.status, rr.Code, tc.code)

		var problem map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		require.Equal(t, tc.code, problem["code"])
	}
}

func TestConfirmationRoute(t *testing.T) {
	svc := &stubTransactionService{confirmFn: func(_ context.Context, actor rbac.Actor, id int64, action Action) (Transaction, error) {
		require.Equal(t, beto.ID, actor.ID)
		require.Equal(t, int64(42), id)
		if action == ActionReject {
			return Transaction{}, ErrAlreadyProcessed
		}
		return Transaction{ID: id, OriginStatus: StatusConfirmed, DestinationStatus: StatusConfirmed}, nil
	}}
	router := newTestRouter(svc, beto)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/transactions/42/confirmation", strings.NewReader(`{"action":"confirm"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"state":"settled"`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/transactions/42/confirmation", strings.NewReader(`{"action":"reject"}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/transactions/42/confirmation", strings.NewReader(`{"action":"later"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteRoute(t *testing.T) {
	svc := &stubTransactionService{deleteFn: func(_ context.Context, _ rbac.Actor, id int64) error {
		if id == 2 {
			return ErrCannotDeleteSettled
		}
		return nil
	}}
	router := newTestRouter(svc, ana)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/transactions/1", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/transactions/2", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListRouteParsesFilter(t *testing.T) {
	svc := &stubTransactionService{listFn: func(_ context.Context, _ rbac.Actor, f Filter) (Page, error) {
		require.Equal(t, StateSettled, f.State)
		require.NotNil(t, f.PeriodID)
		require.Equal(t, int64(30), *f.PeriodID)
		require.NotNil(t, f.From)
		require.Equal(t, 2, f.Page)
		return Page{Items: []Transaction{}, Pagination: shared.NewPagination(2, 20, 0)}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, ana).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transactions/?state=settled&period_id=30&from=2025-01-01&page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(svc, ana).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/transactions/?from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
