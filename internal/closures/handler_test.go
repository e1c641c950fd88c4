package closures

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
)

type stubClosureService struct {
	closureService
	closeManyFn func(ctx context.Context, actor rbac.Actor, periodID int64, userIDs []int64, notes string) (BatchResult, error)
	pendingFn   func(ctx context.Context, periodID int64) ([]UserRef, error)
	statusFn    func(ctx context.Context, periodID, userID int64) (Status, error)
	closeFn     func(ctx context.Context, actor rbac.Actor, periodID, userID int64, notes string) (Lock, error)
}

func (s *stubClosureService) Close(ctx context.Context, actor rbac.Actor, periodID, userID int64, notes string) (Lock, error) {
	return s.closeFn(ctx, actor, periodID, userID, notes)
}

func (s *stubClosureService) CloseMany(ctx context.Context, actor rbac.Actor, periodID int64, userIDs []int64, notes string) (BatchResult, error) {
	return s.closeManyFn(ctx, actor, periodID, userIDs, notes)
}

func (s *stubClosureService) UsersWithoutClosure(ctx context.Context, periodID int64) ([]UserRef, error) {
	return s.pendingFn(ctx, periodID)
}

func (s *stubClosureService) Status(ctx context.Context, periodID, userID int64) (Status, error) {
	return s.statusFn(ctx, periodID, userID)
}

func newTestRouter(svc closureService, actor rbac.Actor) http.Handler {
	return newRouterWithPeriods(svc, stubPeriods{today: day(1, 14)}, actor)
}

func newRouterWithPeriods(svc closureService, ps stubPeriods, actor rbac.Actor) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, ps, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithActor(req.Context(), actor)))
		})
	})
	r.Route("/closures", h.MountRoutes)
	return r
}

func TestCloseRouteRequiresAdmin(t *testing.T) {
	svc := &stubClosureService{closeFn: func(context.Context, rbac.Actor, int64, int64, string) (Lock, error) {
		t.Fatal("service must not be called")
		return Lock{}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, common).ServeHTTP(rr,
		httptest.NewRequest(http.MethodPost, "/closures/close", strings.NewReader(`{"period_id":1,"user_id":2}`)))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCloseRouteMapsConflict(t *testing.T) {
	svc := &stubClosureService{closeFn: func(_ context.Context, actor rbac.Actor, periodID, userID int64, _ string) (Lock, error) {
		require.Equal(t, admin.ID, actor.ID)
		require.Equal(t, int64(7), periodID)
		require.Equal(t, int64(2), userID)
		return Lock{}, ErrAlreadyClosed
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, admin).ServeHTTP(rr,
		httptest.NewRequest(http.MethodPost, "/closures/close", strings.NewReader(`{"period_id":7,"user_id":2}`)))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "already_closed", body["code"])
}

func TestCloseManyRejectsEmptyBatch(t *testing.T) {
	svc := &stubClosureService{closeManyFn: func(context.Context, rbac.Actor, int64, []int64, string) (BatchResult, error) {
		t.Fatal("service must not be called")
		return BatchResult{}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, admin).ServeHTTP(rr,
		httptest.NewRequest(http.MethodPost, "/closures/close-many", strings.NewReader(`{"period_id":7,"user_ids":[]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCloseManyReturnsPartialResult(t *testing.T) {
	svc := &stubClosureService{closeManyFn: func(_ context.Context, _ rbac.Actor, _ int64, ids []int64, _ string) (BatchResult, error) {
		require.Equal(t, []int64{2, 3}, ids)
		return BatchResult{
			Succeeded: []Lock{{ID: 1, PeriodID: 7, UserID: 2}},
			Failed:    []BatchFailure{{UserID: 3, Code: "already_closed", Reason: "period is already closed for this user"}},
		}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, admin).ServeHTTP(rr,
		httptest.NewRequest(http.MethodPost, "/closures/close-many", strings.NewReader(`{"period_id":7,"user_ids":[2,3]}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var body BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Succeeded, 1)
	require.Len(t, body.Failed, 1)
}

func TestPendingDefaultsToCurrentPeriod(t *testing.T) {
	svc := &stubClosureService{pendingFn: func(_ context.Context, periodID int64) ([]UserRef, error) {
		require.Equal(t, int64(10), periodID)
		return nil, nil
	}}
	fixture, _ := newTestService(t)
	rr := httptest.NewRecorder()
	router := newRouterWithPeriods(svc, fixture.periods.(stubPeriods), admin)
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closures/pending", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"period_id":10,"users":[]}`, rr.Body.String())
}

func TestPendingWithoutCurrentPeriod(t *testing.T) {
	svc := &stubClosureService{}
	rr := httptest.NewRecorder()
	newTestRouter(svc, admin).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closures/pending", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestStatusUsesCaller(t *testing.T) {
	svc := &stubClosureService{statusFn: func(_ context.Context, periodID, userID int64) (Status, error) {
		require.Equal(t, common.ID, userID)
		return Status{PeriodID: periodID, UserID: userID}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, common).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/closures/status/10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
