package movements

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
)

type stubMovementService struct {
	movementService
	createFn  func(ctx context.Context, actor rbac.Actor, in CreateInput) (Movement, error)
	listFn    func(ctx context.Context, f Filter) (Page, error)
	summaryFn func(ctx context.Context, periodID int64) (Summary, error)
}

func (s *stubMovementService) Create(ctx context.Context, actor rbac.Actor, in CreateInput) (Movement, error) {
	return s.createFn(ctx, actor, in)
}

func (s *stubMovementService) List(ctx context.Context, f Filter) (Page, error) {
	return s.listFn(ctx, f)
}

func (s *stubMovementService) SummaryByPeriod(ctx context.Context, periodID int64) (Summary, error) {
	return s.summaryFn(ctx, periodID)
}

func newTestRouter(svc movementService, current stubCurrent) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, current)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithActor(req.Context(), userA)))
		})
	})
	r.Route("/movements", h.MountRoutes)
	return r
}

func TestCreateRouteDecodesPayload(t *testing.T) {
	svc := &stubMovementService{createFn: func(_ context.Context, actor rbac.Actor, in CreateInput) (Movement, error) {
		require.Equal(t, userA.ID, actor.ID)
		require.Equal(t, time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC), in.Date)
		require.Equal(t, KindIncome, in.Kind)
		require.Equal(t, shared.PaymentProjectTransfer, in.PaymentMethod)
		require.Equal(t, "1250.5", in.Amount.String())
		return Movement{ID: 9, Kind: in.Kind, Amount: in.Amount}, nil
	}}
	body := `{"date":"2025-03-10","project_id":3,"kind":"INCOME","payment_method":"PROJECT_TRANSFER","amount":"1250.50","memo":"estimación 4"}`
	rr := httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/movements/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
}

func TestCreateRouteRejectsBadDate(t *testing.T) {
	svc := &stubMovementService{}
	body := `{"date":"10/03/2025","project_id":3,"kind":"INCOME","payment_method":"CASH","amount":"5","memo":"x"}`
	rr := httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/movements/", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Contains(t, problem["fields"], "date")
}

func TestCreateRouteMapsClosedPeriod(t *testing.T) {
	svc := &stubMovementService{createFn: func(context.Context, rbac.Actor, CreateInput) (Movement, error) {
		return Movement{}, shared.ErrPeriodClosed
	}}
	body := `{"date":"2025-03-10","project_id":3,"kind":"OUTFLOW","payment_method":"CASH","amount":5,"memo":"x"}`
	rr := httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/movements/", strings.NewReader(body)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestListRouteParsesFilter(t *testing.T) {
	svc := &stubMovementService{listFn: func(_ context.Context, f Filter) (Page, error) {
		require.NotNil(t, f.From)
		require.NotNil(t, f.ProjectID)
		require.Equal(t, int64(3), *f.ProjectID)
		require.Equal(t, KindOutflow, f.Kind)
		require.Equal(t, 2, f.Page)
		return Page{Items: []Movement{}}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr,
		httptest.NewRequest(http.MethodGet, "/movements/?from=2025-03-01&project_id=3&kind=OUTFLOW&page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/movements/?project_id=abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSummaryRouteDefaultsToCurrentPeriod(t *testing.T) {
	svc := &stubMovementService{summaryFn: func(_ context.Context, periodID int64) (Summary, error) {
		require.Equal(t, fortnight.ID, periodID)
		return Summary{}, nil
	}}
	rr := httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{period: fortnight, ok: true}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/movements/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	newTestRouter(svc, stubCurrent{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/movements/summary", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
