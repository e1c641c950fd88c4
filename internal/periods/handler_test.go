package periods

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

type stubPeriodService struct {
	periodService
	generateFn  func(ctx context.Context, year int) ([]Period, error)
	setActiveFn func(ctx context.Context, id int64, active bool) (Period, error)
	deleteFn    func(ctx context.Context, id int64) error
}

func (s *stubPeriodService) GenerateYear(ctx context.Context, year int) ([]Period, error) {
	return s.generateFn(ctx, year)
}

func (s *stubPeriodService) SetActive(ctx context.Context, id int64, active bool) (Period, error) {
	return s.setActiveFn(ctx, id, active)
}

func (s *stubPeriodService) Delete(ctx context.Context, id int64) error {
	return s.deleteFn(ctx, id)
}

func newTestRouter(svc periodService, actor rbac.Actor) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(rbac.WithActor(req.Context(), actor)))
		})
	})
	r.Route("/periods", h.MountRoutes)
	return r
}

func TestGenerateRequiresAdmin(t *testing.T) {
	svc := &stubPeriodService{generateFn: func(context.Context, int) ([]Period, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	router := newTestRouter(svc, rbac.Actor{ID: 5, Role: rbac.RoleCommon})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/periods/generate", strings.NewReader(`{"year":2025}`)))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGenerateMapsDuplicateYearToConflict(t *testing.T) {
	svc := &stubPeriodService{generateFn: func(_ context.Context, year int) ([]Period, error) {
		require.Equal(t, 2025, year)
		return nil, ErrDuplicateYear
	}}
	router := newTestRouter(svc, rbac.Actor{ID: 1, Role: rbac.RoleAdmin})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/periods/generate", strings.NewReader(`{"year":2025}`)))
	require.Equal(t, http.StatusConflict, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "duplicate_year", body["code"])
}

func TestSetActiveRequiresFlag(t *testing.T) {
	var gotID int64
	var gotActive bool
	svc := &stubPeriodService{setActiveFn: func(_ context.Context, id int64, active bool) (Period, error) {
		gotID, gotActive = id, active
		return Period{ID: id, IsCurrent: active}, nil
	}}
	router := newTestRouter(svc, rbac.Actor{ID: 1, Role: rbac.RoleSuperAdmin})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/periods/4/active", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/periods/4/active", strings.NewReader(`{"active":true}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(4), gotID)
	require.True(t, gotActive)
}

func TestDeleteMapsClosuresToConflict(t *testing.T) {
	svc := &stubPeriodService{deleteFn: func(context.Context, int64) error { return ErrPeriodHasClosures }}
	router := newTestRouter(svc, rbac.Actor{ID: 1, Role: rbac.RoleAdmin})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/periods/9", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
}
