package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.FieldError("amount", "must be greater than 0"), http.StatusBadRequest},
		{shared.NotFound("period_not_found", "period not found"), http.StatusNotFound},
		{shared.Conflict("already_closed", "already closed"), http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrPeriodClosed, http.StatusUnprocessableEntity},
		{shared.Storage("op", errors.New("conn reset")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{ErrUnauthorized, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}

func TestRespondErrorIncludesCodeAndFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.FieldError("memo", "is required"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, shared.CodeValidation, body.Code)
	require.Equal(t, "is required", body.Fields["memo"])
}

func TestRespondErrorHidesStorageDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.Storage("periods: insert", errors.New("password=secret")))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
}
