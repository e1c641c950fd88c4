// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/obra-ledger/obra-ledger/internal/shared"
)

// ErrUnauthorized is returned when no valid session accompanies the request.
var ErrUnauthorized = errors.New("unauthorized")

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusUnauthorized {
		Problem(w, status, "Unauthorized", err.Error())
		return
	}
	var domain *shared.Error
	if status == http.StatusInternalServerError || !errors.As(err, &domain) {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	JSON(w, status, ProblemDetail{
		Type:   "urn:obra-ledger:" + domain.Code,
		Title:  http.StatusText(status),
		Status: status,
		Detail: domain.Message,
		Code:   domain.Code,
		Fields: domain.Fields,
	})
}
