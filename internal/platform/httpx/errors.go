// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/ledger-authz/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", "email or password is incorrect")
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
