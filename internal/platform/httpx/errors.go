package httpx

import (
	"errors"
	"net/http"

	"github.com/hoaboard/hoaboard/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidAmount):
		Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, shared.ErrDuplicateMember):
		Problem(w, http.StatusConflict, "Duplicate Member", err.Error())
	case errors.Is(err, shared.ErrEditState):
		Problem(w, http.StatusConflict, "Edit Session State", err.Error())
	case errors.Is(err, shared.ErrNoSelection):
		Problem(w, http.StatusBadRequest, "Empty Selection", err.Error())
	case errors.Is(err, shared.ErrIncorrectPassword), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrStoreUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Store Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
