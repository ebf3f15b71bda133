package httpx

import (
	"errors"
	"net/http"

	"github.com/keiri-cloud/keiri/internal/shared"
)

// RespondError maps domain errors to HTTP status codes. Unknown errors are
// reported as 500 with a generic body so internals never leak.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrInvalidYearMonth),
		errors.Is(err, shared.ErrCompanyCodeMissing):
		Error(w, http.StatusBadRequest, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
