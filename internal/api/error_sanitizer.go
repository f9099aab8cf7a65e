package api

import (
	"errors"
	"net/http"

	"github.com/founderfund/waitlist/internal/pkg/httputil"
	"github.com/founderfund/waitlist/internal/pkg/logger"
	"github.com/founderfund/waitlist/internal/service/signup"
	"github.com/founderfund/waitlist/internal/service/status"
)

// Messages returned to clients. Storage and driver errors never reach the
// response body; the full error is logged server-side instead.
const (
	msgDuplicateEmail = "This email is already on our waitlist. We'll be in touch soon!"
	msgInvalidInput   = "invalid input"
	msgInternal       = "internal server error"
)

// Error codes carried in httputil.ErrorResponse.Code.
const (
	codeDuplicateEmail = "duplicate_email"
	codeInvalidInput   = "invalid_input"
	codeInternal       = "internal"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	httputil.JSON(w, status, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	httputil.Error(w, status, message)
}

// respondSafeError logs the internal error and sends a generic 500 so that
// hosts, SQL and credentials never leak to API consumers.
func respondSafeError(w http.ResponseWriter, log *logger.Logger, r *http.Request, internalErr error) {
	log.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID(r),
		"error", internalErr,
	)
	httputil.ErrorCode(w, http.StatusInternalServerError, msgInternal, codeInternal, nil)
}

// respondServiceError maps service-layer errors to HTTP responses.
func respondServiceError(w http.ResponseWriter, log *logger.Logger, r *http.Request, err error) {
	var verr *signup.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, msgInvalidInput, codeInvalidInput, verr.Fields)
	case errors.Is(err, signup.ErrDuplicateEmail):
		httputil.ErrorCode(w, http.StatusConflict, msgDuplicateEmail, codeDuplicateEmail, nil)
	case errors.Is(err, status.ErrClientNameRequired):
		httputil.ErrorCode(w, http.StatusUnprocessableEntity, msgInvalidInput, codeInvalidInput,
			[]signup.FieldError{{Field: "client_name", Message: "is required"}})
	default:
		respondSafeError(w, log, r, err)
	}
}
