package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/arkantrust/payment-intents/apikeys"
	"github.com/arkantrust/payment-intents/payments"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Timestamp   string       `json:"timestamp"`
	Status      int          `json:"status"`
	Error       string       `json:"error"`
	Message     string       `json:"message"`
	Path        string       `json:"path"`
	FieldErrors []fieldError `json:"fieldErrors,omitempty"`
}

// validationError is a rejected request body or query. It classifies as
// payments.ErrInvalidRequest.
type validationError struct {
	message string
	fields  []fieldError
}

func (e *validationError) Error() string { return e.message }

func (e *validationError) Unwrap() error { return payments.ErrInvalidRequest }

func invalid(message string, fields ...fieldError) error {
	return &validationError{message: message, fields: fields}
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, message string, fields []fieldError) {
	writeJSON(w, status, errorResponse{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Status:      status,
		Error:       http.StatusText(status),
		Message:     message,
		Path:        r.URL.Path,
		FieldErrors: fields,
	})
}

// fail writes err as an error response. Unclassified errors are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message = err.Error()
		fields  []fieldError
		ve      *validationError
		tooBig  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		status = http.StatusRequestEntityTooLarge
		message = "request body too large"
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		fields = ve.fields
	case errors.Is(err, payments.ErrNotFound):
		status = http.StatusNotFound
		message = payments.ErrNotFound.Error()
	case errors.Is(err, apikeys.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payments.ErrIdempotencyConflict):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, payments.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, payments.ErrConcurrentModification):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, payments.ErrInvalidRequest):
		status = http.StatusBadRequest
		message = strings.TrimPrefix(message, payments.ErrInvalidRequest.Error()+": ")
	default:
		status = http.StatusInternalServerError
		message = "An unexpected error occurred"
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeProblem(w, r, status, message, fields)
}
