package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"efiling.org/internal/fault"
	"efiling.org/internal/obs"
	"efiling.org/internal/store"
	"efiling.org/internal/validate"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Message   string            `json:"message"`
	Fields    map[string]string `json:"errors,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageBody{Message: msg})
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{Message: msg, RequestID: RequestIDFromContext(r)})
}

// writeFault maps an error kind to its HTTP status. Untyped errors are
// logged and reported as 500 without their detail.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Message: err.Error(), RequestID: RequestIDFromContext(r)}
	var fields validate.FieldErrors
	if errors.As(err, &fields) {
		body.Fields = fields
	}
	if code == http.StatusInternalServerError {
		obs.Logger().Error("request failed",
			zap.String("request_id", body.RequestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body.Message = "Internal server error"
	}
	writeJSON(w, code, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrAuthentication), errors.Is(err, fault.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, fault.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrInvalidStateTransition), errors.Is(err, fault.ErrEnrollmentConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// storeFault converts a store error into an error kind, using notFound and
// duplicate as the messages of those two failures.
func storeFault(err error, notFound, duplicate string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fault.Wrap(fault.ErrNotFound, err, notFound)
	case errors.Is(err, store.ErrDuplicate):
		return fault.Wrap(fault.ErrEnrollmentConflict, err, duplicate)
	case errors.Is(err, store.ErrAlreadyReviewed):
		return fault.Wrap(fault.ErrInvalidStateTransition, err, "")
	default:
		return fault.Wrap(fault.ErrTransport, err, "")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fault.New(fault.ErrValidation, "Request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fault.Wrap(fault.ErrValidation, err, "Request body is too large")
		}
		return fault.Wrap(fault.ErrValidation, err, "Malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fault.New(fault.ErrValidation, "Unexpected data after JSON body")
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, fault.New(fault.ErrValidation, "Invalid number "+strconv.Quote(raw))
	}
	return v, nil
}
