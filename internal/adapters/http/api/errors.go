package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/codequest/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrInternal   = errors.New("internal error")
)

// opError tags an error with the handler operation that produced it.
type opError struct {
	op   string
	kind error
	err  error
}

func (e *opError) Error() string {
	switch {
	case e.err == nil:
		return fmt.Sprintf("%s: %v", e.op, e.kind)
	case e.kind == nil:
		return fmt.Sprintf("%s: %v", e.op, e.err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.op, e.kind, e.err)
	}
}

func (e *opError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.err != nil {
		out = append(out, e.err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error {
	return &opError{op: op, kind: kind}
}

// Wrap tags err with op, keeping its kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

// WrapKind tags err with op and an explicit kind.
func WrapKind(op string, kind, err error) error {
	return &opError{op: op, kind: kind, err: err}
}

type errorResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	MustComplete int    `json:"mustComplete,omitempty"`
}

// statusFor maps an error kind onto an HTTP status and a stable code.
// ErrPayloadTooLarge is checked before ErrInvalidInput because it wraps it.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotAuthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, model.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrLockedLevel):
		return http.StatusConflict, "level_locked"
	case errors.Is(err, model.ErrChallengeNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrExecutionBusy):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, model.ErrExecutionUnavailable):
		return http.StatusBadGateway, "execution_unavailable"
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {code, message}. Internal failures do not leak
// their cause to the client.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Code: code, Message: err.Error()}
	if status == http.StatusInternalServerError {
		resp.Message = http.StatusText(status)
	}
	var locked *model.LockedError
	if errors.As(err, &locked) {
		resp.MustComplete = locked.MustComplete
	}
	writeJSON(w, status, resp)
}
