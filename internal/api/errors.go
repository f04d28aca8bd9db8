package api

import (
	"errors"
	"net/http"

	"github.com/formemu/aditim-monitor-sub000/internal/scheduler"
	"github.com/formemu/aditim-monitor-sub000/internal/stageplan"
	"github.com/formemu/aditim-monitor-sub000/internal/store"
	"github.com/formemu/aditim-monitor-sub000/internal/taskstatus"
)

// Stable error codes carried in ErrorResponse.Code.
const (
	CodeInvalidTransition = "invalid_transition"
	CodeQueueMismatch     = "queue_mismatch"
	CodeStageBlocked      = "stage_blocked"
	CodeAlreadyFinished   = "already_finished"
	CodeNotFound          = "not_found"
	CodeValidation        = "validation"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal"
)

// ErrUnauthorized reports a missing or rejected bearer credential.
var ErrUnauthorized = errors.New("unauthorized")

var codeSentinels = []struct {
	code     string
	sentinel error
}{
	{CodeInvalidTransition, scheduler.ErrInvalidTransition},
	{CodeQueueMismatch, scheduler.ErrQueueMismatch},
	{CodeStageBlocked, scheduler.ErrStageBlocked},
	{CodeAlreadyFinished, scheduler.ErrAlreadyFinished},
	{CodeNotFound, scheduler.ErrNotFound},
	{CodeValidation, scheduler.ErrValidation},
	{CodeUnauthorized, ErrUnauthorized},
}

// ErrorCode maps err to a stable code. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	for _, entry := range codeSentinels {
		if errors.Is(err, entry.sentinel) {
			return entry.code
		}
	}
	switch {
	case errors.Is(err, taskstatus.ErrUnknownStatus),
		errors.Is(err, stageplan.ErrInvalidPlan),
		errors.Is(err, store.ErrUnknownDirectory):
		return CodeValidation
	}
	return CodeInternal
}

// HTTPStatus maps err to the status code an HTTP handler should return.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case CodeInvalidTransition, CodeQueueMismatch, CodeStageBlocked, CodeAlreadyFinished:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the error body for err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Code: ErrorCode(err)}
}

// Error is a domain error received over a transport.
type Error struct {
	Code    string
	Message string
}

// NewError rebuilds a transported error. An empty code yields a plain error
// that matches no sentinel.
func NewError(code, message string) error {
	if message == "" {
		message = code
	}
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel matching the code, if any.
func (e *Error) Unwrap() error {
	for _, entry := range codeSentinels {
		if entry.code == e.Code {
			return entry.sentinel
		}
	}
	return nil
}
