package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeTimeout         Code = "TIMEOUT"
	CodeInternal        Code = "INTERNAL"
)

var statusByCode = map[Code]int{
	CodeInvalidArgument: http.StatusBadRequest,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeConflict:        http.StatusConflict,
	CodeUnavailable:     http.StatusServiceUnavailable,
	CodeTimeout:         http.StatusGatewayTimeout,
	CodeInternal:        http.StatusInternalServerError,
}

// AppError is the error contract shared by services, workers and handlers.
type AppError struct {
	Code    Code
	Op      string // operation name, ex: "SessionService.Start"
	Message string // safe to show to clients
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &AppError{Code: code, Op: op, Message: msg, Err: err}
}

// CodeOf reports the code carried by err. Context deadlines map to
// CodeTimeout, repository misses to CodeNotFound, anything else to
// CodeInternal.
func CodeOf(err error) Code {
	var ae *AppError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ae):
		return ae.Code
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func HTTPStatus(err error) int {
	if s, ok := statusByCode[CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("not found")
