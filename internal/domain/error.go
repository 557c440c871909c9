package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
		}
	}
	return E(code, op, "", err)
}

// ConfigError builds the construction-time error that keeps the engine from
// starting.
func ConfigError(op, msg string, cause error) *Error {
	return E(CodeFailedPrecond, op, msg, cause)
}

var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrUnknownCall     = errors.New("unknown tool call")
	ErrInvalidCatalog  = errors.New("invalid tool catalog")
	ErrDependencyCycle = errors.New("dependency cycle")
	ErrMissingExecutor = errors.New("internal execution requires a handler registry")
	ErrInvalidMode     = errors.New("invalid execution mode")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrExternalTimeout = errors.New(ExternalTimeoutMessage)
	ErrStoreClosed     = errors.New("store is closed")
)

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrInvalidMode), errors.Is(err, ErrInvalidCatalog), errors.Is(err, ErrDependencyCycle), errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrUnknownCall):
		return CodeNotFound, true
	case errors.Is(err, ErrMissingExecutor), errors.Is(err, ErrStoreClosed):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrExternalTimeout):
		return CodeDeadlineExceeded, true
	default:
		return "", false
	}
}
