package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // bad input document
	KindExtraction ErrorKind = "extraction" // chosen backend failed or returned nothing
	KindService    ErrorKind = "service"    // text-understanding backend failed or misbehaved
	KindInternal   ErrorKind = "internal"   // unexpected defect
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error

	Kind  ErrorKind
	Stage string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrUnavailable  = errors.New("service unavailable")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewKindError builds an AppError tagged with a failure kind and the stage it happened in.
func NewKindError(kind ErrorKind, stage, message string, cause error) *AppError {
	return &AppError{
		Code:    kindCode(kind),
		Message: message,
		Cause:   cause,
		Kind:    kind,
		Stage:   stage,
	}
}

func kindCode(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindExtraction:
		return "EXTRACTION_ERROR"
	case KindService:
		return "SERVICE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// KindOf returns the failure kind carried by err, or KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
