package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rongwang/library-circulation/internal/repository"
)

// ValidationError reports malformed or semantically invalid input
type ValidationError struct {
	Message string
	// Fields maps offending input fields to what is wrong with them
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}

	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// NotFoundError reports a reference to a record that does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports a violated uniqueness or state rule
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// InfrastructureError wraps a persistence or other system fault
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// ErrInvalidCredentials is returned by Login for unknown users and bad passwords alike
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrForbidden is returned when the caller may not see or change a record
var ErrForbidden = errors.New("you don't have permission to access this resource")

func invalid(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func invalidField(field, message string) *ValidationError {
	return &ValidationError{
		Message: "validation failed",
		Fields:  map[string]string{field: message},
	}
}

func notFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func conflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func infra(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

// wrapError keeps business errors, translates repository integrity violations
// and wraps anything else as an infrastructure fault
func wrapError(op string, err error) error {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		conflictErr   *ConflictError
		infraErr      *InfrastructureError
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, &validationErr),
		errors.As(err, &notFoundErr),
		errors.As(err, &conflictErr),
		errors.As(err, &infraErr),
		errors.Is(err, ErrForbidden):
		return err
	case errors.Is(err, repository.ErrActiveLoanExists):
		return conflict("copy already has an active loan")
	case errors.Is(err, repository.ErrReturnExists):
		return conflict("loan has already been returned")
	case errors.Is(err, repository.ErrDuplicateEmail):
		return conflict("user with this email already exists")
	case errors.Is(err, repository.ErrDuplicateCode):
		return conflict("a copy with this code already exists")
	case errors.Is(err, repository.ErrReferenced):
		return conflict("record is referenced by other records")
	case errors.Is(err, repository.ErrNotFound):
		return notFound("record", "")
	case errors.Is(err, repository.ErrUnknownStatus):
		return invalidField("status", "unknown copy status")
	default:
		return infra(op, err)
	}
}
