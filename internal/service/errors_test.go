package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError("op", nil))

	conflicts := []error{
		repository.ErrActiveLoanExists,
		repository.ErrReturnExists,
		repository.ErrDuplicateEmail,
		repository.ErrDuplicateCode,
		fmt.Errorf("insert fine: %w", repository.ErrReferenced),
	}
	for _, err := range conflicts {
		var conflictErr *ConflictError
		assert.ErrorAs(t, wrapError("op", err), &conflictErr, err.Error())
	}

	var validationErr *ValidationError
	assert.ErrorAs(t, wrapError("op", repository.ErrUnknownStatus), &validationErr)
	assert.Contains(t, validationErr.Fields, "status")

	var notFoundErr *NotFoundError
	assert.ErrorAs(t, wrapError("op", fmt.Errorf("update fine: %w", repository.ErrNotFound)), &notFoundErr)
	assert.Equal(t, "record not found", notFoundErr.Error())

	// Business errors pass through untouched
	nf := notFound("loan", "42")
	assert.Same(t, nf, wrapError("op", nf))
	assert.ErrorIs(t, wrapError("op", ErrForbidden), ErrForbidden)

	cause := errors.New("connection refused")
	wrapped := wrapError("error listing loans", cause)

	var infraErr *InfrastructureError
	assert.ErrorAs(t, wrapped, &infraErr)
	assert.Equal(t, "error listing loans", infraErr.Op)
	assert.ErrorIs(t, wrapped, cause)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	s := &DefaultService{validate: newValidator()}

	err := s.validateStruct(models.RecordReturnRequest{
		LoanID:    "not-a-uuid",
		Condition: "shredded",
	})

	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "must be a valid id", validationErr.Fields["loanId"])
	assert.Equal(t, "is required", validationErr.Fields["agentId"])
	assert.Equal(t, "must be one of: good fair damaged lost", validationErr.Fields["condition"])
}

func TestCallerVisibility(t *testing.T) {
	reader := Caller{UserID: "u1", Role: models.RoleReader}
	assert.True(t, reader.canSee("u1"))
	assert.False(t, reader.canSee("u2"))

	librarian := Caller{UserID: "u3", Role: models.RoleLibrarian}
	assert.True(t, librarian.IsStaff())
	assert.True(t, librarian.canSee("u2"))
}
