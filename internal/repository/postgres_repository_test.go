package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-circulation/internal/models"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ActiveLoanPQ", &pq.Error{Code: pgUniqueViolation, Constraint: constraintActiveLoan}, ErrActiveLoanExists},
		{"ActiveLoanPgx", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintActiveLoan}, ErrActiveLoanExists},
		{"ReturnExists", &pq.Error{Code: pgUniqueViolation, Constraint: constraintReturnLoan}, ErrReturnExists},
		{"DuplicateEmail", &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintUserEmail}, ErrDuplicateEmail},
		{"DuplicateCode", &pq.Error{Code: pgUniqueViolation, Constraint: constraintCopyCode}, ErrDuplicateCode},
		{"UnknownStatus", &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: constraintCopyStatus}, ErrUnknownStatus},
		{"Referenced", &pq.Error{Code: pgForeignKeyViolation, Constraint: "returns_loan_id_fkey"}, ErrReferenced},
		{"WrappedPgx", fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgForeignKeyViolation}), ErrReferenced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tt.err), tt.want)
		})
	}

	assert.NoError(t, translateError(nil))

	// Anything else passes through untouched
	other := &pq.Error{Code: "40001"}
	assert.Same(t, other, translateError(other))

	plain := errors.New("connection refused")
	assert.Same(t, plain, translateError(plain))
}

func TestBuildListLoansQuery(t *testing.T) {
	asOf := mustDate("2024-02-01")

	t.Run("Unfiltered", func(t *testing.T) {
		query, args, err := buildListLoansQuery(models.LoanFilter{})
		require.NoError(t, err)
		assert.Contains(t, query, `FROM "loans"`)
		assert.NotContains(t, query, "WHERE")
		assert.Contains(t, query, `ORDER BY "loan_date" DESC, "created_at" DESC`)
		assert.Empty(t, args)
	})

	t.Run("Overdue", func(t *testing.T) {
		query, args, err := buildListLoansQuery(models.LoanFilter{Status: models.LoanStatusOverdue, BorrowerID: "u1", AsOf: asOf})
		require.NoError(t, err)
		assert.Contains(t, query, `"status" = $1`)
		assert.Contains(t, query, `"due_date" < $2`)
		assert.Contains(t, query, `"borrower_id" = $3`)
		require.Len(t, args, 3)
		assert.Equal(t, string(models.LoanStatusActive), args[0])
		assert.Equal(t, "u1", args[2])
	})

	t.Run("OverdueOnlyWithClosedStatusMatchesNothing", func(t *testing.T) {
		query, _, err := buildListLoansQuery(models.LoanFilter{Status: models.LoanStatusReturned, OverdueOnly: true, AsOf: asOf})
		require.NoError(t, err)
		assert.Contains(t, query, "FALSE")
	})

	t.Run("Status", func(t *testing.T) {
		query, args, err := buildListLoansQuery(models.LoanFilter{Status: models.LoanStatusCancelled})
		require.NoError(t, err)
		assert.Contains(t, query, `"status" = $1`)
		assert.NotContains(t, query, "due_date\" <")
		assert.Equal(t, []interface{}{string(models.LoanStatusCancelled)}, args)
	})
}

func TestBuildListFinesQuery(t *testing.T) {
	paid := false

	query, args, err := buildListFinesQuery(models.FineFilter{UserID: "u1", Paid: &paid})
	require.NoError(t, err)
	assert.Contains(t, query, `FROM "fines"`)
	assert.Contains(t, query, `"user_id" = $1`)
	assert.Contains(t, query, `"paid"`)
	assert.Contains(t, query, `ORDER BY "created_at" DESC`)
	require.NotEmpty(t, args)
	assert.Equal(t, "u1", args[0])
}

func TestBuildListReturnsQuery(t *testing.T) {
	query, args, err := buildListReturnsQuery(models.ReturnFilter{LoanID: "l1"})
	require.NoError(t, err)
	assert.Contains(t, query, `"loan_id" = $1`)
	assert.Contains(t, query, `ORDER BY "return_date" DESC`)
	assert.Equal(t, []interface{}{"l1"}, args)
}

type rowsResult struct {
	n   int64
	err error
}

func (r rowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r rowsResult) RowsAffected() (int64, error) { return r.n, r.err }

func TestAffectedOne(t *testing.T) {
	assert.NoError(t, affectedOne(rowsResult{n: 1}, nil))
	assert.ErrorIs(t, affectedOne(rowsResult{n: 0}, nil), ErrNotFound)

	fk := &pq.Error{Code: pgForeignKeyViolation, Constraint: "fines_return_id_fkey"}
	assert.ErrorIs(t, affectedOne(nil, fk), ErrReferenced)

	unsupported := errors.New("rows affected unsupported")
	assert.ErrorIs(t, affectedOne(rowsResult{err: unsupported}, nil), unsupported)
}
