package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintActiveLoan = "ux_loans_active_copy"
	constraintReturnLoan = "ux_returns_loan"
	constraintUserEmail  = "ux_users_email"
	constraintCopyCode   = "ux_copies_code"
	constraintCopyStatus = "fk_copies_status"
)

// pgError extracts the SQLSTATE code and constraint name from either driver's error type
func pgError(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}

	return "", "", false
}

// translateError maps integrity violations onto the package sentinels and passes everything else through
func translateError(err error) error {
	if err == nil {
		return nil
	}

	code, constraint, ok := pgError(err)
	if !ok {
		return err
	}

	switch code {
	case pgUniqueViolation:
		switch constraint {
		case constraintActiveLoan:
			return ErrActiveLoanExists
		case constraintReturnLoan:
			return ErrReturnExists
		case constraintUserEmail:
			return ErrDuplicateEmail
		case constraintCopyCode:
			return ErrDuplicateCode
		}
	case pgForeignKeyViolation:
		if constraint == constraintCopyStatus {
			return ErrUnknownStatus
		}
		return ErrReferenced
	}

	return err
}
