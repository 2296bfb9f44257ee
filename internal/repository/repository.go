package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/rongwang/library-circulation/internal/models"
)

// Integrity violations reported by every Repository implementation
var (
	ErrActiveLoanExists = errors.New("copy already has an active loan")
	ErrReturnExists     = errors.New("loan already has a return")
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateCode    = errors.New("copy code already registered")
	ErrReferenced       = errors.New("row is referenced by another record")
	ErrUnknownStatus    = errors.New("unknown copy status")
	// ErrNotFound is returned by updates and deletes whose target row does not exist
	ErrNotFound = errors.New("row not found")
)

// Repository interface defines the methods that any repository implementation must satisfy.
// Lookups return (nil, nil) when the row does not exist.
type Repository interface {
	// RunInTx executes fn against a repository bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn func(tx Repository) error) error

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Catalog operations
	CreateCopy(ctx context.Context, copy *models.Copy) error
	GetCopy(ctx context.Context, id string) (*models.Copy, error)
	SetCopyStatus(ctx context.Context, id, status string) error

	// Loan operations
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetLoan(ctx context.Context, id string) (*models.Loan, error)
	// GetLoanForUpdate locks the loan row for the rest of the enclosing transaction
	GetLoanForUpdate(ctx context.Context, id string) (*models.Loan, error)
	GetActiveLoanByCopy(ctx context.Context, copyID string) (*models.Loan, error)
	ListLoans(ctx context.Context, filter models.LoanFilter) ([]models.Loan, error)
	// UpdateLoanStatus moves a loan from one status to another and reports
	// whether a row in the expected status was found
	UpdateLoanStatus(ctx context.Context, id string, from, to models.LoanStatus) (bool, error)
	DeleteLoan(ctx context.Context, id string) error

	// Return operations
	CreateReturn(ctx context.Context, ret *models.Return) error
	GetReturn(ctx context.Context, id string) (*models.Return, error)
	GetReturnByLoan(ctx context.Context, loanID string) (*models.Return, error)
	ListReturns(ctx context.Context, filter models.ReturnFilter) ([]models.Return, error)
	UpdateReturn(ctx context.Context, ret *models.Return) error
	// DeleteReturn fails with ErrReferenced while a fine points at the return
	DeleteReturn(ctx context.Context, id string) error

	// Fine operations
	CreateFine(ctx context.Context, fine *models.Fine) error
	GetFine(ctx context.Context, id string) (*models.Fine, error)
	ListFines(ctx context.Context, filter models.FineFilter) ([]models.Fine, error)
	UpdateFinePayment(ctx context.Context, fine *models.Fine) error
	DeleteFine(ctx context.Context, id string) error
	SumUnpaidFines(ctx context.Context, userID string) (decimal.Decimal, error)
}
