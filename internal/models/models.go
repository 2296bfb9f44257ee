package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role names known to the identity store
const (
	RoleAdmin     = "admin"
	RoleLibrarian = "librarian"
	RoleReader    = "reader"
)

// IsStaffRole reports whether a role may issue loans and receive returns
func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleLibrarian
}

// Copy status names known to the catalog
const (
	CopyStatusAvailable   = "available"
	CopyStatusOnLoan      = "on_loan"
	CopyStatusDamaged     = "damaged"
	CopyStatusLost        = "lost"
	CopyStatusMaintenance = "maintenance"
)

// LoanStatus is the stored state of a loan
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusReturned  LoanStatus = "returned"
	LoanStatusCancelled LoanStatus = "cancelled"
	// LoanStatusOverdue is accepted as a list filter only. It is never stored:
	// overdue-ness is derived from the due date at read time.
	LoanStatusOverdue LoanStatus = "overdue"
)

// ReturnCondition describes the state of a copy when it came back
type ReturnCondition string

const (
	ConditionGood    ReturnCondition = "good"
	ConditionFair    ReturnCondition = "fair"
	ConditionDamaged ReturnCondition = "damaged"
	ConditionLost    ReturnCondition = "lost"
)

// FineKind is the reason a fine was issued
type FineKind string

const (
	FineKindOverdue FineKind = "overdue"
	FineKindDamage  FineKind = "damage"
	FineKindLoss    FineKind = "loss"
)

// User represents a library member or staff account
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"` // Password hash, not returned in JSON
	Role      string    `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// CopyStatus is a catalog state a physical copy can be in
type CopyStatus struct {
	Name        string `db:"name" json:"name"`
	PermitsLoan bool   `db:"permits_loan" json:"permitsLoan"`
}

// Copy is a physical, independently lendable instance of a book
type Copy struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	BookTitle   string    `db:"book_title" json:"bookTitle"`
	Status      string    `db:"status" json:"status"`
	PermitsLoan bool      `db:"permits_loan" json:"permitsLoan"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// Loan records a copy lent to a borrower for a bounded period
type Loan struct {
	ID         string     `db:"id" json:"id"`
	BorrowerID string     `db:"borrower_id" json:"borrowerId"`
	CopyID     string     `db:"copy_id" json:"copyId"`
	AgentID    string     `db:"agent_id" json:"agentId"`
	LoanDate   Date       `db:"loan_date" json:"loanDate"`
	DueDate    Date       `db:"due_date" json:"dueDate"`
	Status     LoanStatus `db:"status" json:"status"`
	Notes      string     `db:"notes" json:"notes"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsOverdue is the single source of truth for loan lateness
func (l Loan) IsOverdue(asOf Date) bool {
	return l.Status == LoanStatusActive && l.DueDate.Before(asOf)
}

// DaysOverdue returns how many days past due an active loan is as of the given date
func (l Loan) DaysOverdue(asOf Date) int {
	if !l.IsOverdue(asOf) {
		return 0
	}
	return DaysBetween(l.DueDate, asOf)
}

// Return closes a loan, capturing when the copy came back and how late it was
type Return struct {
	ID         string          `db:"id" json:"id"`
	LoanID     string          `db:"loan_id" json:"loanId"`
	AgentID    string          `db:"agent_id" json:"agentId"`
	ReturnDate Date            `db:"return_date" json:"returnDate"`
	DaysLate   int             `db:"days_late" json:"daysLate"`
	Condition  ReturnCondition `db:"condition" json:"condition"`
	Notes      string          `db:"notes" json:"notes"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updatedAt"`
}

// Fine is a monetary penalty derived from a return or issued manually
type Fine struct {
	ID          string          `db:"id" json:"id"`
	ReturnID    *string         `db:"return_id" json:"returnId,omitempty"`
	LoanID      *string         `db:"loan_id" json:"loanId,omitempty"`
	UserID      string          `db:"user_id" json:"userId"`
	Kind        FineKind        `db:"kind" json:"kind"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Paid        bool            `db:"paid" json:"paid"`
	PaymentDate *Date           `db:"payment_date" json:"paymentDate"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsOverdue reports whether an unpaid fine has outlived its grace period
func (f Fine) IsOverdue(asOf Date, graceDays int) bool {
	if f.Paid {
		return false
	}
	return DaysBetween(f.IssuedOn(), asOf) > graceDays
}

// IssuedOn is the calendar day, in UTC, the fine was created
func (f Fine) IssuedOn() Date {
	return DateOf(f.CreatedAt.UTC())
}

// LoanFilter narrows a loan listing
type LoanFilter struct {
	Status      LoanStatus
	BorrowerID  string
	OverdueOnly bool
	// AsOf is the reference date for overdue filtering
	AsOf Date
}

// FineFilter narrows a fine listing
type FineFilter struct {
	UserID string
	Paid   *bool
}

// ReturnFilter narrows a return listing
type ReturnFilter struct {
	LoanID string
}
