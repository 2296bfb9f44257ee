package models

import "github.com/shopspring/decimal"

// Request models
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type OpenLoanRequest struct {
	BorrowerID string `json:"borrowerId" validate:"required,uuid"`
	CopyID     string `json:"copyId" validate:"required,uuid"`
	AgentID    string `json:"agentId" validate:"required,uuid"`
	LoanDate   Date   `json:"loanDate"`
	DueDate    Date   `json:"dueDate"`
	Notes      string `json:"notes" validate:"max=2000"`
}

type RecordReturnRequest struct {
	LoanID     string          `json:"loanId" validate:"required,uuid"`
	AgentID    string          `json:"agentId" validate:"required,uuid"`
	ReturnDate *Date           `json:"actualReturnDate"`
	Condition  ReturnCondition `json:"condition" validate:"omitempty,oneof=good fair damaged lost"`
	Notes      string          `json:"notes" validate:"max=2000"`
}

type CorrectReturnRequest struct {
	Condition *ReturnCondition `json:"condition" validate:"omitempty,oneof=good fair damaged lost"`
	Notes     *string          `json:"notes" validate:"omitempty,max=2000"`
}

type CreateFineRequest struct {
	UserID      string          `json:"userId" validate:"required,uuid"`
	Kind        FineKind        `json:"kind" validate:"required,oneof=damage loss"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=2000"`
	LoanID      *string         `json:"loanId" validate:"omitempty,uuid"`
	ReturnID    *string         `json:"returnId" validate:"omitempty,uuid"`
}

type MarkPaidRequest struct {
	PaymentDate *Date `json:"paymentDate"`
}

type RegisterCopyRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	BookTitle string `json:"bookTitle" validate:"required,max=255"`
	Status    string `json:"status" validate:"omitempty,oneof=available on_loan damaged lost maintenance"`
}

// Response models
type AuthResponse struct {
	Status    string `json:"status"`
	UserID    string `json:"userId,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role,omitempty"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// LoanResponse is a loan plus its lateness as computed at read time
type LoanResponse struct {
	Loan
	Overdue     bool `json:"overdue"`
	DaysOverdue int  `json:"daysOverdue"`
}

type LoanListResponse struct {
	Status string         `json:"status"`
	Loans  []LoanResponse `json:"loans"`
}

// FineResponse is a fine plus whether it is past its collection grace period
type FineResponse struct {
	Fine
	Overdue bool `json:"overdue"`
}

type FineListResponse struct {
	Status string         `json:"status"`
	Fines  []FineResponse `json:"fines"`
}

type ReturnListResponse struct {
	Status  string   `json:"status"`
	Returns []Return `json:"returns"`
}

// ReturnResult bundles everything a return produced.
// FineError is set when the return was committed but fine creation failed afterwards.
type ReturnResult struct {
	Status    string         `json:"status"`
	Return    Return         `json:"return"`
	Loan      LoanResponse   `json:"loan"`
	Fines     []FineResponse `json:"fines"`
	FineError string         `json:"fineError,omitempty"`
}

type TotalOwedResponse struct {
	Status string          `json:"status"`
	UserID string          `json:"userId"`
	Total  decimal.Decimal `json:"total"`
}

type ErrorResponse struct {
	Status  string            `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
