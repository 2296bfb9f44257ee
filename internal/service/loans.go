package service

import (
	"context"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
)

func (s *DefaultService) loanResponse(loan models.Loan, asOf models.Date) models.LoanResponse {
	return models.LoanResponse{
		Loan:        loan,
		Overdue:     loan.IsOverdue(asOf),
		DaysOverdue: loan.DaysOverdue(asOf),
	}
}

func (s *DefaultService) loanResponses(loans []models.Loan, asOf models.Date) []models.LoanResponse {
	out := make([]models.LoanResponse, 0, len(loans))
	for _, l := range loans {
		out = append(out, s.loanResponse(l, asOf))
	}
	return out
}

// OpenLoan lends a copy to a borrower
func (s *DefaultService) OpenLoan(ctx context.Context, req models.OpenLoanRequest) (*models.LoanResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	today := s.today()
	if req.LoanDate.IsZero() {
		req.LoanDate = today
	}
	if req.DueDate.IsZero() {
		return nil, invalidField("dueDate", "is required")
	}
	if !req.DueDate.After(req.LoanDate) {
		return nil, invalidField("dueDate", "must be after the loan date")
	}

	borrower, err := s.identity.GetUserByID(ctx, req.BorrowerID)
	if err != nil {
		return nil, infra("error getting borrower", err)
	}
	if borrower == nil {
		return nil, notFound("user", req.BorrowerID)
	}
	if !borrower.Active {
		return nil, invalidField("borrowerId", "borrower account is inactive")
	}

	agent, err := s.identity.GetUserByID(ctx, req.AgentID)
	if err != nil {
		return nil, infra("error getting agent", err)
	}
	if agent == nil {
		return nil, notFound("user", req.AgentID)
	}
	if !models.IsStaffRole(agent.Role) {
		return nil, invalidField("agentId", "agent must hold a staff role")
	}

	cp, err := s.catalog.GetCopy(ctx, req.CopyID)
	if err != nil {
		return nil, infra("error getting copy", err)
	}
	if cp == nil {
		return nil, notFound("copy", req.CopyID)
	}

	loan := &models.Loan{
		BorrowerID: req.BorrowerID,
		CopyID:     req.CopyID,
		AgentID:    req.AgentID,
		LoanDate:   req.LoanDate,
		DueDate:    req.DueDate,
		Status:     models.LoanStatusActive,
		Notes:      req.Notes,
	}

	err = s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		active, err := tx.GetActiveLoanByCopy(ctx, cp.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return conflict("copy %s already has an active loan", cp.ID)
		}

		if cp.Status == models.CopyStatusOnLoan {
			return conflict("copy %s is already on loan", cp.ID)
		}
		if !cp.PermitsLoan {
			return invalidField("copyId", "copy status "+cp.Status+" does not permit lending")
		}

		// The unique index on active loans closes the race between the check above and this insert
		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, wrapError("error opening loan", err)
	}

	if err := s.catalog.SetCopyStatus(ctx, cp.ID, models.CopyStatusOnLoan); err != nil {
		s.logger.Error("Failed to mark copy %s on loan after opening loan %s: %v", cp.ID, loan.ID, err)
	}

	s.logger.Info("Opened loan %s for copy %s to borrower %s", loan.ID, loan.CopyID, loan.BorrowerID)

	resp := s.loanResponse(*loan, today)
	return &resp, nil
}

func (s *DefaultService) GetLoan(ctx context.Context, caller Caller, loanID string) (*models.LoanResponse, error) {
	loan, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, infra("error getting loan", err)
	}
	if loan == nil {
		return nil, notFound("loan", loanID)
	}
	if !caller.canSee(loan.BorrowerID) {
		return nil, ErrForbidden
	}

	resp := s.loanResponse(*loan, s.today())
	return &resp, nil
}

// ListLoans returns a fresh snapshot of the loans matching filter, newest loan date first.
// Non-staff callers only ever see their own loans.
func (s *DefaultService) ListLoans(ctx context.Context, caller Caller, filter models.LoanFilter) ([]models.LoanResponse, error) {
	if !caller.IsStaff() {
		filter.BorrowerID = caller.UserID
	}

	switch filter.Status {
	case "", models.LoanStatusActive, models.LoanStatusReturned, models.LoanStatusCancelled, models.LoanStatusOverdue:
	default:
		return nil, invalidField("status", "must be one of: active returned cancelled overdue")
	}

	today := s.today()
	if filter.AsOf.IsZero() {
		filter.AsOf = today
	}

	loans, err := s.repo.ListLoans(ctx, filter)
	if err != nil {
		return nil, infra("error listing loans", err)
	}

	return s.loanResponses(loans, filter.AsOf), nil
}

// GetActiveLoans lists active loans, optionally for a single borrower
func (s *DefaultService) GetActiveLoans(ctx context.Context, borrowerID string) ([]models.LoanResponse, error) {
	return s.ListLoans(ctx, Caller{Role: models.RoleAdmin}, models.LoanFilter{
		Status:     models.LoanStatusActive,
		BorrowerID: borrowerID,
	})
}

// GetOverdueLoans lists active loans whose due date is before asOf.
// Stored statuses are not touched.
func (s *DefaultService) GetOverdueLoans(ctx context.Context, asOf models.Date) ([]models.LoanResponse, error) {
	return s.ListLoans(ctx, Caller{Role: models.RoleAdmin}, models.LoanFilter{
		OverdueOnly: true,
		AsOf:        asOf,
	})
}

// CancelLoan withdraws an active loan and makes the copy available again
func (s *DefaultService) CancelLoan(ctx context.Context, loanID string) (*models.LoanResponse, error) {
	var loan *models.Loan

	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return notFound("loan", loanID)
		}

		switch loan.Status {
		case models.LoanStatusReturned:
			return conflict("loan %s has already been returned", loanID)
		case models.LoanStatusCancelled:
			return conflict("loan %s is already cancelled", loanID)
		}

		ok, err := tx.UpdateLoanStatus(ctx, loanID, models.LoanStatusActive, models.LoanStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("loan %s is not active", loanID)
		}

		loan.Status = models.LoanStatusCancelled
		return nil
	})
	if err != nil {
		return nil, wrapError("error cancelling loan", err)
	}

	if err := s.catalog.SetCopyStatus(ctx, loan.CopyID, models.CopyStatusAvailable); err != nil {
		s.logger.Error("Failed to release copy %s after cancelling loan %s: %v", loan.CopyID, loan.ID, err)
	}

	resp := s.loanResponse(*loan, s.today())
	return &resp, nil
}

// closeLoan marks an active loan as returned inside the caller's transaction
func closeLoan(ctx context.Context, tx repository.Repository, loanID string) error {
	ok, err := tx.UpdateLoanStatus(ctx, loanID, models.LoanStatusActive, models.LoanStatusReturned)
	if err != nil {
		return err
	}
	if !ok {
		return conflict("loan %s is not active", loanID)
	}
	return nil
}

// DeleteLoan removes a loan that is no longer active and was never returned
func (s *DefaultService) DeleteLoan(ctx context.Context, loanID string) error {
	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return notFound("loan", loanID)
		}
		if loan.Status == models.LoanStatusActive {
			return conflict("loan %s is still active", loanID)
		}

		ret, err := tx.GetReturnByLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if ret != nil {
			return conflict("loan %s is referenced by return %s", loanID, ret.ID)
		}

		return tx.DeleteLoan(ctx, loanID)
	})

	return wrapError("error deleting loan", err)
}
