package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
)

// DaysLate is the number of whole calendar days returned is past due, floored at zero
func DaysLate(due, returned models.Date) int {
	days := models.DaysBetween(models.DateOf(due.Time), models.DateOf(returned.Time))
	if days < 0 {
		return 0
	}
	return days
}

// copyStatusAfterReturn maps the condition a copy came back in to its catalog status
func copyStatusAfterReturn(condition models.ReturnCondition) string {
	switch condition {
	case models.ConditionDamaged:
		return models.CopyStatusDamaged
	case models.ConditionLost:
		return models.CopyStatusLost
	default:
		return models.CopyStatusAvailable
	}
}

// RecordReturn closes a loan. The return and the loan status change commit together;
// fines and the copy status are handled after commit and never undo the return.
func (s *DefaultService) RecordReturn(ctx context.Context, req models.RecordReturnRequest) (*models.ReturnResult, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	today := s.today()

	returnDate := today
	if req.ReturnDate != nil && !req.ReturnDate.IsZero() {
		returnDate = *req.ReturnDate
	}
	if returnDate.After(today) {
		return nil, invalidField("actualReturnDate", "must not be in the future")
	}

	condition := req.Condition
	if condition == "" {
		condition = models.ConditionGood
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

	var (
		loan *models.Loan
		ret  *models.Return
	)

	err = s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		var err error
		loan, err = tx.GetLoanForUpdate(ctx, req.LoanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return notFound("loan", req.LoanID)
		}

		existing, err := tx.GetReturnByLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("loan %s has already been returned", loan.ID)
		}

		if loan.Status != models.LoanStatusActive {
			return conflict("loan %s is %s", loan.ID, loan.Status)
		}
		if returnDate.Before(loan.LoanDate) {
			return invalidField("actualReturnDate", "must not precede the loan date")
		}

		ret = &models.Return{
			LoanID:     loan.ID,
			AgentID:    req.AgentID,
			ReturnDate: returnDate,
			DaysLate:   DaysLate(loan.DueDate, returnDate),
			Condition:  condition,
			Notes:      req.Notes,
		}

		if err := tx.CreateReturn(ctx, ret); err != nil {
			return err
		}

		if err := closeLoan(ctx, tx, loan.ID); err != nil {
			return err
		}

		loan.Status = models.LoanStatusReturned
		return nil
	})
	if err != nil {
		return nil, wrapError("error recording return", err)
	}

	s.logger.Info("Recorded return %s for loan %s, %d day(s) late", ret.ID, loan.ID, ret.DaysLate)

	if err := s.catalog.SetCopyStatus(ctx, loan.CopyID, copyStatusAfterReturn(condition)); err != nil {
		s.logger.Error("Failed to update copy %s after return %s: %v", loan.CopyID, ret.ID, err)
	}

	result := &models.ReturnResult{
		Status: "success",
		Return: *ret,
		Loan:   s.loanResponse(*loan, today),
		Fines:  []models.FineResponse{},
	}

	var fineErrors []string
	for _, create := range s.returnFines(ret, loan) {
		fine, err := create(ctx)
		if err != nil {
			s.logger.Error("Failed to create fine for return %s: %v", ret.ID, err)
			fineErrors = append(fineErrors, err.Error())
			continue
		}
		result.Fines = append(result.Fines, s.fineResponse(*fine, today))
	}
	if len(fineErrors) > 0 {
		result.FineError = strings.Join(fineErrors, "; ")
	}

	return result, nil
}

// returnFines lists the fines a committed return gives rise to
func (s *DefaultService) returnFines(ret *models.Return, loan *models.Loan) []func(context.Context) (*models.Fine, error) {
	var fines []func(context.Context) (*models.Fine, error)

	if ret.DaysLate > 0 {
		fines = append(fines, func(ctx context.Context) (*models.Fine, error) {
			return s.createOverdueFine(ctx, ret, loan.BorrowerID, ret.DaysLate)
		})
	}

	switch {
	case ret.Condition == models.ConditionDamaged && s.fines.DamageFee.IsPositive():
		fines = append(fines, func(ctx context.Context) (*models.Fine, error) {
			return s.createConditionFine(ctx, ret, loan.BorrowerID, models.FineKindDamage, s.fines.DamageFee)
		})
	case ret.Condition == models.ConditionLost && s.fines.LossFee.IsPositive():
		fines = append(fines, func(ctx context.Context) (*models.Fine, error) {
			return s.createConditionFine(ctx, ret, loan.BorrowerID, models.FineKindLoss, s.fines.LossFee)
		})
	}

	return fines
}

func (s *DefaultService) GetReturn(ctx context.Context, returnID string) (*models.Return, error) {
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return nil, infra("error getting return", err)
	}
	if ret == nil {
		return nil, notFound("return", returnID)
	}
	return ret, nil
}

// GetReturnByLoan returns the return that closed a loan
func (s *DefaultService) GetReturnByLoan(ctx context.Context, caller Caller, loanID string) (*models.Return, error) {
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

	ret, err := s.repo.GetReturnByLoan(ctx, loanID)
	if err != nil {
		return nil, infra("error getting return", err)
	}
	if ret == nil {
		return nil, notFound("return for loan", loanID)
	}
	return ret, nil
}

func (s *DefaultService) ListReturns(ctx context.Context, filter models.ReturnFilter) ([]models.Return, error) {
	returns, err := s.repo.ListReturns(ctx, filter)
	if err != nil {
		return nil, infra("error listing returns", err)
	}
	return returns, nil
}

// CorrectReturn amends the condition or notes of a recorded return.
// Dates and days late cannot be changed.
func (s *DefaultService) CorrectReturn(ctx context.Context, returnID string, req models.CorrectReturnRequest) (*models.Return, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.Condition == nil && req.Notes == nil {
		return nil, invalid("nothing to update: provide condition or notes")
	}

	var ret *models.Return

	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		var err error
		ret, err = tx.GetReturn(ctx, returnID)
		if err != nil {
			return err
		}
		if ret == nil {
			return notFound("return", returnID)
		}

		if req.Condition != nil {
			ret.Condition = *req.Condition
		}
		if req.Notes != nil {
			ret.Notes = *req.Notes
		}

		return tx.UpdateReturn(ctx, ret)
	})
	if err != nil {
		return nil, wrapError("error correcting return", err)
	}

	return ret, nil
}

// DeleteReturn removes a return record. Fines issued for it must be deleted first.
// The loan keeps its returned status.
func (s *DefaultService) DeleteReturn(ctx context.Context, returnID string) error {
	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		ret, err := tx.GetReturn(ctx, returnID)
		if err != nil {
			return err
		}
		if ret == nil {
			return notFound("return", returnID)
		}

		err = tx.DeleteReturn(ctx, returnID)
		if errors.Is(err, repository.ErrReferenced) {
			return conflict("return %s is referenced by fines", returnID)
		}
		return err
	})

	return wrapError("error deleting return", err)
}
