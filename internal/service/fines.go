package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rongwang/library-circulation/internal/models"
	"github.com/rongwang/library-circulation/internal/repository"
)

func (s *DefaultService) fineResponse(fine models.Fine, asOf models.Date) models.FineResponse {
	return models.FineResponse{
		Fine:    fine,
		Overdue: s.IsFineOverdue(fine, asOf),
	}
}

// IsFineOverdue reports whether an unpaid fine is older than the grace period
func (s *DefaultService) IsFineOverdue(fine models.Fine, asOf models.Date) bool {
	return fine.IsOverdue(asOf, s.fines.GracePeriodDays)
}

// createOverdueFine charges the daily rate for every day a return was late
func (s *DefaultService) createOverdueFine(ctx context.Context, ret *models.Return, userID string, daysLate int) (*models.Fine, error) {
	amount := s.fines.DailyRate.Mul(decimal.NewFromInt(int64(daysLate))).Round(2)

	fine := &models.Fine{
		ReturnID:    &ret.ID,
		LoanID:      &ret.LoanID,
		UserID:      userID,
		Kind:        models.FineKindOverdue,
		Amount:      amount,
		Description: fmt.Sprintf("Returned %d day(s) late", daysLate),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.CreateFine(ctx, fine); err != nil {
		return nil, wrapError("error creating overdue fine", err)
	}

	return fine, nil
}

// createConditionFine charges a flat fee for a copy returned damaged or lost
func (s *DefaultService) createConditionFine(
	ctx context.Context,
	ret *models.Return,
	userID string,
	kind models.FineKind,
	amount decimal.Decimal,
) (*models.Fine, error) {
	fine := &models.Fine{
		ReturnID:    &ret.ID,
		LoanID:      &ret.LoanID,
		UserID:      userID,
		Kind:        kind,
		Amount:      amount.Round(2),
		Description: fmt.Sprintf("Copy returned in %s condition", ret.Condition),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.CreateFine(ctx, fine); err != nil {
		return nil, wrapError("error creating "+string(kind)+" fine", err)
	}

	return fine, nil
}

// CreateManualFine issues a damage or loss fine, optionally tied to a loan or a return
func (s *DefaultService) CreateManualFine(ctx context.Context, req models.CreateFineRequest) (*models.FineResponse, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.Amount.IsNegative() {
		return nil, invalidField("amount", "must not be negative")
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, invalidField("amount", "must have at most two decimal places")
	}

	user, err := s.identity.GetUserByID(ctx, req.UserID)
	if err != nil {
		return nil, infra("error getting user", err)
	}
	if user == nil {
		return nil, notFound("user", req.UserID)
	}

	loanID := req.LoanID
	if req.ReturnID != nil {
		ret, err := s.repo.GetReturn(ctx, *req.ReturnID)
		if err != nil {
			return nil, infra("error getting return", err)
		}
		if ret == nil {
			return nil, notFound("return", *req.ReturnID)
		}
		if loanID != nil && *loanID != ret.LoanID {
			return nil, invalidField("loanId", "does not match the loan of the given return")
		}
		loanID = &ret.LoanID
	}

	if loanID != nil {
		loan, err := s.repo.GetLoan(ctx, *loanID)
		if err != nil {
			return nil, infra("error getting loan", err)
		}
		if loan == nil {
			return nil, notFound("loan", *loanID)
		}
	}

	fine := &models.Fine{
		ReturnID:    req.ReturnID,
		LoanID:      loanID,
		UserID:      req.UserID,
		Kind:        req.Kind,
		Amount:      req.Amount.Round(2),
		Description: req.Description,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.CreateFine(ctx, fine); err != nil {
		return nil, wrapError("error creating fine", err)
	}

	resp := s.fineResponse(*fine, s.today())
	return &resp, nil
}

func (s *DefaultService) GetFine(ctx context.Context, caller Caller, fineID string) (*models.FineResponse, error) {
	fine, err := s.repo.GetFine(ctx, fineID)
	if err != nil {
		return nil, infra("error getting fine", err)
	}
	if fine == nil {
		return nil, notFound("fine", fineID)
	}
	if !caller.canSee(fine.UserID) {
		return nil, ErrForbidden
	}

	resp := s.fineResponse(*fine, s.today())
	return &resp, nil
}

// ListFines returns the fines matching filter, newest first.
// Non-staff callers only ever see their own fines.
func (s *DefaultService) ListFines(ctx context.Context, caller Caller, filter models.FineFilter) ([]models.FineResponse, error) {
	if !caller.IsStaff() {
		filter.UserID = caller.UserID
	}

	fines, err := s.repo.ListFines(ctx, filter)
	if err != nil {
		return nil, infra("error listing fines", err)
	}

	today := s.today()
	out := make([]models.FineResponse, 0, len(fines))
	for _, f := range fines {
		out = append(out, s.fineResponse(f, today))
	}
	return out, nil
}

// MarkPaid records payment of a fine. The payment date defaults to today and
// may be neither in the future nor before the fine was issued.
func (s *DefaultService) MarkPaid(ctx context.Context, fineID string, req models.MarkPaidRequest) (*models.FineResponse, error) {
	today := s.today()

	paymentDate := today
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = *req.PaymentDate
	}
	if paymentDate.After(today) {
		return nil, invalidField("paymentDate", "must not be in the future")
	}

	return s.updatePayment(ctx, fineID, func(fine *models.Fine) error {
		if paymentDate.Before(fine.IssuedOn()) {
			return invalidField("paymentDate", "must not precede the date the fine was issued")
		}
		fine.Paid = true
		fine.PaymentDate = &paymentDate
		return nil
	})
}

// MarkUnpaid reopens a fine and clears its payment date
func (s *DefaultService) MarkUnpaid(ctx context.Context, fineID string) (*models.FineResponse, error) {
	return s.updatePayment(ctx, fineID, func(fine *models.Fine) error {
		fine.Paid = false
		fine.PaymentDate = nil
		return nil
	})
}

func (s *DefaultService) updatePayment(ctx context.Context, fineID string, apply func(*models.Fine) error) (*models.FineResponse, error) {
	var fine *models.Fine

	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		var err error
		fine, err = tx.GetFine(ctx, fineID)
		if err != nil {
			return err
		}
		if fine == nil {
			return notFound("fine", fineID)
		}

		if err := apply(fine); err != nil {
			return err
		}

		return tx.UpdateFinePayment(ctx, fine)
	})
	if err != nil {
		return nil, wrapError("error updating fine payment", err)
	}

	resp := s.fineResponse(*fine, s.today())
	return &resp, nil
}

// DeleteFine removes a fine outright, paid or not
func (s *DefaultService) DeleteFine(ctx context.Context, fineID string) error {
	err := s.repo.RunInTx(ctx, func(tx repository.Repository) error {
		fine, err := tx.GetFine(ctx, fineID)
		if err != nil {
			return err
		}
		if fine == nil {
			return notFound("fine", fineID)
		}
		return tx.DeleteFine(ctx, fineID)
	})

	return wrapError("error deleting fine", err)
}

// TotalOwed sums the unpaid fines of a user. A user without fines owes zero.
func (s *DefaultService) TotalOwed(ctx context.Context, caller Caller, userID string) (*models.TotalOwedResponse, error) {
	if !caller.canSee(userID) {
		return nil, ErrForbidden
	}

	total, err := s.repo.SumUnpaidFines(ctx, userID)
	if err != nil {
		return nil, infra("error summing fines", err)
	}

	return &models.TotalOwedResponse{
		Status: "success",
		UserID: userID,
		Total:  total,
	}, nil
}
