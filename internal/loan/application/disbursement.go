package application

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/loan/domain"
)

// Disburse pays an approved loan into the member's share deposits account.
// The ledger credit, the loan state transition and the voucher are one atomic
// unit; schedule generation and notification run after commit and are
// independently retryable.
func (s *Service) Disburse(ctx context.Context, loanID, operator string) (*ledgerdomain.Transaction, error) {
	var posted *ledgerdomain.Transaction
	var memberID string

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return domain.ErrLoanNotFound
		}
		if loan.Status != domain.LoanStatusApproved {
			return domain.ErrLoanNotDisbursable
		}
		memberID = loan.MemberID

		account, err := s.ledger.GetMemberAccount(ctx, loan.MemberID, ledgerdomain.AccountTypeShareDeposits)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrAccountNotFound
		}

		posted, err = s.ledger.PostInTx(ctx, tx, ledgerapp.PostCommand{
			AccountID:   account.AccountID,
			Amount:      loan.ApprovedAmount,
			Type:        ledgerdomain.TxTypeLoanDisbursement,
			Reference:   loan.LoanID,
			Description: fmt.Sprintf("Disbursement of loan %s", loan.LoanID),
		})
		if err != nil {
			return err
		}

		now := time.Now()
		firstDue := now.AddDate(0, 1, 0)
		if err := loan.MarkDisbursed(now, firstDue); err != nil {
			// Compensating action: leave the loan approved, the rollback
			// discards the ledger credit with it.
			loan.RevertDisbursement()
			return err
		}
		if err := s.loans.Save(ctx, tx, loan); err != nil {
			return err
		}

		return s.vouchers.CreatePaidForLoanInTx(ctx, tx, loan.LoanID, loan.MemberID, loan.ApprovedAmount, operator)
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.DisbursementErrorTotal.Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LoansDisbursedTotal.Inc()
	}
	s.logger.InfoContext(ctx, "loan disbursed",
		"loan_id", loanID, "transaction_id", posted.TransactionID, "operator", operator)

	// Guarantor holds, schedule and notification follow the commit. Each is
	// retryable on its own; their failure never unwinds the disbursement.
	s.placeGuarantorHolds(ctx, loanID)

	if err := s.GenerateScheduleForLoan(ctx, loanID); err != nil {
		s.logger.ErrorContext(ctx, "failed to generate repayment schedule, will retry",
			"loan_id", loanID, "error", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, memberID, "Loan disbursed",
			"Your loan has been disbursed to your deposits account.", "sms"); err != nil {
			s.logger.WarnContext(ctx, "failed to queue disbursement notification",
				"loan_id", loanID, "error", err)
		}
	}
	return posted, nil
}

// GenerateScheduleForLoan materializes the repayment schedule for a disbursed
// loan and activates it. Idempotent: a loan past disbursed, or one that
// already has installments, is left alone.
func (s *Service) GenerateScheduleForLoan(ctx context.Context, loanID string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return domain.ErrLoanNotFound
		}
		if loan.Status != domain.LoanStatusDisbursed {
			return nil
		}

		existing, err := s.repayments.ListByLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}

		firstDue := time.Now().AddDate(0, 1, 0)
		if loan.FirstDueDate != nil {
			firstDue = *loan.FirstDueDate
		}

		schedule := domain.GenerateSchedule(
			loan.LoanID,
			loan.ApprovedAmount,
			loan.InterestRate,
			loan.TermMonths,
			loan.MonthlyPayment,
			firstDue,
		)
		if err := s.repayments.SaveBatch(ctx, tx, schedule); err != nil {
			return err
		}

		// The interest the member will pay over the schedule becomes part of
		// the loan's outstanding split.
		loan.InterestBalance = domain.ScheduleInterestTotal(schedule)
		if err := loan.SyncBalances(); err != nil {
			return err
		}
		if err := loan.MarkActive(); err != nil {
			return err
		}
		return s.loans.Save(ctx, tx, loan)
	})
}

func (s *Service) placeGuarantorHolds(ctx context.Context, loanID string) {
	guarantors, err := s.guarantors.ListByLoan(ctx, loanID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load guarantors for holds",
			"loan_id", loanID, "error", err)
		return
	}
	for _, g := range guarantors {
		if g.Released {
			continue
		}
		if err := s.ledger.PlaceHold(ctx, g.AccountID, g.GuaranteedAmount); err != nil {
			s.logger.ErrorContext(ctx, "failed to place guarantor hold",
				"loan_id", loanID, "guarantor", g.MemberID, "error", err)
		}
	}
}

func (s *Service) releaseGuarantorHolds(ctx context.Context, tx *gorm.DB, loanID string) error {
	guarantors, err := s.guarantors.ListByLoan(ctx, loanID)
	if err != nil {
		return err
	}
	for _, g := range guarantors {
		if g.Released {
			continue
		}
		if err := s.ledger.ReleaseHoldInTx(ctx, tx, g.AccountID, g.GuaranteedAmount); err != nil {
			return err
		}
		g.Released = true
		if err := s.guarantors.Save(ctx, tx, g); err != nil {
			return err
		}
	}
	return nil
}
