package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/loan/domain"
)

// RecordRepayment debits the member's deposits account and allocates the
// amount across due installments oldest-first, penalty before interest before
// principal. Completes the loan when the outstanding balance reaches zero.
func (s *Service) RecordRepayment(ctx context.Context, loanID string, amount decimal.Decimal, reference string) error {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return ledgerdomain.ErrInvalidAmount
	}

	var completed bool
	var memberID string

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return domain.ErrLoanNotFound
		}
		if !loan.IsOpen() {
			return domain.ErrInvalidLoanState
		}
		memberID = loan.MemberID

		account, err := s.ledger.GetMemberAccount(ctx, loan.MemberID, ledgerdomain.AccountTypeShareDeposits)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrAccountNotFound
		}

		if _, err := s.ledger.PostInTx(ctx, tx, ledgerapp.PostCommand{
			AccountID:     account.AccountID,
			Amount:        amount,
			Type:          ledgerdomain.TxTypeLoanRepayment,
			TransactionID: reference,
			Reference:     loan.LoanID,
			Description:   fmt.Sprintf("Repayment of loan %s", loan.LoanID),
		}); err != nil {
			return err
		}

		due, err := s.repayments.ListDueByLoan(ctx, tx, loan.LoanID)
		if err != nil {
			return err
		}

		now := time.Now()
		remainder := amount
		for _, installment := range due {
			if !remainder.IsPositive() {
				break
			}
			alloc := installment.ApplyPayment(remainder, now)
			remainder = alloc.Remainder

			loan.PenaltyBalance = loan.PenaltyBalance.Sub(alloc.Penalty)
			loan.InterestBalance = loan.InterestBalance.Sub(alloc.Interest)
			loan.PrincipalBalance = loan.PrincipalBalance.Sub(alloc.Principal)

			if err := s.repayments.Save(ctx, tx, installment); err != nil {
				return err
			}
		}

		clampNonNegative(loan)
		if err := loan.SyncBalances(); err != nil {
			return err
		}
		loan.DaysInArrears = maxDaysLate(due)

		if !loan.OutstandingBalance.IsPositive() {
			if err := loan.Complete(now); err != nil {
				return err
			}
			if err := s.releaseGuarantorHolds(ctx, tx, loan.LoanID); err != nil {
				return err
			}
			completed = true
		}

		return s.loans.Save(ctx, tx, loan)
	})
	if err != nil {
		return err
	}

	if completed && s.notifier != nil {
		if err := s.notifier.Notify(ctx, memberID, "Loan cleared",
			"Congratulations, your loan has been fully repaid.", "sms"); err != nil {
			s.logger.WarnContext(ctx, "failed to queue loan completion notification",
				"loan_id", loanID, "error", err)
		}
	}
	return nil
}

func clampNonNegative(loan *domain.Loan) {
	if loan.PenaltyBalance.IsNegative() {
		loan.PenaltyBalance = decimal.Zero
	}
	if loan.InterestBalance.IsNegative() {
		loan.InterestBalance = decimal.Zero
	}
	if loan.PrincipalBalance.IsNegative() {
		loan.PrincipalBalance = decimal.Zero
	}
}

func maxDaysLate(installments []*domain.LoanRepayment) int {
	days := 0
	for _, r := range installments {
		if r.Status == domain.RepaymentStatusOverdue && r.DaysLate > days {
			days = r.DaysLate
		}
	}
	return days
}
