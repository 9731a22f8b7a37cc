// Package application implements the payment voucher approval workflow.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/voucher/domain"
	"github.com/savacoop/saccocore/pkg/db"
)

// Service handles voucher write operations.
type Service struct {
	db       db.TxRunner
	vouchers domain.Repository
	logger   *slog.Logger
}

func NewService(database db.TxRunner, vouchers domain.Repository, logger *slog.Logger) *Service {
	return &Service{db: database, vouchers: vouchers, logger: logger}
}

// CreateCommand carries a validated voucher request.
type CreateCommand struct {
	MemberID    string
	LoanID      string
	Payee       string
	Amount      decimal.Decimal
	Purpose     domain.Purpose
	Description string
	RequestedBy string
}

// Create records a pending voucher awaiting approval.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.PaymentVoucher, error) {
	voucher := &domain.PaymentVoucher{
		VoucherID:   newVoucherID(),
		MemberID:    cmd.MemberID,
		LoanID:      cmd.LoanID,
		Payee:       cmd.Payee,
		Amount:      cmd.Amount.Round(2),
		Purpose:     cmd.Purpose,
		Description: cmd.Description,
		Status:      domain.StatusPending,
		RequestedBy: cmd.RequestedBy,
	}
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.vouchers.Save(ctx, tx, voucher)
	}); err != nil {
		return nil, err
	}
	return voucher, nil
}

// CreatePaidForLoanInTx writes the voucher that accompanies a loan
// disbursement, already in paid terminal state, inside the caller's
// transaction. Implements the loan module's Vouchers collaborator.
func (s *Service) CreatePaidForLoanInTx(ctx context.Context, tx *gorm.DB, loanID, memberID string, amount decimal.Decimal, operator string) error {
	now := time.Now()
	voucher := &domain.PaymentVoucher{
		VoucherID:   newVoucherID(),
		MemberID:    memberID,
		LoanID:      loanID,
		Payee:       memberID,
		Amount:      amount.Round(2),
		Purpose:     domain.PurposeLoanDisbursement,
		Description: fmt.Sprintf("Disbursement of loan %s", loanID),
		Status:      domain.StatusPaid,
		RequestedBy: operator,
		ApprovedBy:  operator,
		ApprovedAt:  &now,
		PaidAt:      &now,
	}
	return s.vouchers.Save(ctx, tx, voucher)
}

// Approve signs off a pending voucher.
func (s *Service) Approve(ctx context.Context, voucherID, approver string) error {
	return s.transition(ctx, voucherID, func(v *domain.PaymentVoucher) error {
		return v.Approve(approver, time.Now())
	})
}

// MarkPaid finalizes an approved voucher with its settling transaction.
func (s *Service) MarkPaid(ctx context.Context, voucherID, transactionID string) error {
	return s.transition(ctx, voucherID, func(v *domain.PaymentVoucher) error {
		return v.MarkPaid(transactionID, time.Now())
	})
}

// Reject declines a pending voucher.
func (s *Service) Reject(ctx context.Context, voucherID, approver string) error {
	return s.transition(ctx, voucherID, func(v *domain.PaymentVoucher) error {
		return v.Reject(approver, time.Now())
	})
}

// Cancel withdraws a voucher before payment.
func (s *Service) Cancel(ctx context.Context, voucherID string) error {
	return s.transition(ctx, voucherID, (*domain.PaymentVoucher).Cancel)
}

func (s *Service) transition(ctx context.Context, voucherID string, fn func(*domain.PaymentVoucher) error) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		voucher, err := s.vouchers.Get(ctx, voucherID)
		if err != nil {
			return err
		}
		if voucher == nil {
			return domain.ErrVoucherNotFound
		}
		if err := fn(voucher); err != nil {
			return err
		}
		return s.vouchers.Save(ctx, tx, voucher)
	})
}

// Get fetches a voucher by business key.
func (s *Service) Get(ctx context.Context, voucherID string) (*domain.PaymentVoucher, error) {
	voucher, err := s.vouchers.Get(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	if voucher == nil {
		return nil, domain.ErrVoucherNotFound
	}
	return voucher, nil
}

// ListByStatus pages vouchers in a workflow state.
func (s *Service) ListByStatus(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.PaymentVoucher, int64, error) {
	return s.vouchers.ListByStatus(ctx, status, limit, offset)
}

func newVoucherID() string {
	return "VCH-" + strings.ToUpper(uuid.NewString()[:12])
}
