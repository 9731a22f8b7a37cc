// Package domain holds payment vouchers, the approval records that authorize
// outbound payments.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrVoucherNotFound   = errors.New("payment voucher not found")
	ErrInvalidTransition = errors.New("invalid voucher status transition")
	ErrVoucherImmutable  = errors.New("paid voucher cannot be modified")
)

// Purpose classifies what the voucher pays for.
type Purpose string

const (
	PurposeLoanDisbursement   Purpose = "loan_disbursement"
	PurposeOperationalExpense Purpose = "operational_expense"
	PurposeDividend           Purpose = "dividend"
)

// Status is the approval workflow state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// PaymentVoucher records authorization for an outbound payment. Once paid it
// is immutable.
type PaymentVoucher struct {
	gorm.Model
	VoucherID     string          `gorm:"column:voucher_id;type:varchar(40);uniqueIndex;not null" json:"voucher_id"`
	MemberID      string          `gorm:"column:member_id;type:varchar(40);index" json:"member_id"`
	LoanID        string          `gorm:"column:loan_id;type:varchar(40);index" json:"loan_id"`
	Payee         string          `gorm:"column:payee;type:varchar(120);not null" json:"payee"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(15,2);not null" json:"amount"`
	Purpose       Purpose         `gorm:"column:purpose;type:varchar(30);not null" json:"purpose"`
	Description   string          `gorm:"column:description;type:varchar(255)" json:"description"`
	Status        Status          `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	RequestedBy   string          `gorm:"column:requested_by;type:varchar(40)" json:"requested_by"`
	ApprovedBy    string          `gorm:"column:approved_by;type:varchar(40)" json:"approved_by"`
	ApprovedAt    *time.Time      `gorm:"column:approved_at" json:"approved_at"`
	PaidAt        *time.Time      `gorm:"column:paid_at" json:"paid_at"`
	TransactionID string          `gorm:"column:transaction_id;type:varchar(64)" json:"transaction_id"`
}

func (PaymentVoucher) TableName() string { return "payment_vouchers" }

// Approve records sign-off on a pending voucher.
func (v *PaymentVoucher) Approve(approver string, at time.Time) error {
	if v.Status != StatusPending {
		return ErrInvalidTransition
	}
	v.Status = StatusApproved
	v.ApprovedBy = approver
	v.ApprovedAt = &at
	return nil
}

// MarkPaid finalizes an approved voucher with the settling transaction.
func (v *PaymentVoucher) MarkPaid(transactionID string, at time.Time) error {
	if v.Status != StatusApproved {
		return ErrInvalidTransition
	}
	v.Status = StatusPaid
	v.TransactionID = transactionID
	v.PaidAt = &at
	return nil
}

// Reject closes a pending voucher without payment.
func (v *PaymentVoucher) Reject(approver string, at time.Time) error {
	if v.Status != StatusPending {
		return ErrInvalidTransition
	}
	v.Status = StatusRejected
	v.ApprovedBy = approver
	v.ApprovedAt = &at
	return nil
}

// Cancel withdraws a voucher before payment.
func (v *PaymentVoucher) Cancel() error {
	switch v.Status {
	case StatusPending, StatusApproved:
		v.Status = StatusCancelled
		return nil
	case StatusPaid:
		return ErrVoucherImmutable
	default:
		return ErrInvalidTransition
	}
}

// Repository persists vouchers.
type Repository interface {
	Save(ctx context.Context, tx *gorm.DB, voucher *PaymentVoucher) error
	Get(ctx context.Context, voucherID string) (*PaymentVoucher, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*PaymentVoucher, int64, error)
}
