// Package domain models mobile money deposit requests and the gateway
// boundary. The core never sees gateway wire formats, only GatewayResult.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound    = errors.New("payment request not found")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Status is the payment request lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// PaymentRequest tracks one push-to-pay deposit attempt. Reference is the
// internal correlation key handed to the gateway; CheckoutRequestID comes back
// from the gateway at push time and ExternalTransactionID with the callback.
type PaymentRequest struct {
	gorm.Model
	Reference             string          `gorm:"column:reference;type:varchar(40);uniqueIndex;not null" json:"reference"`
	MemberID              string          `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	AccountID             string          `gorm:"column:account_id;type:varchar(40);index;not null" json:"account_id"`
	Amount                decimal.Decimal `gorm:"column:amount;type:decimal(15,2);not null" json:"amount"`
	PayerIdentifier       string          `gorm:"column:payer_identifier;type:varchar(20);not null" json:"payer_identifier"`
	CheckoutRequestID     string          `gorm:"column:checkout_request_id;type:varchar(64);index" json:"checkout_request_id"`
	ExternalTransactionID string          `gorm:"column:external_transaction_id;type:varchar(64);index" json:"external_transaction_id"`
	Status                Status          `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	Attempts              int             `gorm:"column:attempts;not null;default:0" json:"attempts"`
	FailureReason         string          `gorm:"column:failure_reason;type:varchar(255)" json:"failure_reason"`
	CompletedAt           *time.Time      `gorm:"column:completed_at" json:"completed_at"`
}

func (PaymentRequest) TableName() string { return "payment_requests" }

// Complete records the confirming external transaction. A late callback after
// a retry-budget failure still completes the request; the funds arrived.
func (p *PaymentRequest) Complete(externalTransactionID string, at time.Time) {
	p.Status = StatusCompleted
	p.ExternalTransactionID = externalTransactionID
	p.FailureReason = ""
	p.CompletedAt = &at
}

// Fail records why the request did not settle.
func (p *PaymentRequest) Fail(reason string) {
	p.Status = StatusFailed
	p.FailureReason = reason
}

// GatewayResult is the normalized callback payload handed to the deposit
// processor. The HTTP layer owns parsing the gateway's wire format.
type GatewayResult struct {
	Reference             string
	CheckoutRequestID     string
	ExternalTransactionID string
	Amount                decimal.Decimal
	PayerIdentifier       string
	Succeeded             bool
	FailureReason         string
}

// Gateway pushes a payment prompt to the payer's handset. Push returns the
// gateway's checkout request id; settlement arrives later via callback.
type Gateway interface {
	Push(ctx context.Context, reference, payerIdentifier string, amount decimal.Decimal) (checkoutRequestID string, err error)
}

// Repository persists payment requests.
type Repository interface {
	Save(ctx context.Context, tx *gorm.DB, request *PaymentRequest) error
	GetByReference(ctx context.Context, reference string) (*PaymentRequest, error)
	GetByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*PaymentRequest, error)
	GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*PaymentRequest, error)
	ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*PaymentRequest, int64, error)
}
