package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType classifies ledger entries. The type fixes the sign of the
// balance mutation.
type TransactionType string

const (
	TxTypeDeposit          TransactionType = "deposit"
	TxTypeWithdrawal       TransactionType = "withdrawal"
	TxTypeLoanDisbursement TransactionType = "loan_disbursement"
	TxTypeLoanRepayment    TransactionType = "loan_repayment"
	TxTypeDividendPayout   TransactionType = "dividend_payout"
	TxTypeFee              TransactionType = "fee"
)

// IsCredit reports whether the type increases the account balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxTypeDeposit, TxTypeLoanDisbursement, TxTypeDividendPayout:
		return true
	default:
		return false
	}
}

// Signed returns the amount with the sign implied by the type.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.IsCredit() {
		return amount
	}
	return amount.Neg()
}

// TransactionStatus lifecycle for a ledger entry. Completed entries are
// immutable.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger entry. TransactionID doubles as the
// idempotency key: gateway callbacks replayed with the same reference must not
// post twice.
type Transaction struct {
	gorm.Model
	TransactionID string            `gorm:"column:transaction_id;type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	AccountID     string            `gorm:"column:account_id;type:varchar(40);index;not null" json:"account_id"`
	MemberID      string            `gorm:"column:member_id;type:varchar(40);index" json:"member_id"`
	Type          TransactionType   `gorm:"column:type;type:varchar(30);not null" json:"type"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:decimal(15,2);not null" json:"amount"`
	BalanceBefore decimal.Decimal   `gorm:"column:balance_before;type:decimal(15,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal   `gorm:"column:balance_after;type:decimal(15,2);not null" json:"balance_after"`
	Status        TransactionStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Reference     string            `gorm:"column:reference;type:varchar(100);index" json:"reference"`
	Description   string            `gorm:"column:description;type:varchar(255)" json:"description"`
}

func (Transaction) TableName() string { return "transactions" }

// Verify checks the recorded before/after pair against the signed amount.
func (t *Transaction) Verify() error {
	expected := t.BalanceBefore.Add(t.Type.Signed(t.Amount))
	if !t.BalanceAfter.Equal(expected) {
		return ErrInvariantViolation
	}
	return nil
}
