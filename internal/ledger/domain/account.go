// Package domain holds the ledger entities. Accounts are mutated only through
// the ledger service; every balance change is recorded as a Transaction with
// the balance before and after.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountInactive      = errors.New("account is not active")
	ErrInsufficientFunds    = errors.New("insufficient available balance")
	ErrDuplicateTransaction = errors.New("duplicate transaction reference")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvariantViolation   = errors.New("ledger invariant violation")
	ErrHoldExceedsAvailable = errors.New("hold exceeds available balance")
)

// AccountType distinguishes membership equity from savings-like deposits.
type AccountType string

const (
	AccountTypeShareCapital  AccountType = "share_capital"
	AccountTypeShareDeposits AccountType = "share_deposits"
)

// AccountStatus lifecycle for an account.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Account is a member's money container. AvailableBalance is Balance minus
// active holds and never exceeds Balance.
type Account struct {
	gorm.Model
	AccountID         string          `gorm:"column:account_id;type:varchar(40);uniqueIndex;not null" json:"account_id"`
	MemberID          string          `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	AccountType       AccountType     `gorm:"column:account_type;type:varchar(20);not null" json:"account_type"`
	Balance           decimal.Decimal `gorm:"column:balance;type:decimal(15,2);not null;default:0" json:"balance"`
	AvailableBalance  decimal.Decimal `gorm:"column:available_balance;type:decimal(15,2);not null;default:0" json:"available_balance"`
	Status            AccountStatus   `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	LastTransactionAt *time.Time      `gorm:"column:last_transaction_at" json:"last_transaction_at"`
}

func (Account) TableName() string { return "accounts" }

// NewAccount opens a zero-balance active account for a member.
func NewAccount(accountID, memberID string, accountType AccountType) *Account {
	return &Account{
		AccountID:        accountID,
		MemberID:         memberID,
		AccountType:      accountType,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		Status:           AccountStatusActive,
	}
}

// Credit increases both balances.
func (a *Account) Credit(amount decimal.Decimal, at time.Time) error {
	if a.Status != AccountStatusActive {
		return ErrAccountInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	a.Balance = a.Balance.Add(amount)
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	a.LastTransactionAt = &at
	return nil
}

// Debit decreases both balances, rejecting overdrafts against the available
// balance so held funds cannot be spent.
func (a *Account) Debit(amount decimal.Decimal, at time.Time) error {
	if a.Status != AccountStatusActive {
		return ErrAccountInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.AvailableBalance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.LastTransactionAt = &at
	return nil
}

// PlaceHold reserves part of the available balance without moving money,
// e.g. for a guarantor commitment.
func (a *Account) PlaceHold(amount decimal.Decimal) error {
	if a.Status != AccountStatusActive {
		return ErrAccountInactive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.AvailableBalance.LessThan(amount) {
		return ErrHoldExceedsAvailable
	}
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	return nil
}

// ReleaseHold returns previously held funds to the available balance, capped
// so available never exceeds balance.
func (a *Account) ReleaseHold(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	released := a.AvailableBalance.Add(amount)
	if released.GreaterThan(a.Balance) {
		return ErrInvariantViolation
	}
	a.AvailableBalance = released
	return nil
}

// CheckInvariant verifies available <= balance.
func (a *Account) CheckInvariant() error {
	if a.AvailableBalance.GreaterThan(a.Balance) {
		return ErrInvariantViolation
	}
	return nil
}
