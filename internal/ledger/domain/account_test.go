package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeAccount(balance string) *Account {
	account := NewAccount("ACC-1", "MBR-1", AccountTypeShareDeposits)
	account.Balance = decimal.RequireFromString(balance)
	account.AvailableBalance = decimal.RequireFromString(balance)
	return account
}

func TestAccountCredit(t *testing.T) {
	account := activeAccount("500.00")
	now := time.Now()

	require.NoError(t, account.Credit(decimal.NewFromInt(1000), now))
	assert.Equal(t, "1500.00", account.Balance.StringFixed(2))
	assert.Equal(t, "1500.00", account.AvailableBalance.StringFixed(2))
	assert.NotNil(t, account.LastTransactionAt)
}

func TestAccountDebit(t *testing.T) {
	account := activeAccount("1500.00")

	require.NoError(t, account.Debit(decimal.NewFromInt(400), time.Now()))
	assert.Equal(t, "1100.00", account.Balance.StringFixed(2))

	err := account.Debit(decimal.NewFromInt(2000), time.Now())
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "1100.00", account.Balance.StringFixed(2))
}

func TestAccountRejectsNonPositiveAmounts(t *testing.T) {
	account := activeAccount("100.00")

	assert.ErrorIs(t, account.Credit(decimal.Zero, time.Now()), ErrInvalidAmount)
	assert.ErrorIs(t, account.Debit(decimal.NewFromInt(-5), time.Now()), ErrInvalidAmount)
	assert.ErrorIs(t, account.PlaceHold(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, account.ReleaseHold(decimal.Zero), ErrInvalidAmount)
}

func TestAccountInactiveRefusesMutation(t *testing.T) {
	account := activeAccount("100.00")
	account.Status = AccountStatusFrozen

	assert.ErrorIs(t, account.Credit(decimal.NewFromInt(10), time.Now()), ErrAccountInactive)
	assert.ErrorIs(t, account.Debit(decimal.NewFromInt(10), time.Now()), ErrAccountInactive)
	assert.ErrorIs(t, account.PlaceHold(decimal.NewFromInt(10)), ErrAccountInactive)
}

func TestAccountHolds(t *testing.T) {
	account := activeAccount("1000.00")

	require.NoError(t, account.PlaceHold(decimal.NewFromInt(600)))
	assert.Equal(t, "1000.00", account.Balance.StringFixed(2))
	assert.Equal(t, "400.00", account.AvailableBalance.StringFixed(2))

	// Held funds cannot be spent.
	assert.ErrorIs(t, account.Debit(decimal.NewFromInt(500), time.Now()), ErrInsufficientFunds)
	require.NoError(t, account.Debit(decimal.NewFromInt(400), time.Now()))
	assert.Equal(t, "600.00", account.Balance.StringFixed(2))
	assert.True(t, account.AvailableBalance.IsZero())

	require.NoError(t, account.ReleaseHold(decimal.NewFromInt(600)))
	assert.Equal(t, "600.00", account.AvailableBalance.StringFixed(2))
	require.NoError(t, account.CheckInvariant())
}

func TestAccountHoldExceedsAvailable(t *testing.T) {
	account := activeAccount("1000.00")
	assert.ErrorIs(t, account.PlaceHold(decimal.NewFromInt(1001)), ErrHoldExceedsAvailable)
}

func TestAccountReleaseCappedAtBalance(t *testing.T) {
	account := activeAccount("1000.00")
	require.NoError(t, account.PlaceHold(decimal.NewFromInt(300)))

	assert.ErrorIs(t, account.ReleaseHold(decimal.NewFromInt(301)), ErrInvariantViolation)
	require.NoError(t, account.ReleaseHold(decimal.NewFromInt(300)))
	require.NoError(t, account.CheckInvariant())
}
