package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTransactionTypeSign(t *testing.T) {
	credits := []TransactionType{TxTypeDeposit, TxTypeLoanDisbursement, TxTypeDividendPayout}
	debits := []TransactionType{TxTypeWithdrawal, TxTypeLoanRepayment, TxTypeFee}

	amount := decimal.NewFromInt(100)
	for _, txType := range credits {
		assert.True(t, txType.IsCredit(), "%s should be a credit", txType)
		assert.True(t, txType.Signed(amount).Equal(amount))
	}
	for _, txType := range debits {
		assert.False(t, txType.IsCredit(), "%s should be a debit", txType)
		assert.True(t, txType.Signed(amount).Equal(amount.Neg()))
	}
}

func TestTransactionVerify(t *testing.T) {
	txn := &Transaction{
		TransactionID: "TXN-1",
		AccountID:     "ACC-1",
		Type:          TxTypeDeposit,
		Amount:        decimal.NewFromInt(1000),
		BalanceBefore: decimal.NewFromInt(500),
		BalanceAfter:  decimal.NewFromInt(1500),
		Status:        TxStatusCompleted,
	}
	assert.NoError(t, txn.Verify())

	txn.BalanceAfter = decimal.NewFromInt(1400)
	assert.ErrorIs(t, txn.Verify(), ErrInvariantViolation)

	withdrawal := &Transaction{
		Type:          TxTypeWithdrawal,
		Amount:        decimal.NewFromInt(200),
		BalanceBefore: decimal.NewFromInt(1500),
		BalanceAfter:  decimal.NewFromInt(1300),
	}
	assert.NoError(t, withdrawal.Verify())
}
