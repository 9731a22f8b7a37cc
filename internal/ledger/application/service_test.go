package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/ledger/domain"
)

type fakeAccountRepo struct {
	accounts map[string]*domain.Account
	saves    int
}

func newFakeAccountRepo(accounts ...*domain.Account) *fakeAccountRepo {
	repo := &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
	for _, account := range accounts {
		repo.accounts[account.AccountID] = account
	}
	return repo
}

func (f *fakeAccountRepo) Save(_ context.Context, _ *gorm.DB, account *domain.Account) error {
	f.accounts[account.AccountID] = account
	f.saves++
	return nil
}

func (f *fakeAccountRepo) Get(_ context.Context, accountID string) (*domain.Account, error) {
	return f.accounts[accountID], nil
}

func (f *fakeAccountRepo) GetForUpdate(_ context.Context, _ *gorm.DB, accountID string) (*domain.Account, error) {
	return f.accounts[accountID], nil
}

func (f *fakeAccountRepo) GetByMemberAndType(_ context.Context, memberID string, accountType domain.AccountType) (*domain.Account, error) {
	for _, account := range f.accounts {
		if account.MemberID == memberID && account.AccountType == accountType {
			return account, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) ListByMember(_ context.Context, memberID string) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, account := range f.accounts {
		if account.MemberID == memberID {
			out = append(out, account)
		}
	}
	return out, nil
}

type fakeTxnRepo struct {
	byID    map[string]*domain.Transaction
	saveErr error
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{byID: make(map[string]*domain.Transaction)}
}

func (f *fakeTxnRepo) Save(_ context.Context, _ *gorm.DB, txn *domain.Transaction) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.byID[txn.TransactionID] = txn
	return nil
}

func (f *fakeTxnRepo) GetByTransactionID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	return f.byID[transactionID], nil
}

func (f *fakeTxnRepo) GetByReference(_ context.Context, reference string) (*domain.Transaction, error) {
	for _, txn := range f.byID {
		if txn.Reference == reference {
			return txn, nil
		}
	}
	return nil, nil
}

func (f *fakeTxnRepo) ListByAccount(_ context.Context, accountID string, _, _ int) ([]*domain.Transaction, int64, error) {
	var out []*domain.Transaction
	for _, txn := range f.byID {
		if txn.AccountID == accountID {
			out = append(out, txn)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeTxnRepo) CountByTypeSince(_ context.Context, accountID string, txType domain.TransactionType, _ time.Time) (int64, error) {
	var count int64
	for _, txn := range f.byID {
		if txn.AccountID == accountID && txn.Type == txType {
			count++
		}
	}
	return count, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

func testService(accounts *fakeAccountRepo, txns *fakeTxnRepo) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(stubTxRunner{}, accounts, txns, nil, "", nil, logger)
}

func testAccount(balance string) *domain.Account {
	account := domain.NewAccount("ACC-1", "MBR-1", domain.AccountTypeShareDeposits)
	account.Balance = decimal.RequireFromString(balance)
	account.AvailableBalance = decimal.RequireFromString(balance)
	return account
}

func TestPostInTxDepositRecordsBeforeAndAfter(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("500.00"))
	txns := newFakeTxnRepo()
	svc := testService(accounts, txns)

	txn, err := svc.PostInTx(context.Background(), nil, PostCommand{
		AccountID: "ACC-1",
		Amount:    decimal.NewFromInt(1000),
		Type:      domain.TxTypeDeposit,
	})
	require.NoError(t, err)

	assert.Equal(t, "500.00", txn.BalanceBefore.StringFixed(2))
	assert.Equal(t, "1500.00", txn.BalanceAfter.StringFixed(2))
	assert.Equal(t, domain.TxStatusCompleted, txn.Status)
	assert.NoError(t, txn.Verify())
	assert.Equal(t, "1500.00", accounts.accounts["ACC-1"].Balance.StringFixed(2))
	assert.NotEmpty(t, txn.TransactionID)
}

func TestPostInTxDuplicateKeyReturnsOriginal(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("500.00"))
	txns := newFakeTxnRepo()
	svc := testService(accounts, txns)

	cmd := PostCommand{
		AccountID:     "ACC-1",
		Amount:        decimal.NewFromInt(1000),
		Type:          domain.TxTypeDeposit,
		TransactionID: "MPESA-ABC123",
	}
	first, err := svc.PostInTx(context.Background(), nil, cmd)
	require.NoError(t, err)

	second, err := svc.PostInTx(context.Background(), nil, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, first.BalanceAfter.Equal(second.BalanceAfter))
	// Exactly one balance mutation.
	assert.Equal(t, "1500.00", accounts.accounts["ACC-1"].Balance.StringFixed(2))
	assert.Len(t, txns.byID, 1)
}

func TestPostInTxRejectsNonPositiveAmount(t *testing.T) {
	svc := testService(newFakeAccountRepo(testAccount("500.00")), newFakeTxnRepo())

	_, err := svc.PostInTx(context.Background(), nil, PostCommand{
		AccountID: "ACC-1",
		Amount:    decimal.Zero,
		Type:      domain.TxTypeDeposit,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPostInTxUnknownAccount(t *testing.T) {
	svc := testService(newFakeAccountRepo(), newFakeTxnRepo())

	_, err := svc.PostInTx(context.Background(), nil, PostCommand{
		AccountID: "ACC-MISSING",
		Amount:    decimal.NewFromInt(10),
		Type:      domain.TxTypeDeposit,
	})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPostInTxInsufficientFunds(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("100.00"))
	svc := testService(accounts, newFakeTxnRepo())

	_, err := svc.PostInTx(context.Background(), nil, PostCommand{
		AccountID: "ACC-1",
		Amount:    decimal.NewFromInt(500),
		Type:      domain.TxTypeWithdrawal,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "100.00", accounts.accounts["ACC-1"].Balance.StringFixed(2))
}

func TestPostInTxSurfacesDuplicateIndexViolation(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("500.00"))
	txns := newFakeTxnRepo()
	txns.saveErr = errors.New("Error 1062 (23000): Duplicate entry 'TXN-X' for key 'transactions.transaction_id'")
	svc := testService(accounts, txns)

	_, err := svc.PostInTx(context.Background(), nil, PostCommand{
		AccountID: "ACC-1",
		Amount:    decimal.NewFromInt(10),
		Type:      domain.TxTypeDeposit,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)
}

func TestPlaceAndReleaseHold(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("1000.00"))
	svc := testService(accounts, newFakeTxnRepo())

	require.NoError(t, svc.PlaceHold(context.Background(), "ACC-1", decimal.NewFromInt(600)))
	account := accounts.accounts["ACC-1"]
	assert.Equal(t, "1000.00", account.Balance.StringFixed(2))
	assert.Equal(t, "400.00", account.AvailableBalance.StringFixed(2))

	require.NoError(t, svc.ReleaseHold(context.Background(), "ACC-1", decimal.NewFromInt(600)))
	assert.Equal(t, "1000.00", account.AvailableBalance.StringFixed(2))
}

// ReleaseHoldInTx rides the caller's transaction, e.g. the one that completes
// a loan and frees its guarantors.
func TestReleaseHoldInTxUsesCallerTransaction(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("1000.00"))
	svc := testService(accounts, newFakeTxnRepo())

	require.NoError(t, svc.PlaceHold(context.Background(), "ACC-1", decimal.NewFromInt(250)))
	saves := accounts.saves

	require.NoError(t, svc.ReleaseHoldInTx(context.Background(), nil, "ACC-1", decimal.NewFromInt(250)))
	assert.Equal(t, "1000.00", accounts.accounts["ACC-1"].AvailableBalance.StringFixed(2))
	assert.Equal(t, saves+1, accounts.saves)

	err := svc.ReleaseHoldInTx(context.Background(), nil, "ACC-MISSING", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestPostSequenceConservesBalance(t *testing.T) {
	accounts := newFakeAccountRepo(testAccount("0.00"))
	txns := newFakeTxnRepo()
	svc := testService(accounts, txns)

	posts := []struct {
		amount string
		txType domain.TransactionType
	}{
		{"1000.00", domain.TxTypeDeposit},
		{"250.50", domain.TxTypeWithdrawal},
		{"5000.00", domain.TxTypeLoanDisbursement},
		{"4442.44", domain.TxTypeLoanRepayment},
		{"120.75", domain.TxTypeDividendPayout},
	}

	expected := decimal.Zero
	for _, post := range posts {
		amount := decimal.RequireFromString(post.amount)
		txn, err := svc.PostInTx(context.Background(), nil, PostCommand{
			AccountID: "ACC-1",
			Amount:    amount,
			Type:      post.txType,
		})
		require.NoError(t, err)
		expected = expected.Add(post.txType.Signed(amount))
		assert.True(t, txn.BalanceAfter.Equal(expected))
	}
	assert.True(t, accounts.accounts["ACC-1"].Balance.Equal(expected))
}
