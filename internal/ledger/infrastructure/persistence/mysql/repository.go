// Package mysql implements the ledger repositories on GORM.
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/savacoop/saccocore/internal/ledger/domain"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Save(ctx context.Context, tx *gorm.DB, account *domain.Account) error {
	conn := r.conn(tx)
	return conn.WithContext(ctx).Save(account).Error
}

func (r *AccountRepository) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetForUpdate takes a row lock on the account so concurrent posts to the
// same account serialize. Must run inside a transaction.
func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*domain.Account, error) {
	var account domain.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByMemberAndType(ctx context.Context, memberID string, accountType domain.AccountType) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND account_type = ?", memberID, accountType).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) ListByMember(ctx context.Context, memberID string) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *gorm.DB, transaction *domain.Transaction) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Create(transaction).Error
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, int64, error) {
	var txns []*domain.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Transaction{}).Where("account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&txns).Error
	return txns, total, err
}

func (r *TransactionRepository) CountByTypeSince(ctx context.Context, accountID string, txType domain.TransactionType, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Transaction{}).
		Where("account_id = ? AND type = ? AND status = ? AND created_at >= ?",
			accountID, txType, domain.TxStatusCompleted, since).
		Count(&count).Error
	return count, err
}
