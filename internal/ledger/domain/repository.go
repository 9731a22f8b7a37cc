package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AccountRepository persists accounts. GetForUpdate must take a row lock so
// concurrent posts to the same account serialize; unrelated accounts proceed
// in parallel.
type AccountRepository interface {
	Save(ctx context.Context, tx *gorm.DB, account *Account) error
	Get(ctx context.Context, accountID string) (*Account, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, accountID string) (*Account, error)
	GetByMemberAndType(ctx context.Context, memberID string, accountType AccountType) (*Account, error)
	ListByMember(ctx context.Context, memberID string) ([]*Account, error)
}

// TransactionRepository persists ledger entries.
type TransactionRepository interface {
	Save(ctx context.Context, tx *gorm.DB, transaction *Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, int64, error)
	CountByTypeSince(ctx context.Context, accountID string, txType TransactionType, since time.Time) (int64, error)
}
