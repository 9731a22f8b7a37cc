// Package application implements the ledger engine. Post is the only path
// that mutates account balances; every caller goes through it.
package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/pkg/db"
	"github.com/savacoop/saccocore/pkg/metrics"
)

// EventPublisher publishes ledger integration events after commit. Failures
// are logged, never propagated.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// PostCommand describes a single balance mutation.
type PostCommand struct {
	AccountID string
	Amount    decimal.Decimal
	Type      domain.TransactionType
	// TransactionID is the caller-supplied idempotency key. Left empty, the
	// engine generates one; gateway-driven posts must supply theirs so
	// replayed callbacks resolve to the original entry.
	TransactionID string
	Reference     string
	Description   string
}

// Service is the ledger engine.
type Service struct {
	db         db.TxRunner
	accounts   domain.AccountRepository
	txns       domain.TransactionRepository
	publisher  EventPublisher
	eventTopic string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(
	database db.TxRunner,
	accounts domain.AccountRepository,
	txns domain.TransactionRepository,
	publisher EventPublisher,
	eventTopic string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:         database,
		accounts:   accounts,
		txns:       txns,
		publisher:  publisher,
		eventTopic: eventTopic,
		metrics:    m,
		logger:     logger,
	}
}

// Post atomically records a transaction and updates the account. On a
// duplicate idempotency key the original transaction is returned with no
// state change.
func (s *Service) Post(ctx context.Context, cmd PostCommand) (*domain.Transaction, error) {
	var posted *domain.Transaction
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		posted, err = s.PostInTx(ctx, tx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publishPosted(ctx, posted)
	return posted, nil
}

// PostInTx performs the post inside the caller's transaction. Orchestrators
// use this so a disbursement's ledger entry commits or rolls back together
// with the loan state transition.
func (s *Service) PostInTx(ctx context.Context, tx *gorm.DB, cmd PostCommand) (*domain.Transaction, error) {
	amount := cmd.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	txnID := cmd.TransactionID
	if txnID == "" {
		txnID = newTransactionID()
	} else {
		// Idempotency: a replayed reference resolves to the original entry.
		existing, err := s.txns.GetByTransactionID(ctx, txnID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if s.metrics != nil {
				s.metrics.DuplicatePostsTotal.Inc()
			}
			s.logger.InfoContext(ctx, "duplicate ledger post resolved to original",
				"transaction_id", txnID, "account_id", cmd.AccountID)
			return existing, nil
		}
	}

	account, err := s.accounts.GetForUpdate(ctx, tx, cmd.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}

	now := time.Now()
	before := account.Balance
	if cmd.Type.IsCredit() {
		err = account.Credit(amount, now)
	} else {
		err = account.Debit(amount, now)
	}
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		TransactionID: txnID,
		AccountID:     account.AccountID,
		MemberID:      account.MemberID,
		Type:          cmd.Type,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  account.Balance,
		Status:        domain.TxStatusCompleted,
		Reference:     cmd.Reference,
		Description:   cmd.Description,
	}
	if err := txn.Verify(); err != nil {
		s.logger.ErrorContext(ctx, "ledger invariant violated, aborting post",
			"account_id", account.AccountID,
			"balance_before", before.String(),
			"balance_after", account.Balance.String(),
			"amount", amount.String(),
			"type", string(cmd.Type),
		)
		return nil, err
	}
	if err := account.CheckInvariant(); err != nil {
		return nil, err
	}

	if err := s.txns.Save(ctx, tx, txn); err != nil {
		// The unique index is the backstop against two writers generating the
		// same key; surface it as a duplicate rather than a storage error.
		if isDuplicateKeyError(err) {
			return nil, domain.ErrDuplicateTransaction
		}
		return nil, err
	}
	if err := s.accounts.Save(ctx, tx, account); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LedgerPostsTotal.WithLabelValues(string(cmd.Type)).Inc()
	}
	return txn, nil
}

// PlaceHold reserves part of the available balance without recording a
// transaction.
func (s *Service) PlaceHold(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		if err := account.PlaceHold(amount.Round(2)); err != nil {
			return err
		}
		return s.accounts.Save(ctx, tx, account)
	})
}

// ReleaseHold returns held funds to the available balance.
func (s *Service) ReleaseHold(ctx context.Context, accountID string, amount decimal.Decimal) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseHoldInTx(ctx, tx, accountID, amount)
	})
}

// ReleaseHoldInTx releases held funds inside the caller's transaction, so the
// release commits or rolls back together with the state that justified it.
func (s *Service) ReleaseHoldInTx(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return domain.ErrAccountNotFound
	}
	if err := account.ReleaseHold(amount.Round(2)); err != nil {
		return err
	}
	return s.accounts.Save(ctx, tx, account)
}

// GetAccount returns an account by business key.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	return account, nil
}

// GetMemberAccount returns a member's account of the given type.
func (s *Service) GetMemberAccount(ctx context.Context, memberID string, accountType domain.AccountType) (*domain.Account, error) {
	return s.accounts.GetByMemberAndType(ctx, memberID, accountType)
}

// CountDepositsSince counts completed deposits into an account since a cutoff.
// The loan eligibility evaluator uses this for the savings-activity check.
func (s *Service) CountDepositsSince(ctx context.Context, accountID string, since time.Time) (int64, error) {
	return s.txns.CountByTypeSince(ctx, accountID, domain.TxTypeDeposit, since)
}

// ListTransactions pages through an account's ledger history.
func (s *Service) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, int64, error) {
	return s.txns.ListByAccount(ctx, accountID, limit, offset)
}

// GetByReference looks up a transaction by external reference, used to
// correlate late gateway callbacks.
func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return s.txns.GetByReference(ctx, reference)
}

func (s *Service) publishPosted(ctx context.Context, txn *domain.Transaction) {
	if s.publisher == nil || txn == nil {
		return
	}
	err := s.publisher.Publish(ctx, s.eventTopic, txn.AccountID, map[string]any{
		"transaction_id": txn.TransactionID,
		"account_id":     txn.AccountID,
		"member_id":      txn.MemberID,
		"type":           string(txn.Type),
		"amount":         txn.Amount.String(),
		"balance_after":  txn.BalanceAfter.String(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish ledger event",
			"transaction_id", txn.TransactionID, "error", err)
	}
}

func newTransactionID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:18])
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "duplicated key")
}
