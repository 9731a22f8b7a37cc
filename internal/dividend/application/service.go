// Package application implements yearly dividend calculation, approval and
// batched distribution.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/dividend/domain"
	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	memberdomain "github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/pkg/db"
	"github.com/savacoop/saccocore/pkg/metrics"
)

// Ledger is the posting surface the dividend service needs.
type Ledger interface {
	PostInTx(ctx context.Context, tx *gorm.DB, cmd ledgerapp.PostCommand) (*ledgerdomain.Transaction, error)
	GetMemberAccount(ctx context.Context, memberID string, accountType ledgerdomain.AccountType) (*ledgerdomain.Account, error)
}

// Notifier queues a human-readable message for a member. Best effort.
type Notifier interface {
	Notify(ctx context.Context, memberID, title, message, channel string) error
}

// Service orchestrates the dividend lifecycle. Distribution is resumable:
// rerunning Distribute picks up the remaining pending rows.
type Service struct {
	db        db.TxRunner
	dividends domain.Repository
	members   memberdomain.Repository
	ledger    Ledger
	notifier  Notifier
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(database db.TxRunner, dividends domain.Repository, members memberdomain.Repository, ledger Ledger, notifier Notifier, batchSize int, m *metrics.Metrics, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		db:        database,
		dividends: dividends,
		members:   members,
		ledger:    ledger,
		notifier:  notifier,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

const memberPageSize = 500

// Calculate apportions the declared pool over active members in proportion to
// their share capital balance. Members with zero shares receive no row.
func (s *Service) Calculate(ctx context.Context, year int, pool decimal.Decimal) (*domain.Dividend, error) {
	if !pool.IsPositive() {
		return nil, fmt.Errorf("dividend pool must be positive, got %s", pool)
	}
	existing, err := s.dividends.GetDividendByYear(ctx, year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyCalculated
	}

	holdings, totalShares, err := s.collectShareHoldings(ctx)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 || !totalShares.IsPositive() {
		return nil, domain.ErrEmptyShareBase
	}

	pool = pool.Round(2)
	dividend := &domain.Dividend{
		DividendID:     newDividendID(),
		Year:           year,
		TotalDividends: pool,
		Rate:           pool.Div(totalShares).Round(4),
		Status:         domain.StatusCalculated,
	}

	rows := domain.Apportion(dividend.DividendID, pool, totalShares, holdings)

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.dividends.SaveDividend(ctx, tx, dividend); err != nil {
			return err
		}
		return s.dividends.SaveMemberDividends(ctx, tx, rows)
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "dividend calculated",
		"dividend_id", dividend.DividendID,
		"year", year,
		"pool", pool.String(),
		"members", len(rows),
	)
	return dividend, nil
}

func (s *Service) collectShareHoldings(ctx context.Context) ([]domain.ShareHolding, decimal.Decimal, error) {
	var holdings []domain.ShareHolding
	total := decimal.Zero
	for offset := 0; ; offset += memberPageSize {
		members, err := s.members.ListActive(ctx, memberPageSize, offset)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if len(members) == 0 {
			break
		}
		for _, m := range members {
			account, err := s.ledger.GetMemberAccount(ctx, m.MemberID, ledgerdomain.AccountTypeShareCapital)
			if err != nil {
				return nil, decimal.Zero, err
			}
			if account == nil || !account.Balance.IsPositive() {
				continue
			}
			holdings = append(holdings, domain.ShareHolding{MemberID: m.MemberID, Shares: account.Balance})
			total = total.Add(account.Balance)
		}
		if len(members) < memberPageSize {
			break
		}
	}
	return holdings, total, nil
}

// Approve records board sign-off on a calculated dividend.
func (s *Service) Approve(ctx context.Context, dividendID, approver string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		dividend, err := s.dividends.GetDividend(ctx, dividendID)
		if err != nil {
			return err
		}
		if dividend == nil {
			return domain.ErrDividendNotFound
		}
		if err := dividend.Approve(approver); err != nil {
			return err
		}
		return s.dividends.SaveDividend(ctx, tx, dividend)
	})
}

// Distribute pays pending member rows in batches, crediting each member's
// share deposits account. Each batch commits independently so a failure
// partway leaves the remainder pending for the next run.
func (s *Service) Distribute(ctx context.Context, dividendID string) error {
	dividend, err := s.dividends.GetDividend(ctx, dividendID)
	if err != nil {
		return err
	}
	if dividend == nil {
		return domain.ErrDividendNotFound
	}
	if dividend.Status != domain.StatusApproved {
		return domain.ErrInvalidTransition
	}

	for {
		rows, err := s.dividends.ListPending(ctx, dividendID, s.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}
		paid, err := s.distributeBatch(ctx, dividend, rows)
		for _, row := range paid {
			message := fmt.Sprintf("Your %d dividend of %s has been credited to your deposits account.",
				dividend.Year, row.DividendAmount.StringFixed(2))
			if nerr := s.notifier.Notify(ctx, row.MemberID, "Dividend paid", message, "sms"); nerr != nil {
				s.logger.WarnContext(ctx, "failed to queue dividend notification",
					"member_id", row.MemberID, "error", nerr)
			}
		}
		if err != nil {
			return err
		}
	}

	pending, err := s.dividends.CountPending(ctx, dividendID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("dividend %s still has %d pending payouts", dividendID, pending)
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.dividends.GetDividend(ctx, dividendID)
		if err != nil {
			return err
		}
		if err := current.MarkDistributed(time.Now()); err != nil {
			return err
		}
		return s.dividends.SaveDividend(ctx, tx, current)
	})
}

func (s *Service) distributeBatch(ctx context.Context, dividend *domain.Dividend, rows []*domain.MemberDividend) ([]*domain.MemberDividend, error) {
	paid := make([]*domain.MemberDividend, 0, len(rows))
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, row := range rows {
			account, err := s.ledger.GetMemberAccount(ctx, row.MemberID, ledgerdomain.AccountTypeShareDeposits)
			if err != nil {
				return err
			}
			if account == nil {
				return fmt.Errorf("member %s has no deposits account", row.MemberID)
			}
			// Deterministic key so a replay after a crash lands on the
			// ledger's duplicate short-circuit instead of double-paying.
			posted, err := s.ledger.PostInTx(ctx, tx, ledgerapp.PostCommand{
				AccountID:     account.AccountID,
				Amount:        row.DividendAmount,
				Type:          ledgerdomain.TxTypeDividendPayout,
				TransactionID: fmt.Sprintf("DIV-%s-%s", dividend.DividendID, row.MemberID),
				Reference:     dividend.DividendID,
				Description:   fmt.Sprintf("Dividend payout for %d", dividend.Year),
			})
			if err != nil {
				return err
			}
			now := time.Now()
			row.Status = domain.MemberDividendPaid
			row.TransactionID = posted.TransactionID
			row.PaidAt = &now
			if err := s.dividends.SaveMemberDividend(ctx, tx, row); err != nil {
				return err
			}
			paid = append(paid, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DividendsDistributedTotal.Add(float64(len(paid)))
	}
	s.logger.InfoContext(ctx, "dividend batch distributed",
		"dividend_id", dividend.DividendID,
		"batch_size", len(paid),
	)
	return paid, nil
}

// Get fetches a dividend with its member rows.
func (s *Service) Get(ctx context.Context, dividendID string) (*domain.Dividend, []*domain.MemberDividend, error) {
	dividend, err := s.dividends.GetDividend(ctx, dividendID)
	if err != nil {
		return nil, nil, err
	}
	if dividend == nil {
		return nil, nil, domain.ErrDividendNotFound
	}
	rows, err := s.dividends.ListByDividend(ctx, dividendID)
	if err != nil {
		return nil, nil, err
	}
	return dividend, rows, nil
}

func newDividendID() string {
	return "DIV-" + strings.ToUpper(uuid.NewString()[:12])
}
