// Package application implements member onboarding and lifecycle operations.
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

	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/pkg/db"
)

// RegisterCommand carries validated onboarding input.
type RegisterCommand struct {
	MemberNumber  string
	FirstName     string
	LastName      string
	NationalID    string
	Phone         string
	Email         string
	Occupation    string
	Employer      string
	MonthlyIncome decimal.Decimal
	PhotoPath     string
}

// Service handles member write operations. Registration opens the member's
// share capital and share deposits accounts in the same transaction.
type Service struct {
	db       db.TxRunner
	members  domain.Repository
	accounts ledgerdomain.AccountRepository
	logger   *slog.Logger
}

func NewService(database db.TxRunner, members domain.Repository, accounts ledgerdomain.AccountRepository, logger *slog.Logger) *Service {
	return &Service{db: database, members: members, accounts: accounts, logger: logger}
}

// Register creates an inactive member with both account types opened.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*domain.Member, error) {
	member := &domain.Member{
		MemberID:      "MBR-" + strings.ToUpper(uuid.NewString()[:12]),
		MemberNumber:  cmd.MemberNumber,
		FirstName:     cmd.FirstName,
		LastName:      cmd.LastName,
		NationalID:    cmd.NationalID,
		Phone:         cmd.Phone,
		Email:         cmd.Email,
		Occupation:    cmd.Occupation,
		Employer:      cmd.Employer,
		MonthlyIncome: cmd.MonthlyIncome.Round(2),
		Status:        domain.StatusInactive,
		JoinedAt:      time.Now(),
		PhotoPath:     cmd.PhotoPath,
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.members.Save(ctx, tx, member); err != nil {
			return err
		}
		for _, accountType := range []ledgerdomain.AccountType{
			ledgerdomain.AccountTypeShareCapital,
			ledgerdomain.AccountTypeShareDeposits,
		} {
			account := ledgerdomain.NewAccount(newAccountID(accountType), member.MemberID, accountType)
			if err := s.accounts.Save(ctx, tx, account); err != nil {
				return fmt.Errorf("failed to open %s account: %w", accountType, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member registered",
		"member_id", member.MemberID, "member_number", member.MemberNumber)
	return member, nil
}

// Activate transitions a member to active.
func (s *Service) Activate(ctx context.Context, memberID string) error {
	return s.transition(ctx, memberID, (*domain.Member).Activate)
}

// Suspend transitions a member to suspended.
func (s *Service) Suspend(ctx context.Context, memberID string) error {
	return s.transition(ctx, memberID, (*domain.Member).Suspend)
}

// Terminate ends a membership.
func (s *Service) Terminate(ctx context.Context, memberID string) error {
	return s.transition(ctx, memberID, (*domain.Member).Terminate)
}

func (s *Service) transition(ctx context.Context, memberID string, fn func(*domain.Member) error) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		member, err := s.members.Get(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrMemberNotFound
		}
		if err := fn(member); err != nil {
			return err
		}
		return s.members.Save(ctx, tx, member)
	})
}

// Get fetches a member by business key.
func (s *Service) Get(ctx context.Context, memberID string) (*domain.Member, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrMemberNotFound
	}
	return member, nil
}

// List pages members, optionally filtered by status.
func (s *Service) List(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.Member, int64, error) {
	return s.members.List(ctx, status, limit, offset)
}

func newAccountID(accountType ledgerdomain.AccountType) string {
	prefix := "SD"
	if accountType == ledgerdomain.AccountTypeShareCapital {
		prefix = "SC"
	}
	return "ACC-" + prefix + "-" + strings.ToUpper(uuid.NewString()[:10])
}
