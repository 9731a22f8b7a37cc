// Package application implements the loan lifecycle: application, eligibility
// evaluation, approval, disbursement, repayment and the arrears sweep.
package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/loan/domain"
	memberdomain "github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/pkg/db"
	"github.com/savacoop/saccocore/pkg/metrics"
)

// Ledger is the slice of the ledger engine the loan module uses. All balance
// mutations go through it; the loan module never touches account rows.
type Ledger interface {
	PostInTx(ctx context.Context, tx *gorm.DB, cmd ledgerapp.PostCommand) (*ledgerdomain.Transaction, error)
	GetMemberAccount(ctx context.Context, memberID string, accountType ledgerdomain.AccountType) (*ledgerdomain.Account, error)
	CountDepositsSince(ctx context.Context, accountID string, since time.Time) (int64, error)
	PlaceHold(ctx context.Context, accountID string, amount decimal.Decimal) error
	ReleaseHoldInTx(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error
}

// Notifier queues a human-readable message for a member. Best effort: callers
// log failures and move on.
type Notifier interface {
	Notify(ctx context.Context, memberID, title, message, channel string) error
}

// Vouchers creates the payment voucher that accompanies a disbursement.
type Vouchers interface {
	CreatePaidForLoanInTx(ctx context.Context, tx *gorm.DB, loanID, memberID string, amount decimal.Decimal, operator string) error
}

// Service handles loan write operations.
type Service struct {
	db         db.TxRunner
	loans      domain.LoanRepository
	products   domain.ProductRepository
	repayments domain.RepaymentRepository
	guarantors domain.GuarantorRepository
	members    memberdomain.Repository
	ledger     Ledger
	vouchers   Vouchers
	notifier   Notifier
	policy     domain.Policy
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewService(
	database db.TxRunner,
	loans domain.LoanRepository,
	products domain.ProductRepository,
	repayments domain.RepaymentRepository,
	guarantors domain.GuarantorRepository,
	members memberdomain.Repository,
	ledger Ledger,
	vouchers Vouchers,
	notifier Notifier,
	policy domain.Policy,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:         database,
		loans:      loans,
		products:   products,
		repayments: repayments,
		guarantors: guarantors,
		members:    members,
		ledger:     ledger,
		vouchers:   vouchers,
		notifier:   notifier,
		policy:     policy,
		metrics:    m,
		logger:     logger,
	}
}

// ApplyCommand carries a validated loan application.
type ApplyCommand struct {
	MemberID        string
	ProductID       string
	Amount          decimal.Decimal
	TermMonths      int
	Purpose         string
	GuarantorIDs    []string
	GuaranteeAmount decimal.Decimal
}

// Apply evaluates eligibility and records a pending application. An
// ineligible member gets the failure messages back, not a stored loan.
func (s *Service) Apply(ctx context.Context, cmd ApplyCommand) (*domain.Loan, *domain.EligibilityResult, error) {
	product, err := s.products.Get(ctx, cmd.ProductID)
	if err != nil {
		return nil, nil, err
	}
	if product == nil {
		return nil, nil, domain.ErrProductNotFound
	}
	if cmd.Amount.LessThan(product.MinAmount) || cmd.Amount.GreaterThan(product.MaxAmount) {
		return nil, nil, domain.ErrAmountOutOfBounds
	}
	if cmd.TermMonths < product.MinTermMonths || cmd.TermMonths > product.MaxTermMonths {
		return nil, nil, domain.ErrTermOutOfBounds
	}

	result, err := s.Evaluate(ctx, cmd.MemberID, cmd.ProductID, cmd.Amount)
	if err != nil {
		return nil, nil, err
	}
	if !result.Eligible {
		return nil, result, domain.ErrNotEligible
	}

	loan := &domain.Loan{
		LoanID:        "LN-" + strings.ToUpper(uuid.NewString()[:12]),
		MemberID:      cmd.MemberID,
		ProductID:     cmd.ProductID,
		AppliedAmount: cmd.Amount.Round(2),
		TermMonths:    cmd.TermMonths,
		Purpose:       cmd.Purpose,
		Status:        domain.LoanStatusPending,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.loans.Save(ctx, tx, loan); err != nil {
			return err
		}
		for _, guarantorID := range cmd.GuarantorIDs {
			account, err := s.ledger.GetMemberAccount(ctx, guarantorID, ledgerdomain.AccountTypeShareDeposits)
			if err != nil {
				return err
			}
			if account == nil {
				return ledgerdomain.ErrAccountNotFound
			}
			guarantor := &domain.Guarantor{
				LoanID:           loan.LoanID,
				MemberID:         guarantorID,
				GuaranteedAmount: cmd.GuaranteeAmount.Round(2),
				AccountID:        account.AccountID,
			}
			if err := s.guarantors.Save(ctx, tx, guarantor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "loan application recorded",
		"loan_id", loan.LoanID, "member_id", cmd.MemberID, "amount", cmd.Amount.String())
	return loan, result, nil
}

// Evaluate scores a member/product/amount triple against policy. Pure with
// respect to the snapshot it assembles: repeated calls on unchanged state
// return identical verdicts and messages.
func (s *Service) Evaluate(ctx context.Context, memberID, productID string, amount decimal.Decimal) (*domain.EligibilityResult, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}

	snapshot, existing, err := s.snapshotMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	result := domain.Evaluate(s.policy, snapshot, product, amount, existing)
	return &result, nil
}

// MaximumLoanAmount returns the largest principal the member's capacity
// supports under the product, zero when none.
func (s *Service) MaximumLoanAmount(ctx context.Context, memberID, productID string) (decimal.Decimal, error) {
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if product == nil {
		return decimal.Zero, domain.ErrProductNotFound
	}

	snapshot, existing, err := s.snapshotMember(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.MaximumLoanAmount(s.policy, snapshot, product, existing), nil
}

func (s *Service) snapshotMember(ctx context.Context, memberID string) (domain.MemberSnapshot, []domain.LoanSnapshot, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return domain.MemberSnapshot{}, nil, err
	}
	if member == nil {
		return domain.MemberSnapshot{}, nil, memberdomain.ErrMemberNotFound
	}

	now := time.Now()
	snapshot := domain.MemberSnapshot{
		MemberID:         member.MemberID,
		Active:           member.Status == memberdomain.StatusActive,
		HasActiveLogin:   member.HasActiveLogin,
		MembershipMonths: member.MembershipMonths(now),
		Occupation:       member.Occupation,
		Employer:         member.Employer,
		MonthlyIncome:    member.MonthlyIncome,
	}

	shareCapital, err := s.ledger.GetMemberAccount(ctx, memberID, ledgerdomain.AccountTypeShareCapital)
	if err != nil {
		return domain.MemberSnapshot{}, nil, err
	}
	if shareCapital != nil {
		snapshot.ShareCapitalBalance = shareCapital.Balance
	}

	deposits, err := s.ledger.GetMemberAccount(ctx, memberID, ledgerdomain.AccountTypeShareDeposits)
	if err != nil {
		return domain.MemberSnapshot{}, nil, err
	}
	if deposits != nil {
		window := now.AddDate(0, -s.policy.DepositWindowMonths, 0)
		count, err := s.ledger.CountDepositsSince(ctx, deposits.AccountID, window)
		if err != nil {
			return domain.MemberSnapshot{}, nil, err
		}
		snapshot.RecentDepositCount = int(count)
	}

	loans, err := s.loans.ListByMember(ctx, memberID)
	if err != nil {
		return domain.MemberSnapshot{}, nil, err
	}
	existing := make([]domain.LoanSnapshot, 0, len(loans))
	for _, loan := range loans {
		existing = append(existing, domain.LoanSnapshot{
			Status:         loan.Status,
			DaysInArrears:  loan.DaysInArrears,
			MonthlyPayment: loan.MonthlyPayment,
		})
	}
	return snapshot, existing, nil
}

// StartReview moves an application into review.
func (s *Service) StartReview(ctx context.Context, loanID string) error {
	return s.transition(ctx, loanID, func(loan *domain.Loan) error {
		return loan.StartReview()
	})
}

// Approve fixes the approved amount, rate and term.
func (s *Service) Approve(ctx context.Context, loanID string, amount, annualRate decimal.Decimal, termMonths int, approver string) error {
	err := s.transition(ctx, loanID, func(loan *domain.Loan) error {
		return loan.Approve(amount, annualRate, termMonths, approver, time.Now())
	})
	if err != nil {
		return err
	}
	s.notifyBestEffort(ctx, loanID, "Loan approved",
		"Your loan application has been approved and is awaiting disbursement.")
	return nil
}

// Reject closes an application with a reason.
func (s *Service) Reject(ctx context.Context, loanID, reason string) error {
	err := s.transition(ctx, loanID, func(loan *domain.Loan) error {
		return loan.Reject(reason)
	})
	if err != nil {
		return err
	}
	s.notifyBestEffort(ctx, loanID, "Loan application rejected", reason)
	return nil
}

// MarkDefaulted flags an active loan as defaulted.
func (s *Service) MarkDefaulted(ctx context.Context, loanID string) error {
	return s.transition(ctx, loanID, func(loan *domain.Loan) error {
		return loan.MarkDefaulted()
	})
}

// WriteOff removes a loan from collectible books.
func (s *Service) WriteOff(ctx context.Context, loanID string) error {
	return s.transition(ctx, loanID, func(loan *domain.Loan) error {
		return loan.WriteOff()
	})
}

func (s *Service) transition(ctx context.Context, loanID string, fn func(*domain.Loan) error) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if loan == nil {
			return domain.ErrLoanNotFound
		}
		if err := fn(loan); err != nil {
			return err
		}
		return s.loans.Save(ctx, tx, loan)
	})
}

// Get fetches a loan by business key.
func (s *Service) Get(ctx context.Context, loanID string) (*domain.Loan, error) {
	loan, err := s.loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, domain.ErrLoanNotFound
	}
	return loan, nil
}

// Schedule returns the loan's repayment schedule in period order.
func (s *Service) Schedule(ctx context.Context, loanID string) ([]*domain.LoanRepayment, error) {
	return s.repayments.ListByLoan(ctx, loanID)
}

func (s *Service) notifyBestEffort(ctx context.Context, loanID, title, message string) {
	if s.notifier == nil {
		return
	}
	loan, err := s.loans.Get(ctx, loanID)
	if err != nil || loan == nil {
		return
	}
	if err := s.notifier.Notify(ctx, loan.MemberID, title, message, "sms"); err != nil {
		s.logger.WarnContext(ctx, "failed to queue loan notification",
			"loan_id", loanID, "error", err)
	}
}
