// Package application processes mobile money deposits: push initiation with a
// bounded retry budget, and idempotent settlement of gateway callbacks into
// the ledger.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	"github.com/savacoop/saccocore/internal/payment/domain"
	"github.com/savacoop/saccocore/pkg/config"
	"github.com/savacoop/saccocore/pkg/db"
	"github.com/savacoop/saccocore/pkg/metrics"
)

// Ledger is the posting surface the deposit processor needs.
type Ledger interface {
	PostInTx(ctx context.Context, tx *gorm.DB, cmd ledgerapp.PostCommand) (*ledgerdomain.Transaction, error)
	GetMemberAccount(ctx context.Context, memberID string, accountType ledgerdomain.AccountType) (*ledgerdomain.Account, error)
}

// Notifier queues a human-readable message for a member. Best effort.
type Notifier interface {
	Notify(ctx context.Context, memberID, title, message, channel string) error
}

// Service owns the deposit path between the gateway and the ledger.
type Service struct {
	db       db.TxRunner
	payments domain.Repository
	ledger   Ledger
	gateway  domain.Gateway
	notifier Notifier
	cfg      config.GatewayConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewService(database db.TxRunner, payments domain.Repository, ledger Ledger, gateway domain.Gateway, notifier Notifier, cfg config.GatewayConfig, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		db:       database,
		payments: payments,
		ledger:   ledger,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// InitiateDeposit creates a pending payment request and pushes a payment
// prompt to the member's handset. The push is retried with exponential
// backoff up to the configured budget; exhaustion marks the request failed
// rather than leaving it pending forever. A callback arriving after that
// still settles via ProcessCallback.
func (s *Service) InitiateDeposit(ctx context.Context, memberID, payerIdentifier string, amount decimal.Decimal) (*domain.PaymentRequest, error) {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive, got %s", amount)
	}

	account, err := s.ledger.GetMemberAccount(ctx, memberID, ledgerdomain.AccountTypeShareDeposits)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}

	request := &domain.PaymentRequest{
		Reference:       newPaymentReference(),
		MemberID:        memberID,
		AccountID:       account.AccountID,
		Amount:          amount,
		PayerIdentifier: payerIdentifier,
		Status:          domain.StatusPending,
	}
	if err := s.payments.Save(ctx, nil, request); err != nil {
		return nil, err
	}

	checkoutRequestID, attempts, pushErr := s.pushWithRetry(ctx, request)
	request.Attempts = attempts
	if pushErr != nil {
		request.Fail(fmt.Sprintf("gateway push failed after %d attempts: %v", attempts, pushErr))
		if err := s.payments.Save(ctx, nil, request); err != nil {
			s.logger.ErrorContext(ctx, "failed to record payment failure",
				"reference", request.Reference, "error", err)
		}
		return request, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, pushErr)
	}

	request.CheckoutRequestID = checkoutRequestID
	if err := s.payments.Save(ctx, nil, request); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "deposit initiated",
		"reference", request.Reference,
		"member_id", memberID,
		"amount", amount.String(),
		"attempts", attempts,
	)
	return request, nil
}

func (s *Service) pushWithRetry(ctx context.Context, request *domain.PaymentRequest) (string, int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(s.cfg.InitialBackoff) * time.Millisecond
	policy.MaxElapsedTime = time.Duration(s.cfg.MaxElapsedTime) * time.Second

	maxRetries := uint64(0)
	if s.cfg.MaxAttempts > 1 {
		maxRetries = uint64(s.cfg.MaxAttempts - 1)
	}

	var checkoutRequestID string
	attempts := 0
	operation := func() error {
		attempts++
		id, err := s.gateway.Push(ctx, request.Reference, request.PayerIdentifier, request.Amount)
		if err != nil {
			if s.metrics != nil {
				s.metrics.GatewayRetriesTotal.Inc()
			}
			s.logger.WarnContext(ctx, "gateway push attempt failed",
				"reference", request.Reference, "attempt", attempts, "error", err)
			return err
		}
		checkoutRequestID = id
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	return checkoutRequestID, attempts, err
}

// ProcessCallback settles a gateway result. Idempotent: a replayed callback
// for an already-completed request is a success no-op, and the ledger's
// duplicate transaction check backstops any race. Late callbacks for requests
// the retry budget already marked failed are accepted; the money moved.
func (s *Service) ProcessCallback(ctx context.Context, result domain.GatewayResult) error {
	request, err := s.lookup(ctx, result)
	if err != nil {
		return err
	}
	if request == nil {
		return domain.ErrPaymentNotFound
	}

	var completed bool
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.payments.GetByReferenceForUpdate(ctx, tx, request.Reference)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrPaymentNotFound
		}
		if locked.Status == domain.StatusCompleted {
			return nil
		}

		if !result.Succeeded {
			// Never downgrade: a failure callback after settlement is noise.
			locked.Fail(result.FailureReason)
			return s.payments.Save(ctx, tx, locked)
		}

		_, err = s.ledger.PostInTx(ctx, tx, ledgerapp.PostCommand{
			AccountID:     locked.AccountID,
			Amount:        result.Amount.Round(2),
			Type:          ledgerdomain.TxTypeDeposit,
			TransactionID: "MPESA-" + result.ExternalTransactionID,
			Reference:     locked.Reference,
			Description:   fmt.Sprintf("Mobile money deposit from %s", result.PayerIdentifier),
		})
		if err != nil {
			return err
		}
		locked.Complete(result.ExternalTransactionID, time.Now())
		completed = true
		return s.payments.Save(ctx, tx, locked)
	})
	if err != nil {
		return err
	}

	if completed {
		message := fmt.Sprintf("Your deposit of %s has been received and credited to your account.",
			result.Amount.Round(2).StringFixed(2))
		if nerr := s.notifier.Notify(ctx, request.MemberID, "Deposit received", message, "sms"); nerr != nil {
			s.logger.WarnContext(ctx, "failed to queue deposit notification",
				"reference", request.Reference, "error", nerr)
		}
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, result domain.GatewayResult) (*domain.PaymentRequest, error) {
	if result.Reference != "" {
		request, err := s.payments.GetByReference(ctx, result.Reference)
		if err != nil || request != nil {
			return request, err
		}
	}
	if result.CheckoutRequestID != "" {
		return s.payments.GetByCheckoutRequestID(ctx, result.CheckoutRequestID)
	}
	return nil, nil
}

// Get fetches a payment request by reference.
func (s *Service) Get(ctx context.Context, reference string) (*domain.PaymentRequest, error) {
	request, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return request, nil
}

// ListByMember pages a member's payment requests.
func (s *Service) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.PaymentRequest, int64, error) {
	return s.payments.ListByMember(ctx, memberID, limit, offset)
}

func newPaymentReference() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:12])
}
