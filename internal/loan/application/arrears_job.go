package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/loan/domain"
	"github.com/savacoop/saccocore/pkg/cache"
	"github.com/savacoop/saccocore/pkg/metrics"
)

const sweepPageSize = 200

// ArrearsJob periodically scans due repayments, recomputes penalties and
// updates loan arrears state. The penalty is recomputed from days late on
// each pass, so the sweep is idempotent within a day; a redis guard keeps it
// to one run per day regardless.
type ArrearsJob struct {
	service  *Service
	cache    *cache.RedisCache
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewArrearsJob(service *Service, redis *cache.RedisCache, m *metrics.Metrics, logger *slog.Logger) *ArrearsJob {
	return &ArrearsJob{
		service:  service,
		cache:    redis,
		interval: time.Hour,
		metrics:  m,
		logger:   logger,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (j *ArrearsJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("arrears sweep job started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *ArrearsJob) run(ctx context.Context) {
	now := time.Now()
	key := "sacco:arrears:swept:" + now.Format("2006-01-02")
	if j.cache != nil {
		acquired, err := j.cache.AcquireOnce(ctx, key, 48*time.Hour)
		if err != nil {
			j.logger.ErrorContext(ctx, "arrears sweep guard check failed", "error", err)
			return
		}
		if !acquired {
			return
		}
	}

	start := time.Now()
	if err := j.service.Accrue(ctx, now); err != nil {
		j.logger.ErrorContext(ctx, "arrears sweep failed", "error", err)
		// Give the day back so the next tick retries instead of waiting
		// for tomorrow.
		if j.cache != nil {
			if err := j.cache.Delete(ctx, key); err != nil {
				j.logger.ErrorContext(ctx, "failed to release arrears sweep guard", "error", err)
			}
		}
	}
	if j.metrics != nil {
		j.metrics.PenaltySweepDuration.Observe(time.Since(start).Seconds())
	}
}

// Accrue recomputes penalties for every repayment past due as of now.
// Safe to invoke more than once per day: the penalty is replaced from days
// late, never incremented.
func (s *Service) Accrue(ctx context.Context, now time.Time) error {
	products := map[string]*domain.LoanProduct{}
	offset := 0
	failed := 0

	for {
		candidates, err := s.repayments.ListOverdueCandidates(ctx, now, sweepPageSize, offset)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			break
		}

		for _, installment := range candidates {
			if err := s.accrueOne(ctx, installment.ID, products, now); err != nil {
				failed++
				s.logger.ErrorContext(ctx, "failed to accrue penalty",
					"loan_id", installment.LoanID,
					"period", installment.PeriodNumber,
					"error", err)
			}
		}

		if len(candidates) < sweepPageSize {
			break
		}
		offset += sweepPageSize
	}

	if failed > 0 {
		return fmt.Errorf("arrears sweep: %d installment(s) failed", failed)
	}
	return nil
}

func (s *Service) accrueOne(ctx context.Context, installmentID uint, products map[string]*domain.LoanProduct, now time.Time) error {
	var notifyDay int
	var notifyDue time.Time
	var loanID, memberID string

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		// Re-read under lock. The page scan ran outside this transaction
		// and a concurrent repayment may have changed or settled the row.
		installment, err := s.repayments.GetForUpdate(ctx, tx, installmentID)
		if err != nil {
			return err
		}
		if installment == nil || installment.Status == domain.RepaymentStatusPaid {
			return nil
		}
		loanID = installment.LoanID

		loan, err := s.loans.GetForUpdate(ctx, tx, installment.LoanID)
		if err != nil {
			return err
		}
		if loan == nil || !loan.IsOpen() {
			return nil
		}
		memberID = loan.MemberID

		product, ok := products[loan.ProductID]
		if !ok {
			product, err = s.products.Get(ctx, loan.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return domain.ErrProductNotFound
			}
			products[loan.ProductID] = product
		}

		wasOverdue := installment.Status == domain.RepaymentStatusOverdue
		previousPenalty := installment.PenaltyAmount
		installment.RecomputePenalty(now, product.PenaltyRate)
		if installment.Status != domain.RepaymentStatusOverdue {
			return nil
		}

		// Weekly reminder cadence: day 7, 14, 21, ... once each.
		week := (installment.DaysLate / 7) * 7
		if week >= 7 && week > installment.LastNotifiedDay {
			installment.LastNotifiedDay = week
			notifyDay = installment.DaysLate
			notifyDue = installment.DueDate
		}

		if err := s.repayments.Save(ctx, tx, installment); err != nil {
			return err
		}

		loan.PenaltyBalance = loan.PenaltyBalance.Add(installment.PenaltyAmount.Sub(previousPenalty))
		if loan.PenaltyBalance.IsNegative() {
			loan.PenaltyBalance = installment.PenaltyAmount
		}
		if installment.DaysLate > loan.DaysInArrears {
			loan.DaysInArrears = installment.DaysLate
		}
		if err := loan.SyncBalances(); err != nil {
			return err
		}

		if !wasOverdue && s.metrics != nil {
			s.metrics.RepaymentsOverdueTotal.Inc()
		}
		return s.loans.Save(ctx, tx, loan)
	})
	if err != nil {
		return err
	}

	if notifyDay > 0 && s.notifier != nil {
		message := fmt.Sprintf("Your loan installment due on %s is %d days overdue. Please make a payment to avoid further penalties.",
			notifyDue.Format("2 Jan 2006"), notifyDay)
		if err := s.notifier.Notify(ctx, memberID, "Loan installment overdue", message, "sms"); err != nil {
			s.logger.WarnContext(ctx, "failed to queue arrears notification",
				"loan_id", loanID, "error", err)
		}
	}
	return nil
}
