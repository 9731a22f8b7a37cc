package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func overdueInstallment(now time.Time, daysLate int) *LoanRepayment {
	expected := decimal.RequireFromString("4442.45")
	return &LoanRepayment{
		LoanID:            "LN-TEST",
		PeriodNumber:      1,
		DueDate:           now.AddDate(0, 0, -daysLate),
		PrincipalAmount:   decimal.RequireFromString("3942.45"),
		InterestAmount:    decimal.RequireFromString("500.00"),
		ExpectedAmount:    expected,
		PaidAmount:        decimal.Zero,
		OutstandingAmount: expected,
		Status:            RepaymentStatusPending,
	}
}

func TestRecomputePenaltyTenDaysLate(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := overdueInstallment(now, 10)
	installment.RecomputePenalty(now, decimal.NewFromInt(1))

	assert.Equal(t, "444.25", installment.PenaltyAmount.StringFixed(2))
	assert.Equal(t, 10, installment.DaysLate)
	assert.Equal(t, RepaymentStatusOverdue, installment.Status)
	assert.Equal(t, "4886.70", installment.OutstandingAmount.StringFixed(2))
}

func TestRecomputePenaltyIdempotentSameDay(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := overdueInstallment(now, 10)

	installment.RecomputePenalty(now, decimal.NewFromInt(1))
	first := installment.PenaltyAmount
	installment.RecomputePenalty(now, decimal.NewFromInt(1))

	assert.True(t, installment.PenaltyAmount.Equal(first))
	assert.Equal(t, "4886.70", installment.OutstandingAmount.StringFixed(2))
}

func TestRecomputePenaltyOnlyOnUnpaidPortion(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := overdueInstallment(now, 10)
	installment.PaidAmount = decimal.RequireFromString("2442.45")
	installment.OutstandingAmount = decimal.RequireFromString("2000.00")

	installment.RecomputePenalty(now, decimal.NewFromInt(1))

	// 2000.00 unpaid, 1% per day, 10 days.
	assert.Equal(t, "200.00", installment.PenaltyAmount.StringFixed(2))
}

func TestRecomputePenaltySkipsPaidAndCurrent(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

	paid := overdueInstallment(now, 10)
	paid.Status = RepaymentStatusPaid
	paid.RecomputePenalty(now, decimal.NewFromInt(1))
	assert.True(t, paid.PenaltyAmount.IsZero())
	assert.Equal(t, RepaymentStatusPaid, paid.Status)

	current := overdueInstallment(now, 0)
	current.DueDate = now.AddDate(0, 0, 5)
	current.RecomputePenalty(now, decimal.NewFromInt(1))
	assert.True(t, current.PenaltyAmount.IsZero())
	assert.Equal(t, RepaymentStatusPending, current.Status)
}

func TestApplyPaymentFullSettlement(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := overdueInstallment(now, 10)
	installment.RecomputePenalty(now, decimal.NewFromInt(1))

	alloc := installment.ApplyPayment(decimal.RequireFromString("5000.00"), now)

	assert.Equal(t, RepaymentStatusPaid, installment.Status)
	assert.True(t, installment.OutstandingAmount.IsZero())
	assert.Equal(t, "4886.70", installment.PaidAmount.StringFixed(2))
	assert.Equal(t, "113.30", alloc.Remainder.StringFixed(2))
	assert.NotNil(t, installment.PaidAt)

	// Penalty is consumed before interest and principal.
	assert.Equal(t, "444.25", alloc.Penalty.StringFixed(2))
	assert.Equal(t, "500.00", alloc.Interest.StringFixed(2))
	assert.Equal(t, "3942.45", alloc.Principal.StringFixed(2))
	assert.Equal(t, "444.25", installment.PaidPenalty.StringFixed(2))
}

func TestApplyPaymentPartial(t *testing.T) {
	now := time.Now()
	installment := overdueInstallment(now, 0)
	installment.DueDate = now.AddDate(0, 0, 10)

	alloc := installment.ApplyPayment(decimal.RequireFromString("1000.00"), now)

	assert.True(t, alloc.Remainder.IsZero())
	assert.Equal(t, "500.00", alloc.Interest.StringFixed(2))
	assert.Equal(t, "500.00", alloc.Principal.StringFixed(2))
	assert.Equal(t, RepaymentStatusPartial, installment.Status)
	assert.Equal(t, "3442.45", installment.OutstandingAmount.StringFixed(2))
	assert.Nil(t, installment.PaidAt)
}

func TestApplyPaymentOverdueStaysOverdueUntilSettled(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := overdueInstallment(now, 10)
	installment.RecomputePenalty(now, decimal.NewFromInt(1))

	installment.ApplyPayment(decimal.RequireFromString("1000.00"), now)
	assert.Equal(t, RepaymentStatusOverdue, installment.Status)
}

func TestApplyPaymentSkipsSettledInstallment(t *testing.T) {
	now := time.Now()
	installment := overdueInstallment(now, 0)
	installment.Status = RepaymentStatusPaid

	amount := decimal.RequireFromString("500.00")
	alloc := installment.ApplyPayment(amount, now)
	assert.True(t, alloc.Remainder.Equal(amount))
	assert.True(t, alloc.Applied().IsZero())
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	now := time.Now()
	installment := overdueInstallment(now, 0)

	alloc := installment.ApplyPayment(decimal.Zero, now)
	assert.True(t, alloc.Remainder.IsZero())
	assert.True(t, installment.PaidAmount.IsZero())
	assert.Equal(t, RepaymentStatusPending, installment.Status)
}

func TestApplyPaymentPenaltyAccruedAfterPartialPayment(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	installment := &LoanRepayment{
		LoanID:            "LN-TEST",
		PeriodNumber:      1,
		DueDate:           now.AddDate(0, 0, -10),
		PrincipalAmount:   decimal.RequireFromString("900.00"),
		InterestAmount:    decimal.RequireFromString("100.00"),
		ExpectedAmount:    decimal.RequireFromString("1000.00"),
		OutstandingAmount: decimal.RequireFromString("1000.00"),
		Status:            RepaymentStatusPending,
	}

	first := installment.ApplyPayment(decimal.RequireFromString("500.00"), now)
	assert.Equal(t, "100.00", first.Interest.StringFixed(2))
	assert.Equal(t, "400.00", first.Principal.StringFixed(2))

	// The sweep accrues a penalty on the unpaid 500 after the money arrived.
	installment.RecomputePenalty(now, decimal.NewFromInt(1))
	assert.Equal(t, "50.00", installment.PenaltyAmount.StringFixed(2))

	// The settling payment must be attributed penalty first, not mistaken
	// for principal because earlier money predates the penalty.
	second := installment.ApplyPayment(decimal.RequireFromString("550.00"), now)
	assert.Equal(t, "50.00", second.Penalty.StringFixed(2))
	assert.True(t, second.Interest.IsZero())
	assert.Equal(t, "500.00", second.Principal.StringFixed(2))
	assert.True(t, second.Remainder.IsZero())

	assert.Equal(t, RepaymentStatusPaid, installment.Status)
	assert.True(t, installment.OutstandingAmount.IsZero())
	assert.Equal(t, "50.00", installment.PaidPenalty.StringFixed(2))
	assert.Equal(t, "900.00", installment.PaidPrincipal.StringFixed(2))
}
