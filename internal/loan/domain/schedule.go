package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyPayment computes the fixed installment for a reducing-balance loan:
// P * r(1+r)^n / ((1+r)^n - 1), with the zero-rate degenerate case P/n.
func MonthlyPayment(principal, annualRatePct decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 || !principal.IsPositive() {
		return decimal.Zero
	}

	monthlyRate := annualRatePct.InexactFloat64() / 100 / 12
	if monthlyRate == 0 {
		return principal.Div(decimal.NewFromInt(int64(termMonths))).Round(2)
	}

	// The power term needs float math; monetary arithmetic stays decimal.
	factor := math.Pow(1+monthlyRate, float64(termMonths))
	payment := principal.InexactFloat64() * monthlyRate * factor / (factor - 1)
	return decimal.NewFromFloat(payment).Round(2)
}

// MaxPrincipalFor inverts the annuity formula: the largest principal whose
// installment fits within the monthly capacity.
func MaxPrincipalFor(capacity, annualRatePct decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths <= 0 || !capacity.IsPositive() {
		return decimal.Zero
	}

	monthlyRate := annualRatePct.InexactFloat64() / 100 / 12
	if monthlyRate == 0 {
		return capacity.Mul(decimal.NewFromInt(int64(termMonths))).Round(2)
	}

	factor := math.Pow(1+monthlyRate, float64(termMonths))
	principal := capacity.InexactFloat64() * (factor - 1) / (monthlyRate * factor)
	return decimal.NewFromFloat(principal).Round(2)
}

// GenerateSchedule produces one installment per calendar month starting at
// firstDueDate. The final period forces the principal component to the exact
// remaining balance and recomputes that installment's total, so the schedule's
// principal sum equals the original principal to the cent.
func GenerateSchedule(
	loanID string,
	principal, annualRatePct decimal.Decimal,
	termMonths int,
	monthlyPayment decimal.Decimal,
	firstDueDate time.Time,
) []*LoanRepayment {
	if termMonths <= 0 || !principal.IsPositive() {
		return nil
	}

	monthlyRate := annualRatePct.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(12))
	remaining := principal
	schedule := make([]*LoanRepayment, 0, termMonths)

	for period := 1; period <= termMonths; period++ {
		interest := remaining.Mul(monthlyRate).Round(2)
		var principalPart, payment decimal.Decimal

		if period == termMonths {
			// Absorb rounding drift in the final installment.
			principalPart = remaining
			payment = principalPart.Add(interest)
		} else if monthlyRate.IsZero() {
			principalPart = monthlyPayment
			payment = monthlyPayment
		} else {
			principalPart = monthlyPayment.Sub(interest)
			payment = monthlyPayment
		}

		remaining = remaining.Sub(principalPart)

		repayment := &LoanRepayment{
			LoanID:            loanID,
			PeriodNumber:      period,
			DueDate:           firstDueDate.AddDate(0, period-1, 0),
			PrincipalAmount:   principalPart.Round(2),
			InterestAmount:    interest,
			ExpectedAmount:    payment.Round(2),
			PenaltyAmount:     decimal.Zero,
			PaidAmount:        decimal.Zero,
			OutstandingAmount: payment.Round(2),
			Status:            RepaymentStatusPending,
		}
		schedule = append(schedule, repayment)
	}

	return schedule
}

// ScheduleInterestTotal sums the interest components, the amount a disbursed
// loan's interest balance is initialized with once the schedule materializes.
func ScheduleInterestTotal(schedule []*LoanRepayment) decimal.Decimal {
	total := decimal.Zero
	for _, r := range schedule {
		total = total.Add(r.InterestAmount)
	}
	return total
}
