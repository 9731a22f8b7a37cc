package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RepaymentStatus is the installment state.
type RepaymentStatus string

const (
	RepaymentStatusPending RepaymentStatus = "pending"
	RepaymentStatusPartial RepaymentStatus = "partial"
	RepaymentStatusPaid    RepaymentStatus = "paid"
	RepaymentStatusOverdue RepaymentStatus = "overdue"
)

// LoanRepayment is one installment of a loan schedule. Invariant:
// OutstandingAmount = ExpectedAmount + PenaltyAmount - PaidAmount, never
// negative. Paid amounts are tracked per component so a penalty accrued
// after a partial payment cannot distort how later money is attributed.
type LoanRepayment struct {
	gorm.Model
	LoanID       string    `gorm:"column:loan_id;type:varchar(40);index;not null" json:"loan_id"`
	PeriodNumber int       `gorm:"column:period_number;not null" json:"period_number"`
	DueDate      time.Time `gorm:"column:due_date;index;not null" json:"due_date"`
	// Principal and interest components of the expected installment.
	PrincipalAmount   decimal.Decimal `gorm:"column:principal_amount;type:decimal(15,2);not null" json:"principal_amount"`
	InterestAmount    decimal.Decimal `gorm:"column:interest_amount;type:decimal(15,2);not null" json:"interest_amount"`
	ExpectedAmount    decimal.Decimal `gorm:"column:expected_amount;type:decimal(15,2);not null" json:"expected_amount"`
	PenaltyAmount     decimal.Decimal `gorm:"column:penalty_amount;type:decimal(15,2);not null;default:0" json:"penalty_amount"`
	PaidAmount        decimal.Decimal `gorm:"column:paid_amount;type:decimal(15,2);not null;default:0" json:"paid_amount"`
	PaidPenalty       decimal.Decimal `gorm:"column:paid_penalty;type:decimal(15,2);not null;default:0" json:"paid_penalty"`
	PaidInterest      decimal.Decimal `gorm:"column:paid_interest;type:decimal(15,2);not null;default:0" json:"paid_interest"`
	PaidPrincipal     decimal.Decimal `gorm:"column:paid_principal;type:decimal(15,2);not null;default:0" json:"paid_principal"`
	OutstandingAmount decimal.Decimal `gorm:"column:outstanding_amount;type:decimal(15,2);not null" json:"outstanding_amount"`
	DaysLate          int             `gorm:"column:days_late;not null;default:0" json:"days_late"`
	Status            RepaymentStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	PaidAt            *time.Time      `gorm:"column:paid_at" json:"paid_at"`
	LastNotifiedDay   int             `gorm:"column:last_notified_day;not null;default:0" json:"last_notified_day"`
}

func (LoanRepayment) TableName() string { return "loan_repayments" }

// RecomputePenalty replaces the stored penalty from days late and the daily
// penalty rate (percent). A fresh recompute rather than an increment, so
// running the sweep twice in a day cannot double-charge.
func (r *LoanRepayment) RecomputePenalty(now time.Time, dailyPenaltyRate decimal.Decimal) {
	if r.Status == RepaymentStatusPaid {
		return
	}
	daysLate := int(now.Sub(r.DueDate).Hours() / 24)
	if daysLate <= 0 {
		return
	}

	base := r.ExpectedAmount.Sub(r.PaidAmount)
	if base.IsNegative() {
		base = decimal.Zero
	}
	penalty := base.Mul(dailyPenaltyRate).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(daysLate))).Round(2)

	r.DaysLate = daysLate
	r.PenaltyAmount = penalty
	r.Status = RepaymentStatusOverdue
	r.syncOutstanding()
}

// Allocation reports how one payment split across an installment's
// components.
type Allocation struct {
	Penalty   decimal.Decimal
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Remainder decimal.Decimal
}

// Applied is the total consumed by the installment.
func (a Allocation) Applied() decimal.Decimal {
	return a.Penalty.Add(a.Interest).Add(a.Principal)
}

// ApplyPayment allocates an amount to this installment, penalty first, then
// interest, then principal, each component capped at its unpaid portion.
// Returns the allocation with the unconsumed remainder.
func (r *LoanRepayment) ApplyPayment(amount decimal.Decimal, at time.Time) Allocation {
	if !amount.IsPositive() || r.Status == RepaymentStatusPaid {
		return Allocation{Remainder: amount}
	}

	remaining := amount
	penalty := decimal.Min(remaining, componentDue(r.PenaltyAmount, r.PaidPenalty))
	remaining = remaining.Sub(penalty)
	interest := decimal.Min(remaining, componentDue(r.InterestAmount, r.PaidInterest))
	remaining = remaining.Sub(interest)
	principal := decimal.Min(remaining, componentDue(r.PrincipalAmount, r.PaidPrincipal))
	remaining = remaining.Sub(principal)

	r.PaidPenalty = r.PaidPenalty.Add(penalty)
	r.PaidInterest = r.PaidInterest.Add(interest)
	r.PaidPrincipal = r.PaidPrincipal.Add(principal)
	r.PaidAmount = r.PaidAmount.Add(penalty).Add(interest).Add(principal)
	r.syncOutstanding()

	if r.OutstandingAmount.IsZero() {
		r.Status = RepaymentStatusPaid
		r.PaidAt = &at
	} else if r.Status != RepaymentStatusOverdue && !r.PaidAmount.IsZero() {
		r.Status = RepaymentStatusPartial
	}
	return Allocation{Penalty: penalty, Interest: interest, Principal: principal, Remainder: remaining}
}

func componentDue(expected, paid decimal.Decimal) decimal.Decimal {
	due := expected.Sub(paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

func (r *LoanRepayment) syncOutstanding() {
	outstanding := r.ExpectedAmount.Add(r.PenaltyAmount).Sub(r.PaidAmount)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	r.OutstandingAmount = outstanding
}
