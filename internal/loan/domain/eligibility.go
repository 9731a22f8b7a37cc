package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy holds the cooperative's configurable lending thresholds.
type Policy struct {
	MinShareCapital         decimal.Decimal
	MinMembershipMonths     int
	MinRecentDeposits       int
	DepositWindowMonths     int
	DebtToIncomeRatio       decimal.Decimal
	ArrearsDefaultThreshold int
}

// DefaultPolicy returns the policy the cooperative ships with.
func DefaultPolicy() Policy {
	return Policy{
		MinShareCapital:         decimal.NewFromInt(5000),
		MinMembershipMonths:     6,
		MinRecentDeposits:       2,
		DepositWindowMonths:     3,
		DebtToIncomeRatio:       decimal.NewFromFloat(2.0 / 3.0),
		ArrearsDefaultThreshold: 90,
	}
}

// MemberSnapshot is the evaluator's view of a member at evaluation time.
// Evaluate is a pure function of this snapshot, which keeps verdicts
// reproducible for the same state.
type MemberSnapshot struct {
	MemberID            string
	Active              bool
	HasActiveLogin      bool
	MembershipMonths    int
	Occupation          string
	Employer            string
	MonthlyIncome       decimal.Decimal
	ShareCapitalBalance decimal.Decimal
	RecentDepositCount  int
}

// LoanSnapshot summarizes an existing loan for the credit-history and
// debt-ratio checks.
type LoanSnapshot struct {
	Status         LoanStatus
	DaysInArrears  int
	MonthlyPayment decimal.Decimal
}

// CheckResult is one of the seven independent eligibility checks.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// EligibilityResult is the evaluator verdict. Messages lists the failures in
// fixed enumeration order.
type EligibilityResult struct {
	Eligible     bool              `json:"eligible"`
	Checks       []CheckResult     `json:"checks"`
	Messages     []string          `json:"messages"`
	Requirements map[string]string `json:"requirements"`
}

// Evaluate runs the seven policy checks for a member/product/amount triple.
// The checks are independent; the verdict is their conjunction. The proposed
// loan's installment is computed at the product's maximum term, the worst case
// for the debt-ratio check.
func Evaluate(
	policy Policy,
	member MemberSnapshot,
	product *LoanProduct,
	requestedAmount decimal.Decimal,
	existingLoans []LoanSnapshot,
) EligibilityResult {
	proposedPayment := MonthlyPayment(requestedAmount, product.MaxRate, product.MaxTermMonths)

	existingObligations := decimal.Zero
	hasDelinquent := false
	for _, loan := range existingLoans {
		switch loan.Status {
		case LoanStatusDefaulted, LoanStatusWrittenOff:
			hasDelinquent = true
		case LoanStatusActive, LoanStatusDisbursed:
			existingObligations = existingObligations.Add(loan.MonthlyPayment)
			if loan.DaysInArrears > policy.ArrearsDefaultThreshold {
				hasDelinquent = true
			}
		}
	}

	maxObligations := member.MonthlyIncome.Mul(policy.DebtToIncomeRatio)
	totalObligations := existingObligations.Add(proposedPayment)

	checks := []CheckResult{
		{
			Name:    "active_membership",
			Passed:  member.Active && member.HasActiveLogin,
			Message: "Member account must be active",
		},
		{
			Name:   "savings_activity",
			Passed: member.RecentDepositCount >= policy.MinRecentDeposits,
			Message: fmt.Sprintf("Member must have made at least %d deposits in the last %d months",
				policy.MinRecentDeposits, policy.DepositWindowMonths),
		},
		{
			Name:   "share_capital",
			Passed: member.ShareCapitalBalance.GreaterThanOrEqual(policy.MinShareCapital),
			Message: fmt.Sprintf("Member must have a minimum share capital of %s",
				policy.MinShareCapital.StringFixed(2)),
		},
		{
			Name:   "membership_age",
			Passed: member.MembershipMonths >= policy.MinMembershipMonths,
			Message: fmt.Sprintf("Member must have been a member for at least %d months",
				policy.MinMembershipMonths),
		},
		{
			Name:    "income_source",
			Passed:  member.Occupation != "" && member.Employer != "" && member.MonthlyIncome.IsPositive(),
			Message: "Member must have a regular source of income",
		},
		{
			Name:    "credit_history",
			Passed:  !hasDelinquent,
			Message: "Member has a defaulted or seriously delinquent loan",
		},
		{
			Name:    "repayment_capacity",
			Passed:  totalObligations.LessThanOrEqual(maxObligations),
			Message: "Total monthly loan obligations would exceed the allowed share of income",
		},
	}

	result := EligibilityResult{
		Eligible: true,
		Checks:   checks,
		Requirements: map[string]string{
			"proposed_monthly_payment": proposedPayment.StringFixed(2),
			"existing_obligations":     existingObligations.StringFixed(2),
			"maximum_obligations":      maxObligations.StringFixed(2),
		},
	}
	for _, check := range checks {
		if !check.Passed {
			result.Eligible = false
			result.Messages = append(result.Messages, check.Message)
		}
	}
	return result
}

// MaximumLoanAmount solves the annuity formula for principal given the
// member's remaining monthly capacity, clamped to the product bounds. Returns
// zero when capacity is non-positive or the result falls below the product
// minimum.
func MaximumLoanAmount(
	policy Policy,
	member MemberSnapshot,
	product *LoanProduct,
	existingLoans []LoanSnapshot,
) decimal.Decimal {
	existingObligations := decimal.Zero
	for _, loan := range existingLoans {
		if loan.Status == LoanStatusActive || loan.Status == LoanStatusDisbursed {
			existingObligations = existingObligations.Add(loan.MonthlyPayment)
		}
	}

	capacity := member.MonthlyIncome.Mul(policy.DebtToIncomeRatio).Sub(existingObligations)
	if !capacity.IsPositive() {
		return decimal.Zero
	}

	principal := MaxPrincipalFor(capacity, product.MaxRate, product.MaxTermMonths)
	if principal.GreaterThan(product.MaxAmount) {
		principal = product.MaxAmount
	}
	if principal.LessThan(product.MinAmount) {
		return decimal.Zero
	}
	return principal
}
