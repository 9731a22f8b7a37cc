package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct() *LoanProduct {
	return &LoanProduct{
		ProductID:     "PRD-DEV",
		Name:          "Development Loan",
		MinAmount:     decimal.NewFromInt(5000),
		MaxAmount:     decimal.NewFromInt(500000),
		MinRate:       decimal.NewFromInt(10),
		MaxRate:       decimal.NewFromInt(14),
		MinTermMonths: 6,
		MaxTermMonths: 36,
		PenaltyRate:   decimal.NewFromInt(1),
		Active:        true,
	}
}

func eligibleMember() MemberSnapshot {
	return MemberSnapshot{
		MemberID:            "MBR-1",
		Active:              true,
		HasActiveLogin:      true,
		MembershipMonths:    24,
		Occupation:          "Teacher",
		Employer:            "Hillside Academy",
		MonthlyIncome:       decimal.NewFromInt(60000),
		ShareCapitalBalance: decimal.NewFromInt(20000),
		RecentDepositCount:  4,
	}
}

func TestEvaluateAllChecksPass(t *testing.T) {
	result := Evaluate(DefaultPolicy(), eligibleMember(), testProduct(), decimal.NewFromInt(100000), nil)

	assert.True(t, result.Eligible)
	assert.Empty(t, result.Messages)
	require.Len(t, result.Checks, 7)
	for _, check := range result.Checks {
		assert.True(t, check.Passed, "check %s failed", check.Name)
	}
}

func TestEvaluateNoIncomeSource(t *testing.T) {
	member := eligibleMember()
	member.Occupation = ""
	member.Employer = ""
	member.MonthlyIncome = decimal.Zero
	member.ShareCapitalBalance = decimal.NewFromInt(5000)

	result := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(50000), nil)

	assert.False(t, result.Eligible)
	assert.Contains(t, result.Messages, "Member must have a regular source of income")
}

func TestEvaluateInactiveMember(t *testing.T) {
	member := eligibleMember()
	member.Active = false

	result := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(50000), nil)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Messages, "Member account must be active")
}

func TestEvaluateInsufficientShareCapital(t *testing.T) {
	member := eligibleMember()
	member.ShareCapitalBalance = decimal.NewFromInt(4999)

	result := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(50000), nil)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Messages, "Member must have a minimum share capital of 5000.00")
}

func TestEvaluateDelinquentHistory(t *testing.T) {
	loans := []LoanSnapshot{{Status: LoanStatusDefaulted}}
	result := Evaluate(DefaultPolicy(), eligibleMember(), testProduct(), decimal.NewFromInt(50000), loans)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Messages, "Member has a defaulted or seriously delinquent loan")

	loans = []LoanSnapshot{{
		Status:         LoanStatusActive,
		DaysInArrears:  120,
		MonthlyPayment: decimal.NewFromInt(1000),
	}}
	result = Evaluate(DefaultPolicy(), eligibleMember(), testProduct(), decimal.NewFromInt(50000), loans)
	assert.False(t, result.Eligible)
}

func TestEvaluateRepaymentCapacity(t *testing.T) {
	member := eligibleMember()
	member.MonthlyIncome = decimal.NewFromInt(10000)

	// A 500,000 request at the product's worst case far exceeds two thirds
	// of a 10,000 income.
	result := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(500000), nil)
	assert.False(t, result.Eligible)
	assert.Contains(t, result.Messages, "Total monthly loan obligations would exceed the allowed share of income")
}

func TestEvaluateDeterministic(t *testing.T) {
	member := eligibleMember()
	member.Occupation = ""
	member.RecentDepositCount = 0

	first := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(50000), nil)
	second := Evaluate(DefaultPolicy(), member, testProduct(), decimal.NewFromInt(50000), nil)

	assert.Equal(t, first.Eligible, second.Eligible)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, first.Checks, second.Checks)
}

func TestMaximumLoanAmount(t *testing.T) {
	policy := DefaultPolicy()
	product := testProduct()

	t.Run("no capacity returns zero", func(t *testing.T) {
		member := eligibleMember()
		member.MonthlyIncome = decimal.Zero
		assert.True(t, MaximumLoanAmount(policy, member, product, nil).IsZero())
	})

	t.Run("existing obligations reduce the ceiling", func(t *testing.T) {
		member := eligibleMember()
		unencumbered := MaximumLoanAmount(policy, member, product, nil)
		encumbered := MaximumLoanAmount(policy, member, product, []LoanSnapshot{{
			Status:         LoanStatusActive,
			MonthlyPayment: decimal.NewFromInt(10000),
		}})
		assert.True(t, encumbered.LessThan(unencumbered))
	})

	t.Run("clamped to product maximum", func(t *testing.T) {
		member := eligibleMember()
		member.MonthlyIncome = decimal.NewFromInt(10000000)
		got := MaximumLoanAmount(policy, member, product, nil)
		assert.True(t, got.Equal(product.MaxAmount))
	})

	t.Run("below product minimum returns zero", func(t *testing.T) {
		member := eligibleMember()
		member.MonthlyIncome = decimal.NewFromInt(150)
		assert.True(t, MaximumLoanAmount(policy, member, product, nil).IsZero())
	})
}
