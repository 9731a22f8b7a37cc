// Package domain holds the loan aggregate: products, loans, repayment
// schedules, eligibility policy and the amortization math.
package domain

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanProduct is read-only policy configuration at evaluation time.
type LoanProduct struct {
	gorm.Model
	ProductID         string          `gorm:"column:product_id;type:varchar(40);uniqueIndex;not null" json:"product_id"`
	Name              string          `gorm:"column:name;type:varchar(80);not null" json:"name"`
	MinAmount         decimal.Decimal `gorm:"column:min_amount;type:decimal(15,2);not null" json:"min_amount"`
	MaxAmount         decimal.Decimal `gorm:"column:max_amount;type:decimal(15,2);not null" json:"max_amount"`
	// Annual interest rate bounds, percent.
	MinRate decimal.Decimal `gorm:"column:min_rate;type:decimal(5,2);not null" json:"min_rate"`
	MaxRate decimal.Decimal `gorm:"column:max_rate;type:decimal(5,2);not null" json:"max_rate"`
	// Term bounds in months.
	MinTermMonths int `gorm:"column:min_term_months;not null" json:"min_term_months"`
	MaxTermMonths int `gorm:"column:max_term_months;not null" json:"max_term_months"`
	// Daily penalty rate applied to overdue installments, percent.
	PenaltyRate       decimal.Decimal `gorm:"column:penalty_rate;type:decimal(5,2);not null" json:"penalty_rate"`
	RequiresGuarantor bool            `gorm:"column:requires_guarantor;not null;default:false" json:"requires_guarantor"`
	Active            bool            `gorm:"column:active;not null;default:true" json:"active"`
}

func (LoanProduct) TableName() string { return "loan_products" }
