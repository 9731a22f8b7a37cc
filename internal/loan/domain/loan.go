package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrProductNotFound     = errors.New("loan product not found")
	ErrInvalidLoanState    = errors.New("invalid loan state transition")
	ErrLoanNotDisbursable  = errors.New("loan is not in approved state")
	ErrAmountOutOfBounds   = errors.New("amount outside product bounds")
	ErrTermOutOfBounds     = errors.New("term outside product bounds")
	ErrNotEligible         = errors.New("member is not eligible for this loan")
	ErrBalanceSplitInvalid = errors.New("loan balance split does not sum to outstanding")
)

// LoanStatus is the loan state machine. Disbursement is one-way: once
// disbursed, the approved amount is frozen.
type LoanStatus string

const (
	LoanStatusPending     LoanStatus = "pending"
	LoanStatusUnderReview LoanStatus = "under_review"
	LoanStatusApproved    LoanStatus = "approved"
	LoanStatusRejected    LoanStatus = "rejected"
	LoanStatusDisbursed   LoanStatus = "disbursed"
	LoanStatusActive      LoanStatus = "active"
	LoanStatusCompleted   LoanStatus = "completed"
	LoanStatusDefaulted   LoanStatus = "defaulted"
	LoanStatusWrittenOff  LoanStatus = "written_off"
)

// Loan carries the balance split invariant:
// OutstandingBalance = PrincipalBalance + InterestBalance + PenaltyBalance.
type Loan struct {
	gorm.Model
	LoanID    string `gorm:"column:loan_id;type:varchar(40);uniqueIndex;not null" json:"loan_id"`
	MemberID  string `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	ProductID string `gorm:"column:product_id;type:varchar(40);index;not null" json:"product_id"`

	AppliedAmount  decimal.Decimal `gorm:"column:applied_amount;type:decimal(15,2);not null" json:"applied_amount"`
	ApprovedAmount decimal.Decimal `gorm:"column:approved_amount;type:decimal(15,2);not null;default:0" json:"approved_amount"`
	// Annual interest rate, percent.
	InterestRate   decimal.Decimal `gorm:"column:interest_rate;type:decimal(5,2);not null;default:0" json:"interest_rate"`
	TermMonths     int             `gorm:"column:term_months;not null" json:"term_months"`
	MonthlyPayment decimal.Decimal `gorm:"column:monthly_payment;type:decimal(15,2);not null;default:0" json:"monthly_payment"`
	Purpose        string          `gorm:"column:purpose;type:varchar(255)" json:"purpose"`

	OutstandingBalance decimal.Decimal `gorm:"column:outstanding_balance;type:decimal(15,2);not null;default:0" json:"outstanding_balance"`
	PrincipalBalance   decimal.Decimal `gorm:"column:principal_balance;type:decimal(15,2);not null;default:0" json:"principal_balance"`
	InterestBalance    decimal.Decimal `gorm:"column:interest_balance;type:decimal(15,2);not null;default:0" json:"interest_balance"`
	PenaltyBalance     decimal.Decimal `gorm:"column:penalty_balance;type:decimal(15,2);not null;default:0" json:"penalty_balance"`
	DaysInArrears      int             `gorm:"column:days_in_arrears;not null;default:0" json:"days_in_arrears"`

	Status          LoanStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	RejectionReason string     `gorm:"column:rejection_reason;type:varchar(255)" json:"rejection_reason"`
	ApprovedBy      string     `gorm:"column:approved_by;type:varchar(40)" json:"approved_by"`
	ApprovedAt      *time.Time `gorm:"column:approved_at" json:"approved_at"`
	DisbursedAt     *time.Time `gorm:"column:disbursed_at" json:"disbursed_at"`
	FirstDueDate    *time.Time `gorm:"column:first_due_date" json:"first_due_date"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

func (Loan) TableName() string { return "loans" }

// StartReview moves a pending application into review.
func (l *Loan) StartReview() error {
	if l.Status != LoanStatusPending {
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusUnderReview
	return nil
}

// Approve fixes the approved amount, rate and term.
func (l *Loan) Approve(amount, annualRate decimal.Decimal, termMonths int, approver string, at time.Time) error {
	switch l.Status {
	case LoanStatusPending, LoanStatusUnderReview:
	default:
		return ErrInvalidLoanState
	}
	l.ApprovedAmount = amount.Round(2)
	l.InterestRate = annualRate
	l.TermMonths = termMonths
	l.MonthlyPayment = MonthlyPayment(l.ApprovedAmount, annualRate, termMonths)
	l.ApprovedBy = approver
	l.ApprovedAt = &at
	l.Status = LoanStatusApproved
	return nil
}

// Reject closes an application before disbursement.
func (l *Loan) Reject(reason string) error {
	switch l.Status {
	case LoanStatusPending, LoanStatusUnderReview:
	default:
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusRejected
	l.RejectionReason = reason
	return nil
}

// MarkDisbursed initializes the balance split from the approved amount. The
// interest balance accrues as installments fall due, so it starts at zero.
func (l *Loan) MarkDisbursed(at time.Time, firstDue time.Time) error {
	if l.Status != LoanStatusApproved {
		return ErrLoanNotDisbursable
	}
	l.Status = LoanStatusDisbursed
	l.DisbursedAt = &at
	l.FirstDueDate = &firstDue
	l.PrincipalBalance = l.ApprovedAmount
	l.InterestBalance = decimal.Zero
	l.PenaltyBalance = decimal.Zero
	l.OutstandingBalance = l.ApprovedAmount
	return nil
}

// RevertDisbursement is the compensating action when the disbursement unit
// fails after the status flipped but before commit.
func (l *Loan) RevertDisbursement() {
	l.Status = LoanStatusApproved
	l.DisbursedAt = nil
	l.PrincipalBalance = decimal.Zero
	l.InterestBalance = decimal.Zero
	l.PenaltyBalance = decimal.Zero
	l.OutstandingBalance = decimal.Zero
}

// MarkActive moves a disbursed loan into servicing once the schedule exists.
func (l *Loan) MarkActive() error {
	if l.Status != LoanStatusDisbursed {
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusActive
	return nil
}

// Complete closes a loan whose outstanding balance reached zero.
func (l *Loan) Complete(at time.Time) error {
	switch l.Status {
	case LoanStatusActive, LoanStatusDisbursed:
	default:
		return ErrInvalidLoanState
	}
	if l.OutstandingBalance.IsPositive() {
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusCompleted
	l.CompletedAt = &at
	return nil
}

// MarkDefaulted flags an active loan as defaulted.
func (l *Loan) MarkDefaulted() error {
	if l.Status != LoanStatusActive {
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusDefaulted
	return nil
}

// WriteOff removes a defaulted or active loan from collectible books.
func (l *Loan) WriteOff() error {
	switch l.Status {
	case LoanStatusActive, LoanStatusDefaulted:
	default:
		return ErrInvalidLoanState
	}
	l.Status = LoanStatusWrittenOff
	return nil
}

// SyncBalances recomputes the outstanding balance from its components and
// validates the split.
func (l *Loan) SyncBalances() error {
	sum := l.PrincipalBalance.Add(l.InterestBalance).Add(l.PenaltyBalance)
	l.OutstandingBalance = sum
	if sum.IsNegative() {
		return ErrBalanceSplitInvalid
	}
	return nil
}

// IsOpen reports whether the loan still owes money.
func (l *Loan) IsOpen() bool {
	switch l.Status {
	case LoanStatusDisbursed, LoanStatusActive:
		return true
	default:
		return false
	}
}

// Guarantor records a member guaranteeing part of a loan. A hold for the
// guaranteed amount sits on the guarantor's deposits account while the loan
// is open.
type Guarantor struct {
	gorm.Model
	LoanID           string          `gorm:"column:loan_id;type:varchar(40);index;not null" json:"loan_id"`
	MemberID         string          `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	GuaranteedAmount decimal.Decimal `gorm:"column:guaranteed_amount;type:decimal(15,2);not null" json:"guaranteed_amount"`
	AccountID        string          `gorm:"column:account_id;type:varchar(40);not null" json:"account_id"`
	Released         bool            `gorm:"column:released;not null;default:false" json:"released"`
}

func (Guarantor) TableName() string { return "loan_guarantors" }
