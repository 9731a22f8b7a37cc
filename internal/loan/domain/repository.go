package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// LoanRepository persists loans.
type LoanRepository interface {
	Save(ctx context.Context, tx *gorm.DB, loan *Loan) error
	Get(ctx context.Context, loanID string) (*Loan, error)
	GetForUpdate(ctx context.Context, tx *gorm.DB, loanID string) (*Loan, error)
	ListByMember(ctx context.Context, memberID string) ([]*Loan, error)
	ListByStatus(ctx context.Context, status LoanStatus, limit, offset int) ([]*Loan, int64, error)
}

// ProductRepository reads loan products.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (*LoanProduct, error)
	ListActive(ctx context.Context) ([]*LoanProduct, error)
	Save(ctx context.Context, product *LoanProduct) error
}

// RepaymentRepository persists installments. GetForUpdate takes a row lock so
// the arrears sweep and concurrent repayments serialize on the installment.
type RepaymentRepository interface {
	SaveBatch(ctx context.Context, tx *gorm.DB, repayments []*LoanRepayment) error
	Save(ctx context.Context, tx *gorm.DB, repayment *LoanRepayment) error
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*LoanRepayment, error)
	ListByLoan(ctx context.Context, loanID string) ([]*LoanRepayment, error)
	ListDueByLoan(ctx context.Context, tx *gorm.DB, loanID string) ([]*LoanRepayment, error)
	ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*LoanRepayment, error)
}

// GuarantorRepository persists loan guarantors.
type GuarantorRepository interface {
	Save(ctx context.Context, tx *gorm.DB, guarantor *Guarantor) error
	ListByLoan(ctx context.Context, loanID string) ([]*Guarantor, error)
}
