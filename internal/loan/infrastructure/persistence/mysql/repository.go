// Package mysql implements the loan repositories on GORM.
package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/savacoop/saccocore/internal/loan/domain"
)

type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Save(ctx context.Context, tx *gorm.DB, loan *domain.Loan) error {
	return conn(r.db, tx).WithContext(ctx).Save(loan).Error
}

func (r *LoanRepository) Get(ctx context.Context, loanID string) (*domain.Loan, error) {
	var loan domain.Loan
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *LoanRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, loanID string) (*domain.Loan, error) {
	var loan domain.Loan
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ?", loanID).
		First(&loan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *LoanRepository) ListByMember(ctx context.Context, memberID string) ([]*domain.Loan, error) {
	var loans []*domain.Loan
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).Order("id ASC").Find(&loans).Error
	return loans, err
}

func (r *LoanRepository) ListByStatus(ctx context.Context, status domain.LoanStatus, limit, offset int) ([]*domain.Loan, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Loan{}).Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var loans []*domain.Loan
	err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&loans).Error
	return loans, total, err
}

type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (*domain.LoanProduct, error) {
	var product domain.LoanProduct
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *ProductRepository) ListActive(ctx context.Context) ([]*domain.LoanProduct, error) {
	var products []*domain.LoanProduct
	err := r.db.WithContext(ctx).Where("active = ?", true).Find(&products).Error
	return products, err
}

func (r *ProductRepository) Save(ctx context.Context, product *domain.LoanProduct) error {
	return r.db.WithContext(ctx).Save(product).Error
}

type RepaymentRepository struct {
	db *gorm.DB
}

func NewRepaymentRepository(db *gorm.DB) *RepaymentRepository {
	return &RepaymentRepository{db: db}
}

func (r *RepaymentRepository) SaveBatch(ctx context.Context, tx *gorm.DB, repayments []*domain.LoanRepayment) error {
	return conn(r.db, tx).WithContext(ctx).CreateInBatches(repayments, 100).Error
}

func (r *RepaymentRepository) Save(ctx context.Context, tx *gorm.DB, repayment *domain.LoanRepayment) error {
	return conn(r.db, tx).WithContext(ctx).Save(repayment).Error
}

func (r *RepaymentRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*domain.LoanRepayment, error) {
	var repayment domain.LoanRepayment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&repayment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &repayment, nil
}

func (r *RepaymentRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.LoanRepayment, error) {
	var repayments []*domain.LoanRepayment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("period_number ASC").
		Find(&repayments).Error
	return repayments, err
}

// ListDueByLoan returns unsettled installments in due-date order, locked for
// the duration of the caller's transaction.
func (r *RepaymentRepository) ListDueByLoan(ctx context.Context, tx *gorm.DB, loanID string) ([]*domain.LoanRepayment, error) {
	var repayments []*domain.LoanRepayment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ? AND status IN ?", loanID, []domain.RepaymentStatus{
			domain.RepaymentStatusPending,
			domain.RepaymentStatusPartial,
			domain.RepaymentStatusOverdue,
		}).
		Order("due_date ASC").
		Find(&repayments).Error
	return repayments, err
}

// ListOverdueCandidates pages through unsettled installments past due.
func (r *RepaymentRepository) ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*domain.LoanRepayment, error) {
	var repayments []*domain.LoanRepayment
	err := r.db.WithContext(ctx).
		Where("due_date < ? AND status IN ?", before, []domain.RepaymentStatus{
			domain.RepaymentStatusPending,
			domain.RepaymentStatusPartial,
			domain.RepaymentStatusOverdue,
		}).
		Order("due_date ASC").
		Limit(limit).Offset(offset).
		Find(&repayments).Error
	return repayments, err
}

type GuarantorRepository struct {
	db *gorm.DB
}

func NewGuarantorRepository(db *gorm.DB) *GuarantorRepository {
	return &GuarantorRepository{db: db}
}

func (r *GuarantorRepository) Save(ctx context.Context, tx *gorm.DB, guarantor *domain.Guarantor) error {
	return conn(r.db, tx).WithContext(ctx).Save(guarantor).Error
}

func (r *GuarantorRepository) ListByLoan(ctx context.Context, loanID string) ([]*domain.Guarantor, error) {
	var guarantors []*domain.Guarantor
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Find(&guarantors).Error
	return guarantors, err
}

func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
