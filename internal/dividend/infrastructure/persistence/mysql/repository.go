// Package mysql implements the dividend repository on GORM.
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/dividend/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveDividend(ctx context.Context, tx *gorm.DB, dividend *domain.Dividend) error {
	return conn(r.db, tx).WithContext(ctx).Save(dividend).Error
}

func (r *Repository) GetDividend(ctx context.Context, dividendID string) (*domain.Dividend, error) {
	var dividend domain.Dividend
	err := r.db.WithContext(ctx).Where("dividend_id = ?", dividendID).First(&dividend).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dividend, nil
}

func (r *Repository) GetDividendByYear(ctx context.Context, year int) (*domain.Dividend, error) {
	var dividend domain.Dividend
	err := r.db.WithContext(ctx).Where("year = ?", year).First(&dividend).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dividend, nil
}

func (r *Repository) SaveMemberDividends(ctx context.Context, tx *gorm.DB, rows []*domain.MemberDividend) error {
	return conn(r.db, tx).WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (r *Repository) SaveMemberDividend(ctx context.Context, tx *gorm.DB, row *domain.MemberDividend) error {
	return conn(r.db, tx).WithContext(ctx).Save(row).Error
}

func (r *Repository) ListPending(ctx context.Context, dividendID string, limit int) ([]*domain.MemberDividend, error) {
	var rows []*domain.MemberDividend
	err := r.db.WithContext(ctx).
		Where("dividend_id = ? AND status = ?", dividendID, domain.MemberDividendPending).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CountPending(ctx context.Context, dividendID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MemberDividend{}).
		Where("dividend_id = ? AND status = ?", dividendID, domain.MemberDividendPending).
		Count(&count).Error
	return count, err
}

func (r *Repository) ListByDividend(ctx context.Context, dividendID string) ([]*domain.MemberDividend, error) {
	var rows []*domain.MemberDividend
	err := r.db.WithContext(ctx).
		Where("dividend_id = ?", dividendID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func conn(db, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return db
}
