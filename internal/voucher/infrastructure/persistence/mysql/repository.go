// Package mysql implements the voucher repository on GORM.
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/voucher/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, voucher *domain.PaymentVoucher) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Save(voucher).Error
}

func (r *Repository) Get(ctx context.Context, voucherID string) (*domain.PaymentVoucher, error) {
	var voucher domain.PaymentVoucher
	err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.PaymentVoucher, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.PaymentVoucher{}).Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vouchers []*domain.PaymentVoucher
	err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&vouchers).Error
	return vouchers, total, err
}
