// Package mysql implements the payment request repository on GORM.
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/savacoop/saccocore/internal/payment/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, request *domain.PaymentRequest) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Save(request).Error
}

func (r *Repository) GetByReference(ctx context.Context, reference string) (*domain.PaymentRequest, error) {
	var request domain.PaymentRequest
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *Repository) GetByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*domain.PaymentRequest, error) {
	var request domain.PaymentRequest
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *Repository) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.PaymentRequest, error) {
	var request domain.PaymentRequest
	err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *Repository) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.PaymentRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.PaymentRequest{}).Where("member_id = ?", memberID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var requests []*domain.PaymentRequest
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&requests).Error
	return requests, total, err
}
