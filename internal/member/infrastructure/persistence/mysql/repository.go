// Package mysql implements the member repository on GORM.
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/member/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, member *domain.Member) error {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	return conn.WithContext(ctx).Save(member).Error
}

func (r *Repository) Get(ctx context.Context, memberID string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *Repository) GetByNumber(ctx context.Context, memberNumber string) (*domain.Member, error) {
	var member domain.Member
	err := r.db.WithContext(ctx).Where("member_number = ?", memberNumber).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *Repository) List(ctx context.Context, status domain.Status, limit, offset int) ([]*domain.Member, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Member{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var members []*domain.Member
	err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&members).Error
	return members, total, err
}

func (r *Repository) ListActive(ctx context.Context, limit, offset int) ([]*domain.Member, error) {
	var members []*domain.Member
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.StatusActive).
		Order("id ASC").Limit(limit).Offset(offset).
		Find(&members).Error
	return members, err
}
