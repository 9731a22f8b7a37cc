// Package mysql implements the notification repository on GORM.
package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/savacoop/saccocore/internal/notification/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, notification *domain.Notification) error {
	return r.db.WithContext(ctx).Save(notification).Error
}

func (r *Repository) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	var notification domain.Notification
	err := r.db.WithContext(ctx).Where("notification_id = ?", notificationID).First(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *Repository) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Notification{}).Where("member_id = ?", memberID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []*domain.Notification
	err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&notifications).Error
	return notifications, total, err
}

func (r *Repository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
