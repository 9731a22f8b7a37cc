// Package domain holds the notification entity and the sender boundary.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Channel is the delivery medium.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Status tracks delivery outcome.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is one queued message to a member. Target is the resolved
// address (phone number or email) at queue time.
type Notification struct {
	gorm.Model
	NotificationID string     `gorm:"column:notification_id;type:varchar(40);uniqueIndex;not null" json:"notification_id"`
	MemberID       string     `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	Channel        Channel    `gorm:"column:channel;type:varchar(10);not null" json:"channel"`
	Target         string     `gorm:"column:target;type:varchar(100);not null" json:"target"`
	Title          string     `gorm:"column:title;type:varchar(120)" json:"title"`
	Message        string     `gorm:"column:message;type:text" json:"message"`
	Status         Status     `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	ErrorMessage   string     `gorm:"column:error_message;type:text" json:"error_message"`
	SentAt         *time.Time `gorm:"column:sent_at" json:"sent_at"`
}

func (Notification) TableName() string { return "notifications" }

// MarkSent records successful delivery.
func (n *Notification) MarkSent(at time.Time) {
	n.Status = StatusSent
	n.SentAt = &at
	n.ErrorMessage = ""
}

// MarkFailed records a delivery failure for later inspection or retry.
func (n *Notification) MarkFailed(reason string) {
	n.Status = StatusFailed
	n.ErrorMessage = reason
}

// Sender delivers one message to a resolved target.
type Sender interface {
	Send(ctx context.Context, target, title, message string) error
}

// Repository persists notifications.
type Repository interface {
	Save(ctx context.Context, notification *Notification) error
	Get(ctx context.Context, notificationID string) (*Notification, error)
	ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*Notification, int64, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Notification, error)
}
