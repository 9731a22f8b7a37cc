// Package application dispatches member notifications: persist first, then
// deliver through the configured sender.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	memberdomain "github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/internal/notification/domain"
	"github.com/savacoop/saccocore/pkg/metrics"
)

// Dispatcher queues and delivers notifications. Delivery failures are recorded
// on the row, never propagated to the business operation that triggered them.
type Dispatcher struct {
	notifications domain.Repository
	members       memberdomain.Repository
	senders       map[domain.Channel]domain.Sender
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewDispatcher(notifications domain.Repository, members memberdomain.Repository, senders map[domain.Channel]domain.Sender, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		members:       members,
		senders:       senders,
		metrics:       m,
		logger:        logger,
	}
}

// Notify resolves the member's address for the channel, persists the
// notification and attempts delivery. The row survives either way so failed
// sends can be retried by Redeliver.
func (d *Dispatcher) Notify(ctx context.Context, memberID, title, message, channel string) error {
	member, err := d.members.Get(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return memberdomain.ErrMemberNotFound
	}

	ch := domain.Channel(channel)
	target, err := resolveTarget(member, ch)
	if err != nil {
		return err
	}

	notification := &domain.Notification{
		NotificationID: newNotificationID(),
		MemberID:       memberID,
		Channel:        ch,
		Target:         target,
		Title:          title,
		Message:        message,
		Status:         domain.StatusPending,
	}
	if err := d.notifications.Save(ctx, notification); err != nil {
		return err
	}

	d.deliver(ctx, notification)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, notification *domain.Notification) {
	sender, ok := d.senders[notification.Channel]
	if !ok {
		notification.MarkFailed(fmt.Sprintf("no sender configured for channel %s", notification.Channel))
		if d.metrics != nil {
			d.metrics.NotificationsSentTotal.WithLabelValues(string(notification.Channel), "failed").Inc()
		}
		if err := d.notifications.Save(ctx, notification); err != nil {
			d.logger.ErrorContext(ctx, "failed to record notification failure",
				"notification_id", notification.NotificationID, "error", err)
		}
		return
	}

	if err := sender.Send(ctx, notification.Target, notification.Title, notification.Message); err != nil {
		notification.MarkFailed(err.Error())
		if d.metrics != nil {
			d.metrics.NotificationsSentTotal.WithLabelValues(string(notification.Channel), "failed").Inc()
		}
		d.logger.WarnContext(ctx, "notification delivery failed",
			"notification_id", notification.NotificationID,
			"channel", notification.Channel,
			"error", err,
		)
	} else {
		notification.MarkSent(time.Now())
		if d.metrics != nil {
			d.metrics.NotificationsSentTotal.WithLabelValues(string(notification.Channel), "sent").Inc()
		}
	}

	if err := d.notifications.Save(ctx, notification); err != nil {
		d.logger.ErrorContext(ctx, "failed to update notification status",
			"notification_id", notification.NotificationID, "error", err)
	}
}

// Redeliver retries up to limit failed notifications.
func (d *Dispatcher) Redeliver(ctx context.Context, limit int) (int, error) {
	failed, err := d.notifications.ListByStatus(ctx, domain.StatusFailed, limit)
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, notification := range failed {
		d.deliver(ctx, notification)
		if notification.Status == domain.StatusSent {
			retried++
		}
	}
	return retried, nil
}

// ListByMember pages a member's notification history.
func (d *Dispatcher) ListByMember(ctx context.Context, memberID string, limit, offset int) ([]*domain.Notification, int64, error) {
	return d.notifications.ListByMember(ctx, memberID, limit, offset)
}

func resolveTarget(member *memberdomain.Member, channel domain.Channel) (string, error) {
	switch channel {
	case domain.ChannelSMS:
		if member.Phone == "" {
			return "", fmt.Errorf("member %s has no phone number", member.MemberID)
		}
		return member.Phone, nil
	case domain.ChannelEmail:
		if member.Email == "" {
			return "", fmt.Errorf("member %s has no email address", member.MemberID)
		}
		return member.Email, nil
	default:
		return "", fmt.Errorf("unknown notification channel %q", channel)
	}
}

func newNotificationID() string {
	return "NTF-" + strings.ToUpper(uuid.NewString()[:12])
}
