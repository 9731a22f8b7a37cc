package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	memberdomain "github.com/savacoop/saccocore/internal/member/domain"
	"github.com/savacoop/saccocore/internal/notification/domain"
	"github.com/savacoop/saccocore/pkg/metrics"
)

type fakeMemberRepo struct {
	members map[string]*memberdomain.Member
}

func (f *fakeMemberRepo) Save(_ context.Context, _ *gorm.DB, member *memberdomain.Member) error {
	f.members[member.MemberID] = member
	return nil
}

func (f *fakeMemberRepo) Get(_ context.Context, memberID string) (*memberdomain.Member, error) {
	return f.members[memberID], nil
}

func (f *fakeMemberRepo) GetByNumber(_ context.Context, memberNumber string) (*memberdomain.Member, error) {
	for _, member := range f.members {
		if member.MemberNumber == memberNumber {
			return member, nil
		}
	}
	return nil, nil
}

func (f *fakeMemberRepo) List(_ context.Context, _ memberdomain.Status, _, _ int) ([]*memberdomain.Member, int64, error) {
	return nil, 0, nil
}

func (f *fakeMemberRepo) ListActive(_ context.Context, _, _ int) ([]*memberdomain.Member, error) {
	return nil, nil
}

type fakeNotificationRepo struct {
	rows []*domain.Notification
}

func (f *fakeNotificationRepo) Save(_ context.Context, notification *domain.Notification) error {
	for i, row := range f.rows {
		if row.NotificationID == notification.NotificationID {
			f.rows[i] = notification
			return nil
		}
	}
	f.rows = append(f.rows, notification)
	return nil
}

func (f *fakeNotificationRepo) Get(_ context.Context, notificationID string) (*domain.Notification, error) {
	for _, row := range f.rows {
		if row.NotificationID == notificationID {
			return row, nil
		}
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ListByMember(_ context.Context, memberID string, _, _ int) ([]*domain.Notification, int64, error) {
	var out []*domain.Notification
	for _, row := range f.rows {
		if row.MemberID == memberID {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeNotificationRepo) ListByStatus(_ context.Context, status domain.Status, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, row := range f.rows {
		if row.Status == status && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeSender struct {
	targets []string
	err     error
}

func (f *fakeSender) Send(_ context.Context, target, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.targets = append(f.targets, target)
	return nil
}

func testDispatcher(repo *fakeNotificationRepo, sender *fakeSender) (*Dispatcher, *fakeMemberRepo) {
	members := &fakeMemberRepo{members: map[string]*memberdomain.Member{
		"MBR-1": {
			MemberID:     "MBR-1",
			MemberNumber: "M00001",
			Phone:        "254700000001",
			Email:        "wanjiku@example.com",
			Status:       memberdomain.StatusActive,
		},
	}}
	senders := map[domain.Channel]domain.Sender{domain.ChannelSMS: sender}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(repo, members, senders, metrics.New("notification_test"), logger), members
}

func TestNotifyDeliversAndPersists(t *testing.T) {
	repo := &fakeNotificationRepo{}
	sender := &fakeSender{}
	dispatcher, _ := testDispatcher(repo, sender)

	err := dispatcher.Notify(context.Background(), "MBR-1", "Deposit received", "Your deposit was credited.", "sms")
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	row := repo.rows[0]
	assert.Equal(t, domain.StatusSent, row.Status)
	assert.Equal(t, "254700000001", row.Target)
	assert.NotNil(t, row.SentAt)
	assert.Equal(t, []string{"254700000001"}, sender.targets)
}

func TestNotifyUnknownMember(t *testing.T) {
	dispatcher, _ := testDispatcher(&fakeNotificationRepo{}, &fakeSender{})

	err := dispatcher.Notify(context.Background(), "MBR-MISSING", "t", "m", "sms")
	assert.ErrorIs(t, err, memberdomain.ErrMemberNotFound)
}

func TestNotifyDeliveryFailureDoesNotPropagate(t *testing.T) {
	repo := &fakeNotificationRepo{}
	sender := &fakeSender{err: errors.New("provider down")}
	dispatcher, _ := testDispatcher(repo, sender)

	err := dispatcher.Notify(context.Background(), "MBR-1", "t", "m", "sms")
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, domain.StatusFailed, repo.rows[0].Status)
	assert.Equal(t, "provider down", repo.rows[0].ErrorMessage)
}

func TestNotifyMissingChannelSender(t *testing.T) {
	repo := &fakeNotificationRepo{}
	dispatcher, _ := testDispatcher(repo, &fakeSender{})

	err := dispatcher.Notify(context.Background(), "MBR-1", "t", "m", "email")
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, domain.StatusFailed, repo.rows[0].Status)
}

func TestRedeliverRetriesFailedRows(t *testing.T) {
	repo := &fakeNotificationRepo{}
	sender := &fakeSender{err: errors.New("provider down")}
	dispatcher, _ := testDispatcher(repo, sender)

	require.NoError(t, dispatcher.Notify(context.Background(), "MBR-1", "t", "m", "sms"))
	require.Equal(t, domain.StatusFailed, repo.rows[0].Status)

	sender.err = nil
	retried, err := dispatcher.Redeliver(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	assert.Equal(t, domain.StatusSent, repo.rows[0].Status)
}
