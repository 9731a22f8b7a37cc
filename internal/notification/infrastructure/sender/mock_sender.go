package sender

import (
	"context"

	"github.com/savacoop/saccocore/internal/notification/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

// MockSMSSender logs instead of sending. Used in development environments.
type MockSMSSender struct{}

func NewMockSMSSender() domain.Sender {
	return &MockSMSSender{}
}

func (s *MockSMSSender) Send(ctx context.Context, target, title, message string) error {
	logger.Info(ctx, "sending sms notification",
		"sender", "MockSMSSender",
		"target", target,
		"title", title,
	)
	return nil
}

// MockEmailSender logs instead of sending.
type MockEmailSender struct{}

func NewMockEmailSender() domain.Sender {
	return &MockEmailSender{}
}

func (s *MockEmailSender) Send(ctx context.Context, target, title, message string) error {
	logger.Info(ctx, "sending email notification",
		"sender", "MockEmailSender",
		"target", target,
		"title", title,
		"message_length", len(message),
	)
	return nil
}
