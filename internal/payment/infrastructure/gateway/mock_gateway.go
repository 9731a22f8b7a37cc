// Package gateway holds mobile money gateway adapters behind the domain
// Gateway interface.
package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/savacoop/saccocore/internal/payment/domain"
	"github.com/savacoop/saccocore/pkg/logger"
)

// MockGateway accepts every push and fabricates a checkout request id. Used
// in development environments where no sandbox credentials exist.
type MockGateway struct{}

func NewMockGateway() domain.Gateway {
	return &MockGateway{}
}

func (g *MockGateway) Push(ctx context.Context, reference, payerIdentifier string, amount decimal.Decimal) (string, error) {
	checkoutRequestID := "CRQ-" + strings.ToUpper(uuid.NewString()[:12])
	logger.Info(ctx, "mock gateway push accepted",
		"reference", reference,
		"payer", payerIdentifier,
		"amount", amount.String(),
		"checkout_request_id", checkoutRequestID,
	)
	return checkoutRequestID, nil
}
