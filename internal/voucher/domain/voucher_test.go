package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingVoucher() *PaymentVoucher {
	return &PaymentVoucher{
		VoucherID:   "VCH-1",
		MemberID:    "MBR-1",
		Payee:       "Wanjiku Njeri",
		Amount:      decimal.NewFromInt(50000),
		Purpose:     PurposeLoanDisbursement,
		Status:      StatusPending,
		RequestedBy: "USR-CLERK",
	}
}

func TestVoucherApprovalFlow(t *testing.T) {
	voucher := pendingVoucher()
	now := time.Now()

	assert.ErrorIs(t, voucher.MarkPaid("TXN-1", now), ErrInvalidTransition)

	require.NoError(t, voucher.Approve("USR-TREASURER", now))
	assert.Equal(t, StatusApproved, voucher.Status)
	assert.Equal(t, "USR-TREASURER", voucher.ApprovedBy)
	assert.ErrorIs(t, voucher.Approve("USR-TREASURER", now), ErrInvalidTransition)

	require.NoError(t, voucher.MarkPaid("TXN-1", now))
	assert.Equal(t, StatusPaid, voucher.Status)
	assert.Equal(t, "TXN-1", voucher.TransactionID)
	assert.NotNil(t, voucher.PaidAt)
}

func TestVoucherReject(t *testing.T) {
	voucher := pendingVoucher()
	now := time.Now()

	require.NoError(t, voucher.Reject("USR-TREASURER", now))
	assert.Equal(t, StatusRejected, voucher.Status)

	assert.ErrorIs(t, voucher.Approve("USR-TREASURER", now), ErrInvalidTransition)
	assert.ErrorIs(t, voucher.Cancel(), ErrInvalidTransition)
}

func TestVoucherCancel(t *testing.T) {
	now := time.Now()

	pending := pendingVoucher()
	require.NoError(t, pending.Cancel())
	assert.Equal(t, StatusCancelled, pending.Status)

	approved := pendingVoucher()
	require.NoError(t, approved.Approve("USR-TREASURER", now))
	require.NoError(t, approved.Cancel())
	assert.Equal(t, StatusCancelled, approved.Status)
}

func TestPaidVoucherImmutable(t *testing.T) {
	voucher := pendingVoucher()
	now := time.Now()
	require.NoError(t, voucher.Approve("USR-TREASURER", now))
	require.NoError(t, voucher.MarkPaid("TXN-1", now))

	assert.ErrorIs(t, voucher.Cancel(), ErrVoucherImmutable)
	assert.ErrorIs(t, voucher.Approve("USR-X", now), ErrInvalidTransition)
	assert.ErrorIs(t, voucher.MarkPaid("TXN-2", now), ErrInvalidTransition)
	assert.Equal(t, "TXN-1", voucher.TransactionID)
}
