// Package domain holds the yearly dividend aggregate and its per-member
// apportionment.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDividendNotFound  = errors.New("dividend not found")
	ErrInvalidTransition = errors.New("invalid dividend status transition")
	ErrEmptyShareBase    = errors.New("no members hold shares for this period")
	ErrAlreadyCalculated = errors.New("dividend for this year already calculated")
)

// Status is the dividend header lifecycle.
type Status string

const (
	StatusCalculated  Status = "calculated"
	StatusApproved    Status = "approved"
	StatusDistributed Status = "distributed"
)

// MemberDividendStatus is the per-member payout state.
type MemberDividendStatus string

const (
	MemberDividendPending MemberDividendStatus = "pending"
	MemberDividendPaid    MemberDividendStatus = "paid"
)

// Dividend is the yearly aggregate. TotalDividends is the declared pool; the
// per-member rows sum to it within a rounding epsilon of one cent per member.
type Dividend struct {
	gorm.Model
	DividendID     string          `gorm:"column:dividend_id;type:varchar(40);uniqueIndex;not null" json:"dividend_id"`
	Year           int             `gorm:"column:year;uniqueIndex;not null" json:"year"`
	TotalDividends decimal.Decimal `gorm:"column:total_dividends;type:decimal(15,2);not null" json:"total_dividends"`
	// Effective payout rate over the share base, informational.
	Rate          decimal.Decimal `gorm:"column:rate;type:decimal(5,4);not null;default:0" json:"rate"`
	Status        Status          `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	ApprovedBy    string          `gorm:"column:approved_by;type:varchar(40)" json:"approved_by"`
	DistributedAt *time.Time      `gorm:"column:distributed_at" json:"distributed_at"`
}

func (Dividend) TableName() string { return "dividends" }

// Approve records board sign-off on a calculated dividend.
func (d *Dividend) Approve(approver string) error {
	if d.Status != StatusCalculated {
		return ErrInvalidTransition
	}
	d.Status = StatusApproved
	d.ApprovedBy = approver
	return nil
}

// MarkDistributed closes the dividend after every member row is paid.
func (d *Dividend) MarkDistributed(at time.Time) error {
	if d.Status != StatusApproved {
		return ErrInvalidTransition
	}
	d.Status = StatusDistributed
	d.DistributedAt = &at
	return nil
}

// MemberDividend is one member's slice of a dividend pool.
type MemberDividend struct {
	gorm.Model
	DividendID     string               `gorm:"column:dividend_id;type:varchar(40);index;not null" json:"dividend_id"`
	MemberID       string               `gorm:"column:member_id;type:varchar(40);index;not null" json:"member_id"`
	ShareBalance   decimal.Decimal      `gorm:"column:share_balance;type:decimal(15,2);not null" json:"share_balance"`
	DividendAmount decimal.Decimal      `gorm:"column:dividend_amount;type:decimal(15,2);not null" json:"dividend_amount"`
	Status         MemberDividendStatus `gorm:"column:status;type:varchar(20);index;not null;default:'pending'" json:"status"`
	TransactionID  string               `gorm:"column:transaction_id;type:varchar(64)" json:"transaction_id"`
	PaidAt         *time.Time           `gorm:"column:paid_at" json:"paid_at"`
}

func (MemberDividend) TableName() string { return "member_dividends" }

// ShareHolding is one member's share capital balance at calculation time.
type ShareHolding struct {
	MemberID string
	Shares   decimal.Decimal
}

// Apportion splits the pool across holdings in proportion to shares, each row
// rounded to the cent. The rounding error of the row sum against the pool is
// bounded by one cent per member.
func Apportion(dividendID string, pool decimal.Decimal, totalShares decimal.Decimal, holdings []ShareHolding) []*MemberDividend {
	rows := make([]*MemberDividend, 0, len(holdings))
	for _, h := range holdings {
		amount := h.Shares.Mul(pool).Div(totalShares).Round(2)
		rows = append(rows, &MemberDividend{
			DividendID:     dividendID,
			MemberID:       h.MemberID,
			ShareBalance:   h.Shares,
			DividendAmount: amount,
			Status:         MemberDividendPending,
		})
	}
	return rows
}

// Repository persists dividend headers and member rows.
type Repository interface {
	SaveDividend(ctx context.Context, tx *gorm.DB, dividend *Dividend) error
	GetDividend(ctx context.Context, dividendID string) (*Dividend, error)
	GetDividendByYear(ctx context.Context, year int) (*Dividend, error)
	SaveMemberDividends(ctx context.Context, tx *gorm.DB, rows []*MemberDividend) error
	SaveMemberDividend(ctx context.Context, tx *gorm.DB, row *MemberDividend) error
	ListPending(ctx context.Context, dividendID string, limit int) ([]*MemberDividend, error)
	CountPending(ctx context.Context, dividendID string) (int64, error)
	ListByDividend(ctx context.Context, dividendID string) ([]*MemberDividend, error)
}
