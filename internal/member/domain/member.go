// Package domain holds the member aggregate: identity, KYC attributes and the
// membership status machine.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrMemberNotFound    = errors.New("member not found")
	ErrInvalidTransition = errors.New("invalid member status transition")
	ErrMemberTerminated  = errors.New("member is terminated")
)

// Status is the membership lifecycle state.
type Status string

const (
	StatusInactive   Status = "inactive"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
	StatusTerminated Status = "terminated"
)

// Member is a cooperative member. Occupation, employer and monthly income are
// KYC attributes the loan eligibility evaluator reads.
type Member struct {
	gorm.Model
	MemberID       string          `gorm:"column:member_id;type:varchar(40);uniqueIndex;not null" json:"member_id"`
	MemberNumber   string          `gorm:"column:member_number;type:varchar(20);uniqueIndex;not null" json:"member_number"`
	FirstName      string          `gorm:"column:first_name;type:varchar(60);not null" json:"first_name"`
	LastName       string          `gorm:"column:last_name;type:varchar(60);not null" json:"last_name"`
	NationalID     string          `gorm:"column:national_id;type:varchar(20);uniqueIndex;not null" json:"national_id"`
	Phone          string          `gorm:"column:phone;type:varchar(20);index;not null" json:"phone"`
	Email          string          `gorm:"column:email;type:varchar(120)" json:"email"`
	Occupation     string          `gorm:"column:occupation;type:varchar(80)" json:"occupation"`
	Employer       string          `gorm:"column:employer;type:varchar(120)" json:"employer"`
	MonthlyIncome  decimal.Decimal `gorm:"column:monthly_income;type:decimal(15,2);not null;default:0" json:"monthly_income"`
	Status         Status          `gorm:"column:status;type:varchar(20);index;not null;default:'inactive'" json:"status"`
	HasActiveLogin bool            `gorm:"column:has_active_login;not null;default:false" json:"has_active_login"`
	JoinedAt       time.Time       `gorm:"column:joined_at;not null" json:"joined_at"`
	PhotoPath      string          `gorm:"column:photo_path;type:varchar(255)" json:"photo_path"`
}

func (Member) TableName() string { return "members" }

// FullName joins the name parts for notification text.
func (m *Member) FullName() string {
	return m.FirstName + " " + m.LastName
}

// MembershipMonths is the whole number of months since joining, as at.
func (m *Member) MembershipMonths(at time.Time) int {
	months := (at.Year()-m.JoinedAt.Year())*12 + int(at.Month()) - int(m.JoinedAt.Month())
	if at.Day() < m.JoinedAt.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Activate moves an inactive or suspended member to active.
func (m *Member) Activate() error {
	switch m.Status {
	case StatusInactive, StatusSuspended:
		m.Status = StatusActive
		return nil
	case StatusTerminated:
		return ErrMemberTerminated
	default:
		return ErrInvalidTransition
	}
}

// Suspend moves an active member to suspended.
func (m *Member) Suspend() error {
	if m.Status != StatusActive {
		return ErrInvalidTransition
	}
	m.Status = StatusSuspended
	return nil
}

// Terminate ends membership permanently.
func (m *Member) Terminate() error {
	switch m.Status {
	case StatusActive, StatusSuspended:
		m.Status = StatusTerminated
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Repository persists members.
type Repository interface {
	Save(ctx context.Context, tx *gorm.DB, member *Member) error
	Get(ctx context.Context, memberID string) (*Member, error)
	GetByNumber(ctx context.Context, memberNumber string) (*Member, error)
	List(ctx context.Context, status Status, limit, offset int) ([]*Member, int64, error)
	ListActive(ctx context.Context, limit, offset int) ([]*Member, error)
}
