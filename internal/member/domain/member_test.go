package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMember() *Member {
	return &Member{
		MemberID:     "MBR-1",
		MemberNumber: "M00001",
		FirstName:    "Wanjiku",
		LastName:     "Njeri",
		NationalID:   "12345678",
		Phone:        "254700000001",
		Status:       StatusInactive,
		JoinedAt:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestMemberLifecycle(t *testing.T) {
	member := newMember()

	require.NoError(t, member.Activate())
	assert.Equal(t, StatusActive, member.Status)
	assert.ErrorIs(t, member.Activate(), ErrInvalidTransition)

	require.NoError(t, member.Suspend())
	assert.Equal(t, StatusSuspended, member.Status)
	assert.ErrorIs(t, member.Suspend(), ErrInvalidTransition)

	// A suspended member can be reinstated.
	require.NoError(t, member.Activate())
	assert.Equal(t, StatusActive, member.Status)
}

func TestMemberTerminationIsFinal(t *testing.T) {
	member := newMember()
	require.NoError(t, member.Activate())
	require.NoError(t, member.Terminate())
	assert.Equal(t, StatusTerminated, member.Status)

	assert.ErrorIs(t, member.Activate(), ErrMemberTerminated)
	assert.ErrorIs(t, member.Suspend(), ErrInvalidTransition)
	assert.ErrorIs(t, member.Terminate(), ErrInvalidTransition)
}

func TestMemberTerminateRequiresStanding(t *testing.T) {
	member := newMember()
	assert.ErrorIs(t, member.Terminate(), ErrInvalidTransition)
}

func TestMembershipMonths(t *testing.T) {
	member := newMember()

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"same day", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 0},
		{"day before anniversary", time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC), 5},
		{"on anniversary", time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), 6},
		{"across year boundary", time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC), 13},
		{"before joining", time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, member.MembershipMonths(tt.at))
		})
	}
}

func TestMemberFullName(t *testing.T) {
	assert.Equal(t, "Wanjiku Njeri", newMember().FullName())
}
