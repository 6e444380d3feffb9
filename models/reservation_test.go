package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReservationStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusConfirmed.Terminal())
	assert.False(t, StatusCheckedIn.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestReservation_Overlaps(t *testing.T) {
	base := time.Date(2025, 8, 22, 14, 0, 0, 0, time.UTC)
	r := &Reservation{
		StartTime: base,
		EndTime:   base.Add(time.Hour),
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  bool
	}{
		{"identical window", base, base.Add(time.Hour), true},
		{"contained inside", base.Add(15 * time.Minute), base.Add(45 * time.Minute), true},
		{"overlaps start", base.Add(-30 * time.Minute), base.Add(30 * time.Minute), true},
		{"overlaps end", base.Add(30 * time.Minute), base.Add(90 * time.Minute), true},
		{"surrounds", base.Add(-time.Hour), base.Add(2 * time.Hour), true},
		{"ends at start", base.Add(-time.Hour), base, false},
		{"starts at end", base.Add(time.Hour), base.Add(2 * time.Hour), false},
		{"well before", base.Add(-3 * time.Hour), base.Add(-2 * time.Hour), false},
		{"well after", base.Add(3 * time.Hour), base.Add(4 * time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Overlaps(tc.start, tc.end))
		})
	}
}

func TestActiveStatuses(t *testing.T) {
	for _, s := range ActiveStatuses {
		assert.False(t, s.Terminal(), "active status %s must not be terminal", s)
	}
}
