package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-system/apperror"
	"reservation-system/models"
)

func day(hour, min int) time.Time {
	return time.Date(2025, 8, 22, hour, min, 0, 0, time.UTC)
}

func seedReservation(repo *fakeRepo, resourceID string, start, end time.Time, status models.ReservationStatus) *models.Reservation {
	return repo.seed(&models.Reservation{
		ResourceID:     resourceID,
		OwnerID:        "owner-1",
		StartTime:      start,
		EndTime:        end,
		NumberOfPeople: 2,
		Status:         status,
	})
}

func TestCheckAvailability_OverlapCases(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAvailabilityService(repo, testConfig())
	ctx := context.Background()

	// room-1 is booked 14:00-15:00
	seedReservation(repo, "room-1", day(14, 0), day(15, 0), models.StatusConfirmed)

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
		free  bool
	}{
		{"identical interval", day(14, 0), day(15, 0), false},
		{"contained inside", day(14, 15), day(14, 45), false},
		{"overlaps start", day(13, 30), day(14, 30), false},
		{"overlaps end", day(14, 30), day(15, 30), false},
		{"covers entirely", day(13, 0), day(16, 0), false},
		{"touches at start boundary", day(13, 0), day(14, 0), true},
		{"touches at end boundary", day(15, 0), day(16, 0), true},
		{"disjoint before", day(10, 0), day(11, 0), true},
		{"disjoint after", day(17, 0), day(18, 0), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			free, err := svc.CheckAvailability(ctx, "room-1", tc.start, tc.end, "")
			require.NoError(t, err)
			assert.Equal(t, tc.free, free)
		})
	}
}

func TestCheckAvailability_IgnoresTerminalReservations(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAvailabilityService(repo, testConfig())

	seedReservation(repo, "room-1", day(14, 0), day(15, 0), models.StatusCancelled)
	seedReservation(repo, "room-1", day(16, 0), day(17, 0), models.StatusCompleted)

	free, err := svc.CheckAvailability(context.Background(), "room-1", day(14, 0), day(17, 0), "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestCheckAvailability_ExcludesOwnReservation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAvailabilityService(repo, testConfig())

	existing := seedReservation(repo, "room-1", day(14, 0), day(15, 0), models.StatusConfirmed)

	free, err := svc.CheckAvailability(context.Background(), "room-1", day(14, 0), day(15, 30), existing.ID)
	require.NoError(t, err)
	assert.True(t, free)
}

func TestCheckAvailability_OtherResourceDoesNotConflict(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAvailabilityService(repo, testConfig())

	seedReservation(repo, "room-2", day(14, 0), day(15, 0), models.StatusConfirmed)

	free, err := svc.CheckAvailability(context.Background(), "room-1", day(14, 0), day(15, 0), "")
	require.NoError(t, err)
	assert.True(t, free)
}

func TestCheckAvailability_InvalidInput(t *testing.T) {
	svc := NewAvailabilityService(newFakeRepo(), testConfig())
	ctx := context.Background()

	_, err := svc.CheckAvailability(ctx, "", day(14, 0), day(15, 0), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	_, err = svc.CheckAvailability(ctx, "room-1", day(15, 0), day(14, 0), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	_, err = svc.CheckAvailability(ctx, "room-1", day(14, 0), day(14, 0), "")
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
}

func TestAvailableSlots_EmptyDay(t *testing.T) {
	svc := NewAvailabilityService(newFakeRepo(), testConfig())

	slots, err := svc.AvailableSlots(context.Background(), "room-1", day(0, 0), 60)
	require.NoError(t, err)

	// 9:00 through 20:00 starts at a 30 minute stride.
	require.Len(t, slots, 23)
	assert.Equal(t, day(9, 0), slots[0].StartTime)
	assert.Equal(t, day(10, 0), slots[0].EndTime)
	assert.Equal(t, day(20, 0), slots[22].StartTime)
	assert.Equal(t, day(21, 0), slots[22].EndTime)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].StartTime.Before(slots[i].StartTime), "slots must be ascending")
	}
}

func TestAvailableSlots_SkipsBookedIntervals(t *testing.T) {
	repo := newFakeRepo()
	svc := NewAvailabilityService(repo, testConfig())

	seedReservation(repo, "room-1", day(14, 0), day(15, 0), models.StatusConfirmed)

	slots, err := svc.AvailableSlots(context.Background(), "room-1", day(0, 0), 60)
	require.NoError(t, err)

	for _, slot := range slots {
		overlap := slot.StartTime.Before(day(15, 0)) && day(14, 0).Before(slot.EndTime)
		assert.False(t, overlap, "slot %v overlaps the booking", slot)
	}

	// A slot ending exactly at 14:00 and one starting exactly at 15:00 both
	// survive.
	var ends14, starts15 bool
	for _, slot := range slots {
		if slot.EndTime.Equal(day(14, 0)) {
			ends14 = true
		}
		if slot.StartTime.Equal(day(15, 0)) {
			starts15 = true
		}
	}
	assert.True(t, ends14)
	assert.True(t, starts15)
}

func TestAvailableSlots_DurationLongerThanWindow(t *testing.T) {
	svc := NewAvailabilityService(newFakeRepo(), testConfig())

	slots, err := svc.AvailableSlots(context.Background(), "room-1", day(0, 0), 13*60)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlots_InvalidDuration(t *testing.T) {
	svc := NewAvailabilityService(newFakeRepo(), testConfig())

	_, err := svc.AvailableSlots(context.Background(), "room-1", day(0, 0), 0)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))

	_, err = svc.AvailableSlots(context.Background(), "room-1", day(0, 0), -30)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
}
