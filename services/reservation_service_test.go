package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-system/apperror"
	"reservation-system/models"
)

func setupReservationService(now time.Time) (*ReservationService, *fakeRepo, *fakeClock) {
	repo := newFakeRepo()
	cfg := testConfig()
	clock := newFakeClock(now)
	availability := NewAvailabilityService(repo, cfg)
	svc := NewReservationService(repo, availability, &memLocker{}, clock, cfg)
	return svc, repo, clock
}

func TestCreateReservation(t *testing.T) {
	svc, repo, _ := setupReservationService(day(8, 0))

	reservation, err := svc.Create(context.Background(), "user-1", CreateReservationRequest{
		ResourceID:     "room-1",
		StartTime:      day(14, 0),
		EndTime:        day(15, 0),
		NumberOfPeople: 4,
		Notes:          "window seat",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, reservation.ID)
	assert.Equal(t, models.StatusPending, reservation.Status)
	assert.Equal(t, "user-1", reservation.OwnerID)
	assert.Equal(t, 4, reservation.NumberOfPeople)
	assert.NotNil(t, repo.get(reservation.ID))
}

func TestCreateReservation_ConflictingSlot(t *testing.T) {
	svc, _, _ := setupReservationService(day(8, 0))
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", CreateReservationRequest{
		ResourceID: "room-1", StartTime: day(14, 0), EndTime: day(15, 0), NumberOfPeople: 2,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "user-2", CreateReservationRequest{
		ResourceID: "room-1", StartTime: day(14, 30), EndTime: day(15, 30), NumberOfPeople: 2,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// Adjacent interval is fine.
	_, err = svc.Create(ctx, "user-2", CreateReservationRequest{
		ResourceID: "room-1", StartTime: day(15, 0), EndTime: day(16, 0), NumberOfPeople: 2,
	})
	assert.NoError(t, err)
}

func TestCreateReservation_Validation(t *testing.T) {
	svc, _, _ := setupReservationService(day(8, 0))
	ctx := context.Background()

	cases := []struct {
		name string
		own  string
		req  CreateReservationRequest
	}{
		{"missing owner", "", CreateReservationRequest{ResourceID: "room-1", StartTime: day(14, 0), EndTime: day(15, 0), NumberOfPeople: 1}},
		{"missing resource", "user-1", CreateReservationRequest{StartTime: day(14, 0), EndTime: day(15, 0), NumberOfPeople: 1}},
		{"end before start", "user-1", CreateReservationRequest{ResourceID: "room-1", StartTime: day(15, 0), EndTime: day(14, 0), NumberOfPeople: 1}},
		{"zero people", "user-1", CreateReservationRequest{ResourceID: "room-1", StartTime: day(14, 0), EndTime: day(15, 0)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.own, tc.req)
			assert.True(t, apperror.IsKind(err, apperror.KindInvalidArgument))
		})
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	svc, _, clock := setupReservationService(day(13, 50))
	ctx := context.Background()

	reservation, err := svc.Create(ctx, "user-1", CreateReservationRequest{
		ResourceID: "room-1", StartTime: day(14, 0), EndTime: day(15, 0), NumberOfPeople: 2,
	})
	require.NoError(t, err)

	reservation, err = svc.Confirm(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, reservation.Status)

	reservation, err = svc.CheckIn(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCheckedIn, reservation.Status)
	require.NotNil(t, reservation.CheckedInAt)
	assert.Equal(t, clock.Now(), *reservation.CheckedInAt)

	clock.Advance(40 * time.Minute)

	reservation, err = svc.CheckOut(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, reservation.Status)
	require.NotNil(t, reservation.CheckedOutAt)
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	svc, repo, _ := setupReservationService(day(13, 50))
	ctx := context.Background()

	pending := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 2, Status: models.StatusPending,
	})

	// pending cannot check in or out.
	_, err := svc.CheckIn(ctx, pending.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
	_, err = svc.CheckOut(ctx, pending.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))

	// Confirming twice reports the repeat distinctly.
	_, err = svc.Confirm(ctx, pending.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, pending.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyInState))
}

func TestCancel(t *testing.T) {
	svc, repo, _ := setupReservationService(day(13, 50))
	ctx := context.Background()

	for _, status := range []models.ReservationStatus{models.StatusPending, models.StatusConfirmed, models.StatusCheckedIn} {
		r := repo.seed(&models.Reservation{
			ResourceID: "room-1", OwnerID: "user-1",
			StartTime: day(14, 0), EndTime: day(15, 0),
			NumberOfPeople: 1, Status: status,
		})
		cancelled, err := svc.Cancel(ctx, r.ID)
		require.NoError(t, err, "cancel from %s", status)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	}

	// Double cancel.
	r := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 1, Status: models.StatusCancelled,
	})
	_, err := svc.Cancel(ctx, r.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindAlreadyInState))

	// Completed reservations stay completed.
	r = repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 1, Status: models.StatusCompleted,
	})
	_, err = svc.Cancel(ctx, r.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
}

func TestCheckIn_GraceWindow(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		ok   bool
	}{
		{"too early", day(13, 40), false},
		{"grace boundary", day(13, 45), true},
		{"during reservation", day(14, 30), true},
		{"at end", day(15, 0), false},
		{"after end", day(15, 30), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := setupReservationService(tc.now)
			r := repo.seed(&models.Reservation{
				ResourceID: "room-1", OwnerID: "user-1",
				StartTime: day(14, 0), EndTime: day(15, 0),
				NumberOfPeople: 1, Status: models.StatusConfirmed,
			})

			_, err := svc.CheckIn(context.Background(), r.ID)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
			}
		})
	}
}

func TestUpdateReservation(t *testing.T) {
	svc, repo, _ := setupReservationService(day(8, 0))
	ctx := context.Background()

	r := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 2, Status: models.StatusPending,
	})
	seedReservation(repo, "room-1", day(16, 0), day(17, 0), models.StatusConfirmed)

	// Reschedule over its own interval succeeds.
	newEnd := day(15, 30)
	updated, err := svc.Update(ctx, r.ID, UpdateReservationRequest{EndTime: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, newEnd, updated.EndTime)

	// Rescheduling into another booking conflicts.
	clashEnd := day(16, 30)
	_, err = svc.Update(ctx, r.ID, UpdateReservationRequest{EndTime: &clashEnd})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// Non-time fields skip the availability check.
	people := 6
	notes := "birthday"
	updated, err = svc.Update(ctx, r.ID, UpdateReservationRequest{NumberOfPeople: &people, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.NumberOfPeople)
	assert.Equal(t, "birthday", updated.Notes)
}

func TestUpdateReservation_TerminalBlocked(t *testing.T) {
	svc, repo, _ := setupReservationService(day(8, 0))

	r := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 2, Status: models.StatusCancelled,
	})

	notes := "late edit"
	_, err := svc.Update(context.Background(), r.ID, UpdateReservationRequest{Notes: &notes})
	assert.True(t, apperror.IsKind(err, apperror.KindInvalidStateTransition))
}

func TestDeleteReservation(t *testing.T) {
	svc, repo, _ := setupReservationService(day(8, 0))
	ctx := context.Background()

	r := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(14, 0), EndTime: day(15, 0),
		NumberOfPeople: 2, Status: models.StatusPending,
	})

	require.NoError(t, svc.Delete(ctx, r.ID))
	assert.Nil(t, repo.get(r.ID))

	err := svc.Delete(ctx, r.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestGetByID_NotFound(t *testing.T) {
	svc, _, _ := setupReservationService(day(8, 0))

	_, err := svc.GetByID(context.Background(), "missing")
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestUpdateReservation_RescheduleCommitsUnderResourceLock(t *testing.T) {
	svc, repo, _ := setupReservationService(day(8, 0))
	ctx := context.Background()

	r := repo.seed(&models.Reservation{
		ResourceID: "room-1", OwnerID: "user-1",
		StartTime: day(10, 0), EndTime: day(11, 0),
		NumberOfPeople: 2, Status: models.StatusPending,
	})

	// A competing booking for the rescheduled interval fires while the
	// reschedule's save is committing. It must block on the resource lock
	// and then observe the committed interval as a conflict.
	createErr := make(chan error, 1)
	var once sync.Once
	repo.saveHook = func(saved *models.Reservation) {
		if saved.ID != r.ID {
			return
		}
		once.Do(func() {
			go func() {
				_, err := svc.Create(ctx, "user-2", CreateReservationRequest{
					ResourceID: "room-1", StartTime: day(14, 0), EndTime: day(15, 0), NumberOfPeople: 2,
				})
				createErr <- err
			}()
			time.Sleep(20 * time.Millisecond)
		})
	}

	newStart, newEnd := day(14, 0), day(15, 0)
	updated, err := svc.Update(ctx, r.ID, UpdateReservationRequest{StartTime: &newStart, EndTime: &newEnd})
	require.NoError(t, err)
	assert.Equal(t, newStart, updated.StartTime)

	assert.True(t, apperror.IsKind(<-createErr, apperror.KindConflict))

	occupying, err := repo.FindByResourceAndWindow(ctx, "room-1", day(14, 0), day(15, 0))
	require.NoError(t, err)
	require.Len(t, occupying, 1)
	assert.Equal(t, r.ID, occupying[0].ID)
}
