package services

import (
	"time"

	"reservation-system/apperror"
	"reservation-system/models"
)

// validTransitions is the whole reservation state machine. Anything not
// listed here is illegal; terminal states have no outgoing edges.
var validTransitions = map[models.ReservationStatus][]models.ReservationStatus{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCheckedIn, models.StatusCancelled},
	models.StatusCheckedIn: {models.StatusCompleted, models.StatusCancelled},
}

func canTransition(from, to models.ReservationStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transitionError distinguishes a repeated terminal transition (cancel an
// already-cancelled reservation) from a genuinely illegal one.
func transitionError(from, to models.ReservationStatus) error {
	if from == to {
		return apperror.Newf(apperror.KindAlreadyInState, "reservation is already %s", from)
	}
	return apperror.Newf(apperror.KindInvalidStateTransition, "cannot transition reservation from %s to %s", from, to)
}

func guardTransition(r *models.Reservation, to models.ReservationStatus) error {
	if !canTransition(r.Status, to) {
		return transitionError(r.Status, to)
	}
	return nil
}

// guardCheckIn enforces the check-in guard: the reservation must be
// confirmed and the current time inside [startTime - grace, endTime).
func guardCheckIn(r *models.Reservation, now time.Time, grace time.Duration) error {
	if err := guardTransition(r, models.StatusCheckedIn); err != nil {
		return err
	}
	if now.Before(r.StartTime.Add(-grace)) {
		return apperror.Newf(apperror.KindInvalidStateTransition,
			"cannot transition reservation from %s to %s: check-in window opens at %s",
			r.Status, models.StatusCheckedIn, r.StartTime.Add(-grace).Format(time.RFC3339))
	}
	if !now.Before(r.EndTime) {
		return apperror.Newf(apperror.KindInvalidStateTransition,
			"cannot transition reservation from %s to %s: reservation ended at %s",
			r.Status, models.StatusCheckedIn, r.EndTime.Format(time.RFC3339))
	}
	return nil
}

func applyCheckIn(r *models.Reservation, now time.Time) {
	r.Status = models.StatusCheckedIn
	r.CheckedInAt = &now
}

func applyCheckOut(r *models.Reservation, now time.Time) {
	r.Status = models.StatusCompleted
	r.CheckedOutAt = &now
}
