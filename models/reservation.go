package models

import (
	"time"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCheckedIn ReservationStatus = "checked_in"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ActiveStatuses are the states that occupy a resource's time window and
// therefore participate in conflict detection.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed, StatusCheckedIn}

type Reservation struct {
	ID             string            `json:"id"`
	ResourceID     string            `json:"resource_id"`
	OwnerID        string            `json:"owner_id"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	NumberOfPeople int               `json:"number_of_people"`
	Notes          string            `json:"notes,omitempty"`
	Status         ReservationStatus `json:"status"`
	CheckedInAt    *time.Time        `json:"checked_in_at,omitempty"`
	CheckedOutAt   *time.Time        `json:"checked_out_at,omitempty"`
	Created        time.Time         `json:"created"`
	Updated        time.Time         `json:"updated"`
}

// Overlaps reports whether the reservation's half-open interval
// [StartTime, EndTime) overlaps [start, end). Touching boundaries do not
// overlap.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// Slot is a candidate booking interval within a resource's operating hours.
type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
