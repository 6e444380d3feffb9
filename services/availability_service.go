package services

import (
	"context"
	"time"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
)

// AvailabilityService answers whether a candidate interval is free and
// enumerates bookable slots. Two half-open intervals [s1,e1) and [s2,e2)
// conflict iff s1 < e2 && s2 < e1, so reservations that merely touch at a
// boundary do not conflict.
type AvailabilityService struct {
	repo ReservationRepository
	cfg  *config.Config
}

func NewAvailabilityService(repo ReservationRepository, cfg *config.Config) *AvailabilityService {
	return &AvailabilityService{repo: repo, cfg: cfg}
}

// CheckAvailability reports whether [start, end) is free on the resource.
// Reservations in pending, confirmed or checked_in state count as
// occupying; excludeReservationID is omitted from the conflict set so a
// reservation can be rescheduled over its own interval.
func (s *AvailabilityService) CheckAvailability(ctx context.Context, resourceID string, start, end time.Time, excludeReservationID string) (bool, error) {
	if resourceID == "" {
		return false, apperror.New(apperror.KindInvalidArgument, "resource id is required")
	}
	if !start.Before(end) {
		return false, apperror.New(apperror.KindInvalidArgument, "start time must be before end time")
	}

	existing, err := s.repo.FindByResourceAndWindow(ctx, resourceID, start, end)
	if err != nil {
		return false, err
	}

	for _, r := range existing {
		if r.ID == excludeReservationID {
			continue
		}
		if r.Status.Terminal() {
			continue
		}
		if r.Overlaps(start, end) {
			return false, nil
		}
	}

	return true, nil
}

// AvailableSlots walks candidate start times through the resource's
// operating window at a fixed stride and returns, in ascending order, every
// interval of the requested duration that fits inside the window and does
// not conflict with an existing reservation. Candidates whose end would
// exceed the operating window are omitted.
func (s *AvailabilityService) AvailableSlots(ctx context.Context, resourceID string, date time.Time, durationMinutes int) ([]models.Slot, error) {
	if resourceID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "resource id is required")
	}
	if durationMinutes <= 0 {
		return nil, apperror.New(apperror.KindInvalidArgument, "slot duration must be positive")
	}

	year, month, day := date.Date()
	open := time.Date(year, month, day, s.cfg.OperatingOpenHour, 0, 0, 0, date.Location())
	close := time.Date(year, month, day, s.cfg.OperatingCloseHour, 0, 0, 0, date.Location())

	reservations, err := s.repo.FindByResourceAndWindow(ctx, resourceID, open, close)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	slots := []models.Slot{}

	for start := open; !start.Add(duration).After(close); start = start.Add(s.cfg.SlotStride) {
		end := start.Add(duration)

		conflict := false
		for _, r := range reservations {
			if r.Status.Terminal() {
				continue
			}
			if r.Overlaps(start, end) {
				conflict = true
				break
			}
		}

		if !conflict {
			slots = append(slots, models.Slot{StartTime: start, EndTime: end})
		}
	}

	return slots, nil
}
