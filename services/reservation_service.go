package services

import (
	"context"
	"fmt"
	"time"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
	"reservation-system/monitoring"
)

// ReservationService owns every reservation mutation. Creation holds a
// per-resource lock across the availability check and the write; state
// transitions hold a per-reservation lock around a fresh read, so
// concurrent transitions resolve first-writer-wins and the loser gets a
// state error instead of silently overwriting.
type ReservationService struct {
	repo         ReservationRepository
	availability *AvailabilityService
	locker       Locker
	clock        Clock
	cfg          *config.Config
}

func NewReservationService(repo ReservationRepository, availability *AvailabilityService, locker Locker, clock Clock, cfg *config.Config) *ReservationService {
	return &ReservationService{
		repo:         repo,
		availability: availability,
		locker:       locker,
		clock:        clock,
		cfg:          cfg,
	}
}

type CreateReservationRequest struct {
	ResourceID     string    `json:"resource_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	NumberOfPeople int       `json:"number_of_people"`
	Notes          string    `json:"notes"`
}

func (req *CreateReservationRequest) validate() error {
	if req.ResourceID == "" {
		return apperror.New(apperror.KindInvalidArgument, "resource id is required")
	}
	if !req.StartTime.Before(req.EndTime) {
		return apperror.New(apperror.KindInvalidArgument, "start time must be before end time")
	}
	if req.NumberOfPeople < 1 {
		return apperror.New(apperror.KindInvalidArgument, "number of people must be at least 1")
	}
	return nil
}

// Create books the interval and stores the reservation in pending state.
func (s *ReservationService) Create(ctx context.Context, ownerID string, req CreateReservationRequest) (*models.Reservation, error) {
	if ownerID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "owner id is required")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	reservation := &models.Reservation{
		ResourceID:     req.ResourceID,
		OwnerID:        ownerID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		NumberOfPeople: req.NumberOfPeople,
		Notes:          req.Notes,
		Status:         models.StatusPending,
	}

	err := s.locker.WithLock(ctx, fmt.Sprintf("resource:%s", req.ResourceID), func() error {
		available, err := s.availability.CheckAvailability(ctx, req.ResourceID, req.StartTime, req.EndTime, "")
		if err != nil {
			return err
		}
		if !available {
			monitoring.TrackBookingConflict(req.ResourceID)
			return apperror.New(apperror.KindConflict, "time slot is not available")
		}
		return s.repo.Save(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackTransition("", string(models.StatusPending))
	return reservation, nil
}

type UpdateReservationRequest struct {
	StartTime      *time.Time `json:"start_time"`
	EndTime        *time.Time `json:"end_time"`
	NumberOfPeople *int       `json:"number_of_people"`
	Notes          *string    `json:"notes"`
}

// Update reschedules or edits a reservation. Terminal reservations cannot
// be updated; a time change re-checks availability with the reservation
// itself excluded from the conflict set and commits under the same
// resource lock, so the re-check stays atomic with its save.
func (s *ReservationService) Update(ctx context.Context, id string, req UpdateReservationRequest) (*models.Reservation, error) {
	if id == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "reservation id is required")
	}

	var out *models.Reservation
	err := s.locker.WithLock(ctx, fmt.Sprintf("reservation:%s", id), func() error {
		r, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return apperror.Newf(apperror.KindInvalidStateTransition, "cannot update a %s reservation", r.Status)
		}

		start, end := r.StartTime, r.EndTime
		if req.StartTime != nil {
			start = *req.StartTime
		}
		if req.EndTime != nil {
			end = *req.EndTime
		}
		if !start.Before(end) {
			return apperror.New(apperror.KindInvalidArgument, "start time must be before end time")
		}

		if req.StartTime != nil || req.EndTime != nil {
			return s.locker.WithLock(ctx, fmt.Sprintf("resource:%s", r.ResourceID), func() error {
				available, err := s.availability.CheckAvailability(ctx, r.ResourceID, start, end, r.ID)
				if err != nil {
					return err
				}
				if !available {
					monitoring.TrackBookingConflict(r.ResourceID)
					return apperror.New(apperror.KindConflict, "time slot is not available")
				}
				r.StartTime = start
				r.EndTime = end
				applyUpdateFields(r, req)
				if err := s.repo.Save(ctx, r); err != nil {
					return err
				}
				out = r
				return nil
			})
		}

		applyUpdateFields(r, req)
		if err := s.repo.Save(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyUpdateFields(r *models.Reservation, req UpdateReservationRequest) {
	if req.NumberOfPeople != nil && *req.NumberOfPeople >= 1 {
		r.NumberOfPeople = *req.NumberOfPeople
	}
	if req.Notes != nil {
		r.Notes = *req.Notes
	}
}

// Confirm applies pending -> confirmed. Triggered by the payment bridge on
// payment success.
func (s *ReservationService) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusConfirmed, func(r *models.Reservation) error {
		if err := guardTransition(r, models.StatusConfirmed); err != nil {
			return err
		}
		r.Status = models.StatusConfirmed
		return nil
	})
}

// CheckIn applies confirmed -> checked_in when inside the grace window.
func (s *ReservationService) CheckIn(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCheckedIn, func(r *models.Reservation) error {
		now := s.clock.Now()
		if err := guardCheckIn(r, now, s.cfg.GraceWindow); err != nil {
			return err
		}
		applyCheckIn(r, now)
		return nil
	})
}

// CheckOut applies checked_in -> completed.
func (s *ReservationService) CheckOut(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCompleted, func(r *models.Reservation) error {
		if err := guardTransition(r, models.StatusCompleted); err != nil {
			return err
		}
		applyCheckOut(r, s.clock.Now())
		return nil
	})
}

// Cancel is reachable from any non-terminal state. Cancelling twice fails
// with AlreadyInState, cancelling a completed reservation with
// InvalidStateTransition.
func (s *ReservationService) Cancel(ctx context.Context, id string) (*models.Reservation, error) {
	return s.transition(ctx, id, models.StatusCancelled, func(r *models.Reservation) error {
		if err := guardTransition(r, models.StatusCancelled); err != nil {
			return err
		}
		r.Status = models.StatusCancelled
		return nil
	})
}

func (s *ReservationService) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *ReservationService) ListByOwner(ctx context.Context, ownerID string, status models.ReservationStatus, limit, offset int) ([]*models.Reservation, error) {
	return s.repo.FindByOwner(ctx, ownerID, status, limit, offset)
}

// Delete removes the reservation record entirely. Deletion is not a
// lifecycle transition; terminal reservations otherwise persist.
func (s *ReservationService) Delete(ctx context.Context, id string) error {
	return s.locker.WithLock(ctx, fmt.Sprintf("reservation:%s", id), func() error {
		return s.repo.Delete(ctx, id)
	})
}

func (s *ReservationService) transition(ctx context.Context, id string, to models.ReservationStatus, mutate func(*models.Reservation) error) (*models.Reservation, error) {
	var from models.ReservationStatus
	r, err := s.withReservation(ctx, id, func(r *models.Reservation) error {
		from = r.Status
		return mutate(r)
	})
	if err != nil {
		return nil, err
	}
	monitoring.TrackTransition(string(from), string(to))
	return r, nil
}

// withReservation serializes the read-mutate-write cycle per reservation
// id. The reservation is re-read under the lock so the mutation always
// sees the latest committed state.
func (s *ReservationService) withReservation(ctx context.Context, id string, fn func(*models.Reservation) error) (*models.Reservation, error) {
	if id == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "reservation id is required")
	}

	var out *models.Reservation
	err := s.locker.WithLock(ctx, fmt.Sprintf("reservation:%s", id), func() error {
		r, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
