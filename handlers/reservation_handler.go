package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/models"
	"reservation-system/services"
)

type ReservationHandler struct {
	reservations *services.ReservationService
	availability *services.AvailabilityService
}

func NewReservationHandler(reservations *services.ReservationService, availability *services.AvailabilityService) *ReservationHandler {
	return &ReservationHandler{
		reservations: reservations,
		availability: availability,
	}
}

// CreateReservation books a time slot for the authenticated user.
func (h *ReservationHandler) CreateReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.CreateReservationRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reservation, err := h.reservations.Create(e.Request.Context(), e.Auth.Id, req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, reservation)
}

func (h *ReservationHandler) GetReservation(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reservation, err := h.reservations.GetByID(e.Request.Context(), e.Request.PathValue("reservationId"))
	if err != nil {
		return apiError(err)
	}
	if reservation.OwnerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, reservation)
}

func (h *ReservationHandler) ListMyReservations(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	status := models.ReservationStatus(e.Request.URL.Query().Get("status"))
	limit := queryInt(e, "limit", 50)
	offset := queryInt(e, "offset", 0)

	reservations, err := h.reservations.ListByOwner(e.Request.Context(), e.Auth.Id, status, limit, offset)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"reservations": reservations,
		"limit":        limit,
		"offset":       offset,
	})
}

// UpdateReservation edits times, party size or notes. Time changes go
// through the availability check again.
func (h *ReservationHandler) UpdateReservation(e *core.RequestEvent) error {
	reservation, err := h.ownedReservation(e)
	if err != nil {
		return err
	}

	var req services.UpdateReservationRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	updated, err := h.reservations.Update(e.Request.Context(), reservation.ID, req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, updated)
}

func (h *ReservationHandler) DeleteReservation(e *core.RequestEvent) error {
	reservation, err := h.ownedReservation(e)
	if err != nil {
		return err
	}

	if err := h.reservations.Delete(e.Request.Context(), reservation.ID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Reservation deleted"})
}

func (h *ReservationHandler) ConfirmReservation(e *core.RequestEvent) error {
	return h.transition(e, h.reservations.Confirm)
}

func (h *ReservationHandler) CheckIn(e *core.RequestEvent) error {
	return h.transition(e, h.reservations.CheckIn)
}

func (h *ReservationHandler) CheckOut(e *core.RequestEvent) error {
	return h.transition(e, h.reservations.CheckOut)
}

func (h *ReservationHandler) CancelReservation(e *core.RequestEvent) error {
	return h.transition(e, h.reservations.Cancel)
}

// GetAvailableSlots lists the free slots of a resource for one day.
func (h *ReservationHandler) GetAvailableSlots(e *core.RequestEvent) error {
	resourceID := e.Request.PathValue("resourceId")

	dateRaw := e.Request.URL.Query().Get("date")
	date, err := time.Parse("2006-01-02", dateRaw)
	if err != nil {
		return apis.NewBadRequestError("Date must be formatted as YYYY-MM-DD", err)
	}

	duration := queryInt(e, "duration", 60)

	slots, err := h.availability.AvailableSlots(e.Request.Context(), resourceID, date, duration)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"resource_id": resourceID,
		"date":        dateRaw,
		"slots":       slots,
	})
}

func (h *ReservationHandler) transition(e *core.RequestEvent, fn func(ctx context.Context, id string) (*models.Reservation, error)) error {
	reservation, err := h.ownedReservation(e)
	if err != nil {
		return err
	}

	updated, err := fn(e.Request.Context(), reservation.ID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, updated)
}

func (h *ReservationHandler) ownedReservation(e *core.RequestEvent) (*models.Reservation, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reservation, err := h.reservations.GetByID(e.Request.Context(), e.Request.PathValue("reservationId"))
	if err != nil {
		return nil, apiError(err)
	}
	if reservation.OwnerID != e.Auth.Id {
		return nil, apis.NewForbiddenError("Access denied", nil)
	}
	return reservation, nil
}
