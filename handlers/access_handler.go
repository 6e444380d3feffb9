package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/config"
	"reservation-system/services"
)

const (
	headerDeviceID  = "X-Device-Id"
	headerDeviceKey = "X-Device-Api-Key"
)

// AccessHandler issues QR tokens and processes device scans.
type AccessHandler struct {
	tokens       *services.TokenService
	access       *services.AccessService
	reservations *services.ReservationService
	devices      *services.DeviceService
	cfg          *config.Config
}

func NewAccessHandler(tokens *services.TokenService, access *services.AccessService, reservations *services.ReservationService, devices *services.DeviceService, cfg *config.Config) *AccessHandler {
	return &AccessHandler{
		tokens:       tokens,
		access:       access,
		reservations: reservations,
		devices:      devices,
		cfg:          cfg,
	}
}

// IssueReservationToken returns the QR payload for a reservation. Only the
// owner can request it, and only while the reservation is still live.
func (h *AccessHandler) IssueReservationToken(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reservationID := e.Request.PathValue("reservationId")
	reservation, err := h.reservations.GetByID(e.Request.Context(), reservationID)
	if err != nil {
		return apiError(err)
	}
	if reservation.OwnerID != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}
	if reservation.Status.Terminal() {
		return apis.NewBadRequestError("Reservation is no longer active", nil)
	}

	claims, err := h.tokens.IssueReservationToken(reservation.ID, e.Auth.Id, h.cfg.TokenTTL)
	if err != nil {
		return apiError(err)
	}

	payload, err := claims.Encode()
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"qr_code":    payload,
		"claims":     claims,
		"expires_at": claims.ExpiresAt,
	})
}

// IssueResourceToken mints a long-lived token bound to a resource rather
// than a reservation. Staff only.
func (h *AccessHandler) IssueResourceToken(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	claims, err := h.tokens.IssueResourceToken(e.Request.PathValue("resourceId"), h.cfg.ResourceTokenTTL)
	if err != nil {
		return apiError(err)
	}

	payload, err := claims.Encode()
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"qr_code":    payload,
		"claims":     claims,
		"expires_at": claims.ExpiresAt,
	})
}

// VerifyToken checks a token's signature and expiry without touching any
// reservation state.
func (h *AccessHandler) VerifyToken(e *core.RequestEvent) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	claims, err := h.tokens.Verify(req.Token)
	if err != nil {
		return e.JSON(http.StatusOK, map[string]any{
			"valid":  false,
			"reason": err.Error(),
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"valid":  true,
		"claims": claims,
	})
}

// ScanCheckIn handles a check-in scan from a gate device.
func (h *AccessHandler) ScanCheckIn(e *core.RequestEvent) error {
	if err := h.authenticateDevice(e); err != nil {
		return err
	}

	var req struct {
		Token     string `json:"token"`
		SubjectID string `json:"subject_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reservation, err := h.access.EvaluateCheckIn(e.Request.Context(), req.Token, req.SubjectID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":     "Checked in",
		"reservation": reservation,
	})
}

// ScanCheckOut handles a check-out scan from a gate device.
func (h *AccessHandler) ScanCheckOut(e *core.RequestEvent) error {
	if err := h.authenticateDevice(e); err != nil {
		return err
	}

	var req struct {
		Token     string `json:"token"`
		SubjectID string `json:"subject_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	reservation, err := h.access.EvaluateCheckOut(e.Request.Context(), req.Token, req.SubjectID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message":     "Checked out",
		"reservation": reservation,
	})
}

// ScanAccess gates a door or lock scan. A denial is a 200 with
// granted=false; errors are reserved for infrastructure failures.
func (h *AccessHandler) ScanAccess(e *core.RequestEvent) error {
	if err := h.authenticateDevice(e); err != nil {
		return err
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	decision, err := h.access.EvaluateDeviceAccess(e.Request.Context(), req.Token, e.Request.Header.Get(headerDeviceID))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, decision)
}

// GetScanHistory lists the audit records of a reservation.
func (h *AccessHandler) GetScanHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	reservationID := e.Request.PathValue("reservationId")
	reservation, err := h.reservations.GetByID(e.Request.Context(), reservationID)
	if err != nil {
		return apiError(err)
	}
	if reservation.OwnerID != e.Auth.Id && !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Access denied", nil)
	}

	scans, err := h.access.ScanHistory(e.Request.Context(), reservationID)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"reservation_id": reservationID,
		"scans":          scans,
	})
}

func (h *AccessHandler) authenticateDevice(e *core.RequestEvent) error {
	deviceID := e.Request.Header.Get(headerDeviceID)
	apiKey := e.Request.Header.Get(headerDeviceKey)
	if deviceID == "" || apiKey == "" {
		return apis.NewUnauthorizedError("Device credentials required", nil)
	}

	if err := h.devices.VerifyAPIKey(e.Request.Context(), deviceID, apiKey); err != nil {
		return apis.NewUnauthorizedError("Invalid device credentials", nil)
	}
	return nil
}
