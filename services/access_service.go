package services

import (
	"context"
	"fmt"
	"log/slog"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
	"reservation-system/monitoring"
)

type DenyReason string

const (
	ReasonNotActiveYet DenyReason = "not_active_yet"
	ReasonExpired      DenyReason = "expired"
	ReasonWrongState   DenyReason = "wrong_state"
	ReasonInvalidToken DenyReason = "invalid_token"
	ReasonPolicyDenied DenyReason = "policy_denied"
)

// AccessDecision is the outcome of a device scan. Denial is an expected
// outcome carried in Reason, not an error.
type AccessDecision struct {
	Granted     bool                `json:"granted"`
	Reason      DenyReason          `json:"reason,omitempty"`
	Reservation *models.Reservation `json:"reservation,omitempty"`
	ResourceID  string              `json:"resource_id,omitempty"`
}

// AccessService combines token verification, lifecycle state and the
// active time window into access decisions, and writes the audit trail.
type AccessService struct {
	tokens  *TokenService
	repo    ReservationRepository
	scans   ScanStore
	devices DeviceStore
	port    DeviceCommandPort
	locker  Locker
	clock   Clock
	cfg     *config.Config
}

func NewAccessService(tokens *TokenService, repo ReservationRepository, scans ScanStore, devices DeviceStore, port DeviceCommandPort, locker Locker, clock Clock, cfg *config.Config) *AccessService {
	return &AccessService{
		tokens:  tokens,
		repo:    repo,
		scans:   scans,
		devices: devices,
		port:    port,
		locker:  locker,
		clock:   clock,
		cfg:     cfg,
	}
}

// EvaluateCheckIn verifies the scanned token, asserts it belongs to the
// scanning subject, applies confirmed -> checked_in and appends the audit
// record. The four steps are one logical unit: a failure at any point
// leaves the reservation unchanged and writes no record.
func (s *AccessService) EvaluateCheckIn(ctx context.Context, rawToken, subjectID string) (*models.Reservation, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenReservation {
		return nil, apperror.New(apperror.KindTokenInvalid, "not a reservation token")
	}
	if claims.SubjectID != subjectID {
		return nil, apperror.New(apperror.KindTokenInvalid, "token does not belong to this subject")
	}

	return s.scanTransition(ctx, claims.ReservationID, subjectID, models.ScanCheckIn)
}

// EvaluateCheckOut applies checked_in -> completed from a scanned token,
// with the same all-or-nothing semantics as check-in.
func (s *AccessService) EvaluateCheckOut(ctx context.Context, rawToken, subjectID string) (*models.Reservation, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenReservation {
		return nil, apperror.New(apperror.KindTokenInvalid, "not a reservation token")
	}
	if claims.SubjectID != subjectID {
		return nil, apperror.New(apperror.KindTokenInvalid, "token does not belong to this subject")
	}

	return s.scanTransition(ctx, claims.ReservationID, subjectID, models.ScanCheckOut)
}

func (s *AccessService) scanTransition(ctx context.Context, reservationID, subjectID string, scanType models.ScanType) (*models.Reservation, error) {
	var out *models.Reservation

	err := s.locker.WithLock(ctx, fmt.Sprintf("reservation:%s", reservationID), func() error {
		r, err := s.repo.FindByID(ctx, reservationID)
		if err != nil {
			return err
		}

		prevStatus := r.Status
		now := s.clock.Now()

		switch scanType {
		case models.ScanCheckIn:
			if err := guardCheckIn(r, now, s.cfg.GraceWindow); err != nil {
				return err
			}
			applyCheckIn(r, now)
		case models.ScanCheckOut:
			if err := guardTransition(r, models.StatusCompleted); err != nil {
				return err
			}
			applyCheckOut(r, now)
		default:
			return apperror.Newf(apperror.KindInvalidArgument, "unsupported scan type %q", scanType)
		}

		if err := s.repo.Save(ctx, r); err != nil {
			return err
		}

		rec := &models.AccessScanRecord{
			ReservationID: r.ID,
			SubjectID:     subjectID,
			ScanType:      scanType,
			ScannedAt:     now,
		}
		if err := s.scans.Append(ctx, rec); err != nil {
			// The transition and its audit record commit together; undo
			// the transition when the record cannot be written.
			r.Status = prevStatus
			if scanType == models.ScanCheckIn {
				r.CheckedInAt = nil
			} else {
				r.CheckedOutAt = nil
			}
			if rbErr := s.repo.Save(ctx, r); rbErr != nil {
				slog.Error("failed to revert scan transition", "reservation", r.ID, "error", rbErr)
			}
			return err
		}

		monitoring.TrackTransition(string(prevStatus), string(r.Status))
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateDeviceAccess decides whether a scanned token opens the device at
// deviceRef. For reservation tokens the reservation must be confirmed or
// checked in and the current time inside [startTime - grace, endTime).
// Resource tokens carry no reservation and are governed by the resource
// token policy toggle. The audit record commits before any device command
// is attempted, so a dispatch failure never revokes a granted decision.
func (s *AccessService) EvaluateDeviceAccess(ctx context.Context, rawToken, deviceRef string) (AccessDecision, error) {
	claims, err := s.tokens.Verify(rawToken)
	if err != nil {
		reason := ReasonInvalidToken
		if apperror.KindOf(err) == apperror.KindTokenExpired {
			reason = ReasonExpired
		}
		return s.deny(TokenType("unknown"), reason), nil
	}

	switch claims.Type {
	case TokenResource:
		return s.evaluateResourceAccess(ctx, claims, deviceRef)
	case TokenReservation:
		return s.evaluateReservationAccess(ctx, claims, deviceRef)
	default:
		return s.deny(claims.Type, ReasonInvalidToken), nil
	}
}

func (s *AccessService) evaluateResourceAccess(ctx context.Context, claims *AccessClaims, deviceRef string) (AccessDecision, error) {
	if !s.cfg.ResourceTokenAllow {
		return s.deny(TokenResource, ReasonPolicyDenied), nil
	}

	rec := &models.AccessScanRecord{
		ResourceID: claims.ResourceID,
		SubjectID:  claims.SubjectID,
		ScanType:   models.ScanAccess,
		DeviceRef:  deviceRef,
		ScannedAt:  s.clock.Now(),
	}
	if err := s.scans.Append(ctx, rec); err != nil {
		return AccessDecision{}, err
	}

	s.dispatchUnlock(ctx, deviceRef)

	monitoring.TrackAccessDecision(string(TokenResource), true, "")
	return AccessDecision{Granted: true, ResourceID: claims.ResourceID}, nil
}

func (s *AccessService) evaluateReservationAccess(ctx context.Context, claims *AccessClaims, deviceRef string) (AccessDecision, error) {
	r, err := s.repo.FindByID(ctx, claims.ReservationID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return s.deny(TokenReservation, ReasonInvalidToken), nil
		}
		return AccessDecision{}, err
	}

	if r.Status != models.StatusConfirmed && r.Status != models.StatusCheckedIn {
		return s.deny(TokenReservation, ReasonWrongState), nil
	}

	now := s.clock.Now()
	if now.Before(r.StartTime.Add(-s.cfg.GraceWindow)) {
		return s.deny(TokenReservation, ReasonNotActiveYet), nil
	}
	if !now.Before(r.EndTime) {
		return s.deny(TokenReservation, ReasonExpired), nil
	}

	rec := &models.AccessScanRecord{
		ReservationID: r.ID,
		SubjectID:     claims.SubjectID,
		ScanType:      models.ScanAccess,
		DeviceRef:     deviceRef,
		ScannedAt:     now,
	}
	if err := s.scans.Append(ctx, rec); err != nil {
		return AccessDecision{}, err
	}

	s.dispatchUnlock(ctx, deviceRef)

	monitoring.TrackAccessDecision(string(TokenReservation), true, "")
	return AccessDecision{Granted: true, Reservation: r}, nil
}

// dispatchUnlock sends the unlock command when the target device is a lock
// class. It runs after the audit record committed and outside any lock;
// failures are reported but do not affect the decision.
func (s *AccessService) dispatchUnlock(ctx context.Context, deviceRef string) {
	if deviceRef == "" {
		return
	}

	device, err := s.devices.FindByID(ctx, deviceRef)
	if err != nil {
		slog.Warn("access granted for unknown device, no command sent", "device", deviceRef, "error", err)
		return
	}
	if !device.Type.RequiresUnlock() {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeviceCommandTimeout)
	defer cancel()

	start := s.clock.Now()
	err = s.port.Send(sendCtx, device.ChannelID, "unlock", map[string]any{})
	monitoring.TrackDeviceCommand("unlock", err == nil, s.clock.Now().Sub(start))
	if err != nil {
		slog.Error("unlock command dispatch failed", "device", device.ID, "error", err)
	}
}

// ScanHistory returns the audit records for a reservation, newest first.
func (s *AccessService) ScanHistory(ctx context.Context, reservationID string) ([]*models.AccessScanRecord, error) {
	if reservationID == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "reservation id is required")
	}
	return s.scans.ListByReservation(ctx, reservationID)
}

func (s *AccessService) deny(tokenType TokenType, reason DenyReason) AccessDecision {
	monitoring.TrackAccessDecision(string(tokenType), false, string(reason))
	return AccessDecision{Granted: false, Reason: reason}
}
