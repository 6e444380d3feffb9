package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
	"reservation-system/monitoring"
)

// PaymentService reconciles payment-gateway events with reservation
// lifecycle transitions. Gateway webhooks can be delivered more than once,
// so every handler is idempotent.
type PaymentService struct {
	payments     PaymentStore
	reservations *ReservationService
	Redis        *redis.Client
	pn           *pubnub.PubNub
	clock        Clock
	cfg          *config.Config
}

func NewPaymentService(payments PaymentStore, reservations *ReservationService, redisClient *redis.Client, pn *pubnub.PubNub, clock Clock, cfg *config.Config) *PaymentService {
	return &PaymentService{
		payments:     payments,
		reservations: reservations,
		Redis:        redisClient,
		pn:           pn,
		clock:        clock,
		cfg:          cfg,
	}
}

// CreatePaymentSession records a pending payment for the reservation and
// caches the session in Redis with a TTL so abandoned sessions expire on
// their own.
func (s *PaymentService) CreatePaymentSession(ctx context.Context, ownerID, reservationID string, amount decimal.Decimal, currency string) (*models.Payment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.New(apperror.KindInvalidArgument, "amount must be positive")
	}

	reservation, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.OwnerID != ownerID {
		return nil, apperror.New(apperror.KindInvalidArgument, "reservation does not belong to this user")
	}
	if reservation.Status == models.StatusCancelled {
		return nil, apperror.New(apperror.KindInvalidStateTransition, "cannot create payment for cancelled reservation")
	}

	payment := &models.Payment{
		OwnerID:       ownerID,
		ReservationID: reservationID,
		Amount:        amount,
		Currency:      currency,
		Status:        models.PaymentPending,
	}
	if err := s.payments.Save(ctx, payment); err != nil {
		return nil, err
	}

	sessionKey := fmt.Sprintf("payment:session:%s", payment.ID)
	s.Redis.HSet(ctx, sessionKey, map[string]any{
		"payment_id":     payment.ID,
		"reservation_id": reservationID,
		"owner_id":       ownerID,
		"amount":         amount.String(),
		"status":         string(models.PaymentPending),
		"created_at":     s.clock.Now().Unix(),
	})
	s.Redis.Expire(ctx, sessionKey, s.cfg.SessionTTL)

	return payment, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.payments.FindByID(ctx, id)
}

func (s *PaymentService) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Payment, error) {
	return s.payments.FindByOwner(ctx, ownerID, limit, offset)
}

// OnPaymentSucceeded confirms the reservation. A reservation that is
// already confirmed or later means the event is a duplicate delivery and
// succeeds without a second transition.
func (s *PaymentService) OnPaymentSucceeded(ctx context.Context, externalRef, reservationID string) error {
	if externalRef == "" || reservationID == "" {
		return apperror.New(apperror.KindInvalidArgument, "payment reference and reservation id are required")
	}

	if !s.claimEvent(ctx, externalRef, "succeeded") {
		monitoring.TrackPaymentEvent("succeeded", "duplicate")
		return nil
	}

	reservation, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		s.releaseEvent(ctx, externalRef, "succeeded")
		return err
	}

	switch reservation.Status {
	case models.StatusConfirmed, models.StatusCheckedIn, models.StatusCompleted:
		monitoring.TrackPaymentEvent("succeeded", "duplicate")
	case models.StatusCancelled:
		s.releaseEvent(ctx, externalRef, "succeeded")
		return apperror.New(apperror.KindInvalidStateTransition, "cannot confirm a cancelled reservation")
	default:
		if _, err := s.reservations.Confirm(ctx, reservationID); err != nil {
			// A concurrent delivery may have confirmed first; that still
			// counts as success.
			if apperror.KindOf(err) != apperror.KindAlreadyInState {
				s.releaseEvent(ctx, externalRef, "succeeded")
				return err
			}
		}
		monitoring.TrackPaymentEvent("succeeded", "applied")
	}

	s.markPayment(ctx, externalRef, reservationID, models.PaymentCompleted)
	return nil
}

// OnPaymentFailed records the failure. The reservation stays pending so a
// later retry can still confirm it.
func (s *PaymentService) OnPaymentFailed(ctx context.Context, externalRef, reservationID string) error {
	if externalRef == "" || reservationID == "" {
		return apperror.New(apperror.KindInvalidArgument, "payment reference and reservation id are required")
	}

	if !s.claimEvent(ctx, externalRef, "failed") {
		monitoring.TrackPaymentEvent("failed", "duplicate")
		return nil
	}

	s.markPayment(ctx, externalRef, reservationID, models.PaymentFailed)
	monitoring.TrackPaymentEvent("failed", "applied")
	return nil
}

// OnPaymentRefunded forces the reservation to cancelled from any
// non-terminal state. Refund wins even when the user already requested
// cancellation, so an already-cancelled reservation is a success.
func (s *PaymentService) OnPaymentRefunded(ctx context.Context, externalRef, reservationID string) error {
	if externalRef == "" || reservationID == "" {
		return apperror.New(apperror.KindInvalidArgument, "payment reference and reservation id are required")
	}

	if !s.claimEvent(ctx, externalRef, "refunded") {
		monitoring.TrackPaymentEvent("refunded", "duplicate")
		return nil
	}

	if _, err := s.reservations.Cancel(ctx, reservationID); err != nil {
		switch apperror.KindOf(err) {
		case apperror.KindAlreadyInState:
			// Already cancelled.
		case apperror.KindInvalidStateTransition:
			slog.Warn("refund received for completed reservation, no transition applied", "reservation", reservationID)
		default:
			s.releaseEvent(ctx, externalRef, "refunded")
			return err
		}
	}

	s.markPayment(ctx, externalRef, reservationID, models.PaymentRefunded)
	monitoring.TrackPaymentEvent("refunded", "applied")
	return nil
}

// claimEvent claims the event key in Redis. The first delivery wins the
// SETNX; duplicates see the existing key. A claim that fails to process
// must be released so the gateway's retry is not swallowed.
func (s *PaymentService) claimEvent(ctx context.Context, externalRef, event string) bool {
	ok, err := s.Redis.SetNX(ctx, eventKey(externalRef, event), 1, s.cfg.EventDedupTTL).Result()
	if err != nil {
		// When Redis is unavailable fall through to the status check,
		// which also tolerates duplicates.
		slog.Warn("payment event dedup check failed", "ref", externalRef, "error", err)
		return true
	}
	return ok
}

func (s *PaymentService) releaseEvent(ctx context.Context, externalRef, event string) {
	if err := s.Redis.Del(ctx, eventKey(externalRef, event)).Err(); err != nil {
		slog.Warn("payment event claim release failed", "ref", externalRef, "error", err)
	}
}

func eventKey(externalRef, event string) string {
	return fmt.Sprintf("payment:event:%s:%s", externalRef, event)
}

func (s *PaymentService) markPayment(ctx context.Context, externalRef, reservationID string, status models.PaymentStatus) {
	payment, err := s.payments.FindByExternalRef(ctx, externalRef)
	if err != nil {
		payments, listErr := s.payments.FindByReservation(ctx, reservationID)
		if listErr != nil || len(payments) == 0 {
			slog.Warn("no payment record for gateway event", "ref", externalRef, "reservation", reservationID)
			return
		}
		payment = payments[0]
		payment.ExternalRef = externalRef
	}

	now := s.clock.Now()
	payment.Status = status
	switch status {
	case models.PaymentCompleted:
		payment.PaidAt = &now
	case models.PaymentRefunded:
		payment.RefundedAt = &now
	}

	if err := s.payments.Save(ctx, payment); err != nil {
		slog.Error("failed to persist payment status", "payment", payment.ID, "status", status, "error", err)
	}
}

type gatewayEvent struct {
	Type          string `json:"type"`
	Reference     string `json:"reference"`
	ReservationID string `json:"reservation_id"`
}

// PublishGatewayEvent pushes a synthetic gateway event onto the payment
// channel. Exposed for the development simulation endpoint.
func (s *PaymentService) PublishGatewayEvent(ctx context.Context, eventType, reference, reservationID string) error {
	if s.pn == nil {
		return apperror.New(apperror.KindUnreachable, "payment gateway channel is not configured")
	}

	_, _, err := s.pn.PublishWithContext(ctx).
		Channel("payment-gateway-events").
		Message(map[string]any{
			"type":           eventType,
			"reference":      reference,
			"reservation_id": reservationID,
		}).
		Execute()
	if err != nil {
		return apperror.Wrap(apperror.KindUnreachable, "failed to publish gateway event", err)
	}
	return nil
}

// SubscribeToGatewayEvents consumes asynchronous payment notifications from
// the gateway channel and feeds them into the same idempotent handlers the
// webhook endpoint uses.
func (s *PaymentService) SubscribeToGatewayEvents(ctx context.Context) {
	if s.pn == nil {
		return
	}

	listener := pubnub.NewListener()
	s.pn.AddListener(listener)
	s.pn.Subscribe().
		Channels([]string{"payment-gateway-events"}).
		Execute()

	for {
		select {
		case <-ctx.Done():
			s.pn.Unsubscribe().Channels([]string{"payment-gateway-events"}).Execute()
			return
		case message := <-listener.Message:
			go s.handleGatewayMessage(ctx, message)
		case status := <-listener.Status:
			if status.Category == pubnub.PNDisconnectedCategory {
				slog.Warn("disconnected from payment gateway channel")
			}
		}
	}
}

func (s *PaymentService) handleGatewayMessage(ctx context.Context, message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	jsonData, _ := json.Marshal(data)
	var event gatewayEvent
	if err := json.Unmarshal(jsonData, &event); err != nil {
		slog.Error("failed to parse payment gateway event", "error", err)
		return
	}

	var err error
	switch event.Type {
	case "payment_intent.succeeded":
		err = s.OnPaymentSucceeded(ctx, event.Reference, event.ReservationID)
	case "payment_intent.payment_failed":
		err = s.OnPaymentFailed(ctx, event.Reference, event.ReservationID)
	case "charge.refunded":
		err = s.OnPaymentRefunded(ctx, event.Reference, event.ReservationID)
	default:
		slog.Info("unhandled payment gateway event", "type", event.Type)
		return
	}
	if err != nil {
		slog.Error("payment gateway event handling failed", "type", event.Type, "ref", event.Reference, "error", err)
	}
}
