package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"reservation-system/config"
	"reservation-system/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
	cfg      *config.Config
}

func NewPaymentHandler(payments *services.PaymentService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{payments: payments, cfg: cfg}
}

// CreatePaymentSession opens a pending payment for a reservation.
func (h *PaymentHandler) CreatePaymentSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ReservationID string `json:"reservation_id"`
		Amount        string `json:"amount"`
		Currency      string `json:"currency"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return apis.NewBadRequestError("Amount must be a decimal string", err)
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	payment, err := h.payments.CreatePaymentSession(e.Request.Context(), e.Auth.Id, req.ReservationID, amount, req.Currency)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	payment, err := h.payments.GetPayment(e.Request.Context(), e.Request.PathValue("paymentId"))
	if err != nil {
		return apiError(err)
	}
	if payment.OwnerID != e.Auth.Id && !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, payment)
}

func (h *PaymentHandler) ListMyPayments(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	limit := queryInt(e, "limit", 50)
	offset := queryInt(e, "offset", 0)

	payments, err := h.payments.ListByOwner(e.Request.Context(), e.Auth.Id, limit, offset)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"payments": payments,
		"limit":    limit,
		"offset":   offset,
	})
}

// HandleWebhook receives gateway notifications. The response is always 200
// for recognized payloads so the gateway stops retrying; handler
// idempotency makes redelivery safe.
func (h *PaymentHandler) HandleWebhook(e *core.RequestEvent) error {
	var event struct {
		Type          string `json:"type"`
		Reference     string `json:"reference"`
		ReservationID string `json:"reservation_id"`
	}
	if err := e.BindBody(&event); err != nil {
		return apis.NewBadRequestError("Invalid webhook payload", err)
	}
	if event.Reference == "" {
		return apis.NewBadRequestError("Webhook reference is required", nil)
	}

	ctx := e.Request.Context()
	var err error
	switch event.Type {
	case "payment_intent.succeeded":
		err = h.payments.OnPaymentSucceeded(ctx, event.Reference, event.ReservationID)
	case "payment_intent.payment_failed":
		err = h.payments.OnPaymentFailed(ctx, event.Reference, event.ReservationID)
	case "charge.refunded":
		err = h.payments.OnPaymentRefunded(ctx, event.Reference, event.ReservationID)
	default:
		return e.JSON(http.StatusOK, map[string]any{"received": true, "handled": false})
	}
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true, "handled": true})
}

// SimulatePayment publishes a synthetic gateway event. Development only.
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if h.cfg.Environment == "production" {
		return apis.NewForbiddenError("Not available in production", nil)
	}

	var req struct {
		Type          string `json:"type"`
		Reference     string `json:"reference"`
		ReservationID string `json:"reservation_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Type == "" {
		req.Type = "payment_intent.succeeded"
	}

	if err := h.payments.PublishGatewayEvent(e.Request.Context(), req.Type, req.Reference, req.ReservationID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Event published"})
}
