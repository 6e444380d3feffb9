package store

import (
	"context"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"reservation-system/apperror"
	"reservation-system/models"
	"reservation-system/services"
)

// PaymentRecordStore keeps payment records in the payments collection.
// Amounts are stored as decimal strings to avoid float drift.
type PaymentRecordStore struct {
	app core.App
}

var _ services.PaymentStore = (*PaymentRecordStore)(nil)

func NewPaymentRecordStore(app core.App) *PaymentRecordStore {
	return &PaymentRecordStore{app: app}
}

func (s *PaymentRecordStore) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	record, err := findRecord(s.app, collectionPayments, id)
	if err != nil {
		return nil, err
	}
	return paymentFromRecord(record)
}

func (s *PaymentRecordStore) FindByExternalRef(ctx context.Context, ref string) (*models.Payment, error) {
	if ref == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, "external reference is required")
	}
	records, err := s.app.FindAllRecords(collectionPayments, dbx.HashExp{"external_ref": ref})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.Newf(apperror.KindNotFound, "no payment with external reference %s", ref)
	}
	return paymentFromRecord(records[0])
}

func (s *PaymentRecordStore) FindByReservation(ctx context.Context, reservationID string) ([]*models.Payment, error) {
	records, err := s.app.FindAllRecords(collectionPayments, dbx.HashExp{"reservation_id": reservationID})
	if err != nil {
		return nil, err
	}
	return paymentsFromRecords(records)
}

func (s *PaymentRecordStore) FindByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Payment, error) {
	records, err := s.app.FindRecordsByFilter(collectionPayments,
		"owner_id = {:owner}", "-created", limit, offset,
		dbx.Params{"owner": ownerID},
	)
	if err != nil {
		return nil, err
	}
	return paymentsFromRecords(records)
}

func (s *PaymentRecordStore) Save(ctx context.Context, p *models.Payment) error {
	var record *core.Record
	var err error

	if p.ID == "" {
		record, err = newRecord(s.app, collectionPayments)
	} else {
		record, err = findRecord(s.app, collectionPayments, p.ID)
	}
	if err != nil {
		return err
	}

	record.Set("owner_id", p.OwnerID)
	record.Set("reservation_id", p.ReservationID)
	record.Set("amount", p.Amount.String())
	record.Set("currency", p.Currency)
	record.Set("external_ref", p.ExternalRef)
	record.Set("status", string(p.Status))
	setOptionalTime(record, "paid_at", p.PaidAt)
	setOptionalTime(record, "refunded_at", p.RefundedAt)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	p.ID = record.Id
	p.Created = record.GetDateTime("created").Time()
	return nil
}

func paymentsFromRecords(records []*core.Record) ([]*models.Payment, error) {
	payments := make([]*models.Payment, 0, len(records))
	for _, record := range records {
		p, err := paymentFromRecord(record)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func paymentFromRecord(record *core.Record) (*models.Payment, error) {
	amount, err := decimal.NewFromString(record.GetString("amount"))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidArgument, "stored payment amount is not a decimal", err)
	}

	return &models.Payment{
		ID:            record.Id,
		OwnerID:       record.GetString("owner_id"),
		ReservationID: record.GetString("reservation_id"),
		Amount:        amount,
		Currency:      record.GetString("currency"),
		ExternalRef:   record.GetString("external_ref"),
		Status:        models.PaymentStatus(record.GetString("status")),
		PaidAt:        optionalTime(record.GetDateTime("paid_at")),
		RefundedAt:    optionalTime(record.GetDateTime("refunded_at")),
		Created:       record.GetDateTime("created").Time(),
	}, nil
}
