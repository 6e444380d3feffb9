package store

import (
	"context"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/models"
	"reservation-system/services"
)

// AccessScanStore is the append-only audit log of successful scans.
type AccessScanStore struct {
	app core.App
}

var _ services.ScanStore = (*AccessScanStore)(nil)

func NewAccessScanStore(app core.App) *AccessScanStore {
	return &AccessScanStore{app: app}
}

func (s *AccessScanStore) Append(ctx context.Context, rec *models.AccessScanRecord) error {
	record, err := newRecord(s.app, collectionAccessScans)
	if err != nil {
		return err
	}

	record.Set("reservation_id", rec.ReservationID)
	record.Set("resource_id", rec.ResourceID)
	record.Set("subject_id", rec.SubjectID)
	record.Set("scan_type", string(rec.ScanType))
	record.Set("device_ref", rec.DeviceRef)
	record.Set("scanned_at", rec.ScannedAt.UTC())

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	rec.ID = record.Id
	return nil
}

func (s *AccessScanStore) ListByReservation(ctx context.Context, reservationID string) ([]*models.AccessScanRecord, error) {
	records, err := s.app.FindAllRecords(collectionAccessScans,
		dbx.HashExp{"reservation_id": reservationID},
	)
	if err != nil {
		return nil, err
	}

	scans := make([]*models.AccessScanRecord, 0, len(records))
	for _, record := range records {
		scans = append(scans, &models.AccessScanRecord{
			ID:            record.Id,
			ReservationID: record.GetString("reservation_id"),
			ResourceID:    record.GetString("resource_id"),
			SubjectID:     record.GetString("subject_id"),
			ScanType:      models.ScanType(record.GetString("scan_type")),
			DeviceRef:     record.GetString("device_ref"),
			ScannedAt:     record.GetDateTime("scanned_at").Time(),
		})
	}
	return scans, nil
}
