package services

import (
	"context"
	"time"

	"reservation-system/models"
)

// ReservationRepository is the durable store of reservations. Save races
// lost at commit time surface as apperror.KindConflict.
type ReservationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Reservation, error)
	// FindByResourceAndWindow returns reservations for the resource whose
	// intervals intersect [start, end), restricted to active statuses.
	FindByResourceAndWindow(ctx context.Context, resourceID string, start, end time.Time) ([]*models.Reservation, error)
	FindByOwner(ctx context.Context, ownerID string, status models.ReservationStatus, limit, offset int) ([]*models.Reservation, error)
	Save(ctx context.Context, r *models.Reservation) error
	Delete(ctx context.Context, id string) error
}

// ScanStore is the append-only audit log of successful scans.
type ScanStore interface {
	Append(ctx context.Context, rec *models.AccessScanRecord) error
	ListByReservation(ctx context.Context, reservationID string) ([]*models.AccessScanRecord, error)
}

type PaymentStore interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByExternalRef(ctx context.Context, ref string) (*models.Payment, error)
	FindByReservation(ctx context.Context, reservationID string) ([]*models.Payment, error)
	FindByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Payment, error)
	Save(ctx context.Context, p *models.Payment) error
}

type DeviceStore interface {
	FindByID(ctx context.Context, id string) (*models.Device, error)
	FindByChannel(ctx context.Context, channelID string) (*models.Device, error)
	FindByResource(ctx context.Context, resourceID string) ([]*models.Device, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.Device, error)
	Save(ctx context.Context, d *models.Device) error
	Delete(ctx context.Context, id string) error
	AppendLog(ctx context.Context, l *models.DeviceLog) error
	ListLogs(ctx context.Context, deviceID string, logType models.DeviceLogType, limit int) ([]*models.DeviceLog, error)
	AppendTelemetry(ctx context.Context, t *models.DeviceTelemetry) error
	ListTelemetry(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]*models.DeviceTelemetry, error)
}

// DeviceCommandPort delivers commands to physical devices. Send honors the
// context deadline; failures map to apperror.KindTimeout or
// apperror.KindUnreachable.
type DeviceCommandPort interface {
	Send(ctx context.Context, deviceRef, command string, payload map[string]any) error
}

// Locker provides mutual exclusion scoped to a string key. Availability
// checks are serialized per resource and lifecycle transitions per
// reservation id through it.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}
