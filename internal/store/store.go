// Package store persists the domain models in PocketBase collections and
// adapts records to the service layer's repository interfaces.
package store

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"

	"reservation-system/apperror"
)

const (
	collectionReservations    = "reservations"
	collectionAccessScans     = "access_scans"
	collectionPayments        = "payments"
	collectionDevices         = "devices"
	collectionDeviceLogs      = "device_logs"
	collectionDeviceTelemetry = "device_telemetry"
)

// dbTime renders a timestamp the way PocketBase stores datetime fields, so
// it can be compared inside dbx expressions.
func dbTime(t time.Time) string {
	return t.UTC().Format(types.DefaultDateLayout)
}

// optionalTime maps a zero datetime field to nil.
func optionalTime(dt types.DateTime) *time.Time {
	if dt.IsZero() {
		return nil
	}
	t := dt.Time()
	return &t
}

func notFound(collection, id string, err error) error {
	return apperror.Wrap(apperror.KindNotFound, collection+" record not found: "+id, err)
}

// findRecord loads a record by id, mapping lookup failures to NotFound.
func findRecord(app core.App, collection, id string) (*core.Record, error) {
	if id == "" {
		return nil, apperror.New(apperror.KindInvalidArgument, collection+" id is required")
	}
	record, err := app.FindRecordById(collection, id)
	if err != nil {
		return nil, notFound(collection, id, err)
	}
	return record, nil
}

// newRecord creates a blank record in the named collection.
func newRecord(app core.App, collection string) (*core.Record, error) {
	col, err := app.FindCollectionByNameOrId(collection)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindUnreachable, "collection "+collection+" is missing", err)
	}
	return core.NewRecord(col), nil
}
