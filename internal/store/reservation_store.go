package store

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/models"
	"reservation-system/services"
)

// ReservationStore keeps reservations in the reservations collection.
type ReservationStore struct {
	app core.App
}

var _ services.ReservationRepository = (*ReservationStore)(nil)

func NewReservationStore(app core.App) *ReservationStore {
	return &ReservationStore{app: app}
}

func (s *ReservationStore) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	record, err := findRecord(s.app, collectionReservations, id)
	if err != nil {
		return nil, err
	}
	return reservationFromRecord(record), nil
}

func (s *ReservationStore) FindByResourceAndWindow(ctx context.Context, resourceID string, start, end time.Time) ([]*models.Reservation, error) {
	records, err := s.app.FindAllRecords(collectionReservations,
		dbx.HashExp{"resource_id": resourceID},
		dbx.In("status",
			string(models.StatusPending),
			string(models.StatusConfirmed),
			string(models.StatusCheckedIn),
		),
		dbx.NewExp("start_time < {:end} AND end_time > {:start}", dbx.Params{
			"start": dbTime(start),
			"end":   dbTime(end),
		}),
	)
	if err != nil {
		return nil, err
	}

	reservations := make([]*models.Reservation, 0, len(records))
	for _, record := range records {
		reservations = append(reservations, reservationFromRecord(record))
	}
	return reservations, nil
}

func (s *ReservationStore) FindByOwner(ctx context.Context, ownerID string, status models.ReservationStatus, limit, offset int) ([]*models.Reservation, error) {
	filter := "owner_id = {:owner}"
	params := dbx.Params{"owner": ownerID}
	if status != "" {
		filter += " && status = {:status}"
		params["status"] = string(status)
	}

	records, err := s.app.FindRecordsByFilter(collectionReservations, filter, "-start_time", limit, offset, params)
	if err != nil {
		return nil, err
	}

	reservations := make([]*models.Reservation, 0, len(records))
	for _, record := range records {
		reservations = append(reservations, reservationFromRecord(record))
	}
	return reservations, nil
}

func (s *ReservationStore) Save(ctx context.Context, r *models.Reservation) error {
	var record *core.Record
	var err error

	if r.ID == "" {
		record, err = newRecord(s.app, collectionReservations)
	} else {
		record, err = findRecord(s.app, collectionReservations, r.ID)
	}
	if err != nil {
		return err
	}

	record.Set("resource_id", r.ResourceID)
	record.Set("owner_id", r.OwnerID)
	record.Set("start_time", r.StartTime.UTC())
	record.Set("end_time", r.EndTime.UTC())
	record.Set("number_of_people", r.NumberOfPeople)
	record.Set("notes", r.Notes)
	record.Set("status", string(r.Status))
	setOptionalTime(record, "checked_in_at", r.CheckedInAt)
	setOptionalTime(record, "checked_out_at", r.CheckedOutAt)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	r.ID = record.Id
	r.Created = record.GetDateTime("created").Time()
	r.Updated = record.GetDateTime("updated").Time()
	return nil
}

func (s *ReservationStore) Delete(ctx context.Context, id string) error {
	record, err := findRecord(s.app, collectionReservations, id)
	if err != nil {
		return err
	}
	return s.app.Delete(record)
}

func setOptionalTime(record *core.Record, field string, t *time.Time) {
	if t == nil {
		record.Set(field, "")
		return
	}
	record.Set(field, t.UTC())
}

func reservationFromRecord(record *core.Record) *models.Reservation {
	return &models.Reservation{
		ID:             record.Id,
		ResourceID:     record.GetString("resource_id"),
		OwnerID:        record.GetString("owner_id"),
		StartTime:      record.GetDateTime("start_time").Time(),
		EndTime:        record.GetDateTime("end_time").Time(),
		NumberOfPeople: record.GetInt("number_of_people"),
		Notes:          record.GetString("notes"),
		Status:         models.ReservationStatus(record.GetString("status")),
		CheckedInAt:    optionalTime(record.GetDateTime("checked_in_at")),
		CheckedOutAt:   optionalTime(record.GetDateTime("checked_out_at")),
		Created:        record.GetDateTime("created").Time(),
		Updated:        record.GetDateTime("updated").Time(),
	}
}
