package store

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/apperror"
	"reservation-system/models"
	"reservation-system/services"
)

// DeviceRecordStore keeps the device registry plus its log and telemetry
// streams in PocketBase collections.
type DeviceRecordStore struct {
	app core.App
}

var _ services.DeviceStore = (*DeviceRecordStore)(nil)

func NewDeviceRecordStore(app core.App) *DeviceRecordStore {
	return &DeviceRecordStore{app: app}
}

func (s *DeviceRecordStore) FindByID(ctx context.Context, id string) (*models.Device, error) {
	record, err := findRecord(s.app, collectionDevices, id)
	if err != nil {
		return nil, err
	}
	return deviceFromRecord(record), nil
}

func (s *DeviceRecordStore) FindByChannel(ctx context.Context, channelID string) (*models.Device, error) {
	records, err := s.app.FindAllRecords(collectionDevices, dbx.HashExp{"channel_id": channelID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperror.Newf(apperror.KindNotFound, "no device on channel %s", channelID)
	}
	return deviceFromRecord(records[0]), nil
}

func (s *DeviceRecordStore) FindByResource(ctx context.Context, resourceID string) ([]*models.Device, error) {
	records, err := s.app.FindAllRecords(collectionDevices, dbx.HashExp{"resource_id": resourceID})
	if err != nil {
		return nil, err
	}
	return devicesFromRecords(records), nil
}

func (s *DeviceRecordStore) List(ctx context.Context, status string, limit, offset int) ([]*models.Device, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if status != "" {
		filter = "status = {:status}"
		params["status"] = status
	}

	records, err := s.app.FindRecordsByFilter(collectionDevices, filter, "name", limit, offset, params)
	if err != nil {
		return nil, err
	}
	return devicesFromRecords(records), nil
}

func (s *DeviceRecordStore) Save(ctx context.Context, d *models.Device) error {
	var record *core.Record
	var err error

	if d.ID == "" {
		record, err = newRecord(s.app, collectionDevices)
	} else {
		record, err = findRecord(s.app, collectionDevices, d.ID)
	}
	if err != nil {
		return err
	}

	record.Set("name", d.Name)
	record.Set("type", string(d.Type))
	record.Set("mac_address", d.MacAddress)
	record.Set("location", d.Location)
	record.Set("resource_id", d.ResourceID)
	record.Set("channel_id", d.ChannelID)
	record.Set("api_key_hash", d.APIKeyHash)
	record.Set("status", d.Status)
	setOptionalTime(record, "last_seen_at", d.LastSeenAt)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	d.ID = record.Id
	return nil
}

func (s *DeviceRecordStore) Delete(ctx context.Context, id string) error {
	record, err := findRecord(s.app, collectionDevices, id)
	if err != nil {
		return err
	}
	return s.app.Delete(record)
}

func (s *DeviceRecordStore) AppendLog(ctx context.Context, l *models.DeviceLog) error {
	record, err := newRecord(s.app, collectionDeviceLogs)
	if err != nil {
		return err
	}

	record.Set("device_id", l.DeviceID)
	record.Set("log_type", string(l.LogType))
	record.Set("message", l.Message)
	record.Set("data", l.Data)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	l.ID = record.Id
	l.Created = record.GetDateTime("created").Time()
	return nil
}

func (s *DeviceRecordStore) ListLogs(ctx context.Context, deviceID string, logType models.DeviceLogType, limit int) ([]*models.DeviceLog, error) {
	filter := "device_id = {:device}"
	params := dbx.Params{"device": deviceID}
	if logType != "" {
		filter += " && log_type = {:type}"
		params["type"] = string(logType)
	}

	records, err := s.app.FindRecordsByFilter(collectionDeviceLogs, filter, "-created", limit, 0, params)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.DeviceLog, 0, len(records))
	for _, record := range records {
		logs = append(logs, &models.DeviceLog{
			ID:       record.Id,
			DeviceID: record.GetString("device_id"),
			LogType:  models.DeviceLogType(record.GetString("log_type")),
			Message:  record.GetString("message"),
			Data:     record.GetString("data"),
			Created:  record.GetDateTime("created").Time(),
		})
	}
	return logs, nil
}

func (s *DeviceRecordStore) AppendTelemetry(ctx context.Context, t *models.DeviceTelemetry) error {
	record, err := newRecord(s.app, collectionDeviceTelemetry)
	if err != nil {
		return err
	}

	record.Set("device_id", t.DeviceID)
	record.Set("temperature", t.Temperature)
	record.Set("humidity", t.Humidity)
	record.Set("battery_level", t.BatteryLevel)
	record.Set("signal_strength", t.SignalStrength)
	record.Set("data", t.Data)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return err
	}

	t.ID = record.Id
	t.Created = record.GetDateTime("created").Time()
	return nil
}

func (s *DeviceRecordStore) ListTelemetry(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]*models.DeviceTelemetry, error) {
	filter := "device_id = {:device}"
	params := dbx.Params{"device": deviceID}
	if !start.IsZero() {
		filter += " && created >= {:start}"
		params["start"] = dbTime(start)
	}
	if !end.IsZero() {
		filter += " && created < {:end}"
		params["end"] = dbTime(end)
	}

	records, err := s.app.FindRecordsByFilter(collectionDeviceTelemetry, filter, "-created", limit, 0, params)
	if err != nil {
		return nil, err
	}

	rows := make([]*models.DeviceTelemetry, 0, len(records))
	for _, record := range records {
		rows = append(rows, &models.DeviceTelemetry{
			ID:             record.Id,
			DeviceID:       record.GetString("device_id"),
			Temperature:    record.GetFloat("temperature"),
			Humidity:       record.GetFloat("humidity"),
			BatteryLevel:   record.GetFloat("battery_level"),
			SignalStrength: record.GetFloat("signal_strength"),
			Data:           record.GetString("data"),
			Created:        record.GetDateTime("created").Time(),
		})
	}
	return rows, nil
}

func devicesFromRecords(records []*core.Record) []*models.Device {
	devices := make([]*models.Device, 0, len(records))
	for _, record := range records {
		devices = append(devices, deviceFromRecord(record))
	}
	return devices
}

func deviceFromRecord(record *core.Record) *models.Device {
	return &models.Device{
		ID:         record.Id,
		Name:       record.GetString("name"),
		Type:       models.DeviceType(record.GetString("type")),
		MacAddress: record.GetString("mac_address"),
		Location:   record.GetString("location"),
		ResourceID: record.GetString("resource_id"),
		ChannelID:  record.GetString("channel_id"),
		APIKeyHash: record.GetString("api_key_hash"),
		Status:     record.GetString("status"),
		LastSeenAt: optionalTime(record.GetDateTime("last_seen_at")),
	}
}
