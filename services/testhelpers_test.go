package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
)

func testConfig() *config.Config {
	return &config.Config{
		AppSecret:            "test-secret",
		OperatingOpenHour:    9,
		OperatingCloseHour:   21,
		SlotStride:           30 * time.Minute,
		GraceWindow:          15 * time.Minute,
		TokenTTL:             24 * time.Hour,
		ResourceTokenTTL:     720 * time.Hour,
		ResourceTokenAllow:   true,
		LockTTL:              10 * time.Second,
		LockWait:             3 * time.Second,
		LockRetry:            50 * time.Millisecond,
		SessionTTL:           10 * time.Minute,
		EventDedupTTL:        24 * time.Hour,
		DeviceCommandTimeout: 5 * time.Second,
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memLocker serializes critical sections per key, mirroring the key-scoped
// leases of RedisLocker.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *memLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sync.Mutex{}
	}
	keyMu, ok := l.locks[key]
	if !ok {
		keyMu = &sync.Mutex{}
		l.locks[key] = keyMu
	}
	l.mu.Unlock()

	keyMu.Lock()
	defer keyMu.Unlock()
	return fn()
}

type fakeRepo struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
	nextID       int
	saveErr      error
	saveHook     func(*models.Reservation)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{reservations: map[string]*models.Reservation{}}
}

func (r *fakeRepo) FindByID(ctx context.Context, id string) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, apperror.Newf(apperror.KindNotFound, "reservation %s not found", id)
	}
	copied := *res
	return &copied, nil
}

func (r *fakeRepo) FindByResourceAndWindow(ctx context.Context, resourceID string, start, end time.Time) ([]*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Reservation
	for _, res := range r.reservations {
		if res.ResourceID != resourceID || res.Status.Terminal() {
			continue
		}
		if res.StartTime.Before(end) && start.Before(res.EndTime) {
			copied := *res
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindByOwner(ctx context.Context, ownerID string, status models.ReservationStatus, limit, offset int) ([]*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Reservation
	for _, res := range r.reservations {
		if res.OwnerID != ownerID {
			continue
		}
		if status != "" && res.Status != status {
			continue
		}
		copied := *res
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRepo) Save(ctx context.Context, res *models.Reservation) error {
	r.mu.Lock()
	hook := r.saveHook
	r.mu.Unlock()
	if hook != nil {
		hook(res)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if res.ID == "" {
		r.nextID++
		res.ID = fmt.Sprintf("res%d", r.nextID)
	}
	copied := *res
	r.reservations[res.ID] = &copied
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[id]; !ok {
		return apperror.Newf(apperror.KindNotFound, "reservation %s not found", id)
	}
	delete(r.reservations, id)
	return nil
}

func (r *fakeRepo) seed(res *models.Reservation) *models.Reservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.ID == "" {
		r.nextID++
		res.ID = fmt.Sprintf("res%d", r.nextID)
	}
	copied := *res
	r.reservations[res.ID] = &copied
	return res
}

func (r *fakeRepo) get(id string) *models.Reservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.reservations[id]
	if res == nil {
		return nil
	}
	copied := *res
	return &copied
}

type fakeScanStore struct {
	mu        sync.Mutex
	records   []*models.AccessScanRecord
	appendErr error
}

func (s *fakeScanStore) Append(ctx context.Context, rec *models.AccessScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	rec.ID = fmt.Sprintf("scan%d", len(s.records)+1)
	copied := *rec
	s.records = append(s.records, &copied)
	return nil
}

func (s *fakeScanStore) ListByReservation(ctx context.Context, reservationID string) ([]*models.AccessScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AccessScanRecord
	for _, rec := range s.records {
		if rec.ReservationID == reservationID {
			copied := *rec
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeScanStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeDeviceStore struct {
	mu      sync.Mutex
	devices map[string]*models.Device
	logs    []*models.DeviceLog
	rows    []*models.DeviceTelemetry
	nextID  int
}

func newFakeDeviceStore() *fakeDeviceStore {
	return &fakeDeviceStore{devices: map[string]*models.Device{}}
}

func (s *fakeDeviceStore) FindByID(ctx context.Context, id string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, apperror.Newf(apperror.KindNotFound, "device %s not found", id)
	}
	copied := *d
	return &copied, nil
}

func (s *fakeDeviceStore) FindByChannel(ctx context.Context, channelID string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.ChannelID == channelID {
			copied := *d
			return &copied, nil
		}
	}
	return nil, apperror.Newf(apperror.KindNotFound, "no device on channel %s", channelID)
}

func (s *fakeDeviceStore) FindByResource(ctx context.Context, resourceID string) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Device
	for _, d := range s.devices {
		if d.ResourceID == resourceID {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeDeviceStore) List(ctx context.Context, status string, limit, offset int) ([]*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Device
	for _, d := range s.devices {
		if status != "" && d.Status != status {
			continue
		}
		copied := *d
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeDeviceStore) Save(ctx context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		s.nextID++
		d.ID = fmt.Sprintf("dev%d", s.nextID)
	}
	copied := *d
	s.devices[d.ID] = &copied
	return nil
}

func (s *fakeDeviceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}

func (s *fakeDeviceStore) AppendLog(ctx context.Context, l *models.DeviceLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *l
	s.logs = append(s.logs, &copied)
	return nil
}

func (s *fakeDeviceStore) ListLogs(ctx context.Context, deviceID string, logType models.DeviceLogType, limit int) ([]*models.DeviceLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DeviceLog
	for _, l := range s.logs {
		if l.DeviceID != deviceID {
			continue
		}
		if logType != "" && l.LogType != logType {
			continue
		}
		copied := *l
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakeDeviceStore) AppendTelemetry(ctx context.Context, t *models.DeviceTelemetry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.rows = append(s.rows, &copied)
	return nil
}

func (s *fakeDeviceStore) ListTelemetry(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]*models.DeviceTelemetry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DeviceTelemetry
	for _, row := range s.rows {
		if row.DeviceID == deviceID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeDeviceStore) seed(d *models.Device) *models.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		s.nextID++
		d.ID = fmt.Sprintf("dev%d", s.nextID)
	}
	copied := *d
	s.devices[d.ID] = &copied
	return d
}

type sentCommand struct {
	DeviceRef string
	Command   string
}

type fakePort struct {
	mu      sync.Mutex
	sends   []sentCommand
	sendErr error
}

func (p *fakePort) Send(ctx context.Context, deviceRef, command string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sends = append(p.sends, sentCommand{DeviceRef: deviceRef, Command: command})
	return nil
}

func (p *fakePort) sent() []sentCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]sentCommand, len(p.sends))
	copy(out, p.sends)
	return out
}
