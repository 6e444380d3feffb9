package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"
	"golang.org/x/crypto/bcrypt"

	"reservation-system/apperror"
	"reservation-system/config"
	"reservation-system/models"
	"reservation-system/monitoring"
	"reservation-system/utils"
)

// PubNubCommandPort publishes device commands on the device's command
// channel. Dispatches run through a circuit breaker so a dead broker trips
// to Unreachable instead of piling up blocked sends.
type PubNubCommandPort struct {
	pn          *pubnub.PubNub
	breaker     *utils.CircuitBreaker
	topicPrefix string
}

func NewPubNubCommandPort(pn *pubnub.PubNub, topicPrefix string) *PubNubCommandPort {
	return &PubNubCommandPort{
		pn:          pn,
		breaker:     utils.NewCircuitBreaker("device-commands"),
		topicPrefix: topicPrefix,
	}
}

func (p *PubNubCommandPort) Send(ctx context.Context, deviceRef, command string, payload map[string]any) error {
	message := map[string]any{
		"command":   command,
		"payload":   payload,
		"timestamp": time.Now().UnixMilli(),
	}
	channel := fmt.Sprintf("%s/devices/%s/commands", p.topicPrefix, deviceRef)

	_, err := p.breaker.Execute(ctx, func() (any, error) {
		_, _, err := p.pn.PublishWithContext(ctx).
			Channel(channel).
			Message(message).
			Execute()
		return nil, err
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperror.Wrap(apperror.KindTimeout, "device command timed out", err)
		}
		return apperror.Wrap(apperror.KindUnreachable, "device command dispatch failed", err)
	}
	return nil
}

type RegisterDeviceRequest struct {
	Name       string            `json:"name"`
	Type       models.DeviceType `json:"type"`
	MacAddress string            `json:"mac_address"`
	Location   string            `json:"location"`
	ResourceID string            `json:"resource_id"`
}

// DeviceService manages the device registry and the command/telemetry
// flows between reservations and physical devices.
type DeviceService struct {
	devices DeviceStore
	port    DeviceCommandPort
	pn      *pubnub.PubNub
	clock   Clock
	cfg     *config.Config
}

func NewDeviceService(devices DeviceStore, port DeviceCommandPort, pn *pubnub.PubNub, clock Clock, cfg *config.Config) *DeviceService {
	return &DeviceService{
		devices: devices,
		port:    port,
		pn:      pn,
		clock:   clock,
		cfg:     cfg,
	}
}

// Register stores a new device and returns the API key the device will
// authenticate scans with. The key is returned exactly once; only its
// bcrypt hash is kept.
func (s *DeviceService) Register(ctx context.Context, req RegisterDeviceRequest) (*models.Device, string, error) {
	if req.Name == "" || req.Type == "" {
		return nil, "", apperror.New(apperror.KindInvalidArgument, "device name and type are required")
	}

	apiKey, err := utils.GenerateCode(16)
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	device := &models.Device{
		Name:       req.Name,
		Type:       req.Type,
		MacAddress: req.MacAddress,
		Location:   req.Location,
		ResourceID: req.ResourceID,
		ChannelID:  uuid.NewString(),
		APIKeyHash: string(hash),
		Status:     "offline",
	}
	if err := s.devices.Save(ctx, device); err != nil {
		return nil, "", err
	}

	s.appendLog(ctx, device.ID, models.DeviceLogSystem, "device registered", "")

	return device, apiKey, nil
}

// VerifyAPIKey authenticates a scanning device.
func (s *DeviceService) VerifyAPIKey(ctx context.Context, deviceID, apiKey string) error {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.APIKeyHash), []byte(apiKey)); err != nil {
		return apperror.New(apperror.KindTokenInvalid, "invalid device api key")
	}
	return nil
}

func (s *DeviceService) GetByID(ctx context.Context, id string) (*models.Device, error) {
	return s.devices.FindByID(ctx, id)
}

func (s *DeviceService) List(ctx context.Context, status string, limit, offset int) ([]*models.Device, error) {
	return s.devices.List(ctx, status, limit, offset)
}

func (s *DeviceService) ListByResource(ctx context.Context, resourceID string) ([]*models.Device, error) {
	return s.devices.FindByResource(ctx, resourceID)
}

func (s *DeviceService) Delete(ctx context.Context, id string) error {
	return s.devices.Delete(ctx, id)
}

// SendCommand dispatches an arbitrary command to the device and records it
// in the device log.
func (s *DeviceService) SendCommand(ctx context.Context, deviceID, command string, payload map[string]any) error {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.DeviceCommandTimeout)
	defer cancel()

	start := s.clock.Now()
	err = s.port.Send(sendCtx, device.ChannelID, command, payload)
	monitoring.TrackDeviceCommand(command, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		return err
	}

	data, _ := json.Marshal(map[string]any{"command": command, "payload": payload})
	s.appendLog(ctx, device.ID, models.DeviceLogCommand, fmt.Sprintf("command sent: %s", command), string(data))

	return nil
}

// ControlDoorLock locks or unlocks a door-lock class device.
func (s *DeviceService) ControlDoorLock(ctx context.Context, deviceID, action string) error {
	if action != "lock" && action != "unlock" {
		return apperror.Newf(apperror.KindInvalidArgument, "unsupported lock action %q", action)
	}

	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if !device.Type.RequiresUnlock() {
		return apperror.New(apperror.KindInvalidArgument, "device is not a door lock")
	}

	return s.SendCommand(ctx, deviceID, action, map[string]any{})
}

// Ping checks device connectivity by sending a ping command.
func (s *DeviceService) Ping(ctx context.Context, deviceID string) error {
	return s.SendCommand(ctx, deviceID, "ping", map[string]any{})
}

func (s *DeviceService) ListLogs(ctx context.Context, deviceID string, logType models.DeviceLogType, limit int) ([]*models.DeviceLog, error) {
	return s.devices.ListLogs(ctx, deviceID, logType, limit)
}

func (s *DeviceService) ListTelemetry(ctx context.Context, deviceID string, start, end time.Time, limit int) ([]*models.DeviceTelemetry, error) {
	return s.devices.ListTelemetry(ctx, deviceID, start, end, limit)
}

// SubscribeToDeviceEvents consumes device status, telemetry and event
// messages published by the field devices.
func (s *DeviceService) SubscribeToDeviceEvents(ctx context.Context) {
	if s.pn == nil {
		return
	}

	channels := []string{
		fmt.Sprintf("%s-device-status", s.cfg.DeviceTopicPrefix),
		fmt.Sprintf("%s-device-telemetry", s.cfg.DeviceTopicPrefix),
		fmt.Sprintf("%s-device-events", s.cfg.DeviceTopicPrefix),
	}

	listener := pubnub.NewListener()
	s.pn.AddListener(listener)
	s.pn.Subscribe().
		Channels(channels).
		Execute()

	for {
		select {
		case <-ctx.Done():
			s.pn.Unsubscribe().Channels(channels).Execute()
			return
		case message := <-listener.Message:
			go s.handleDeviceMessage(ctx, message)
		case status := <-listener.Status:
			if status.Category == pubnub.PNDisconnectedCategory {
				slog.Warn("disconnected from device channels")
			}
		}
	}
}

func (s *DeviceService) handleDeviceMessage(ctx context.Context, message *pubnub.PNMessage) {
	data, ok := message.Message.(map[string]any)
	if !ok {
		return
	}

	channelID, _ := data["device_id"].(string)
	if channelID == "" {
		return
	}

	device, err := s.devices.FindByChannel(ctx, channelID)
	if err != nil {
		slog.Warn("message from unknown device", "channel", channelID)
		return
	}

	switch {
	case strings.HasSuffix(message.Channel, "-device-status"):
		s.handleStatusMessage(ctx, device, data)
	case strings.HasSuffix(message.Channel, "-device-telemetry"):
		s.handleTelemetryMessage(ctx, device, data)
	case strings.HasSuffix(message.Channel, "-device-events"):
		s.handleEventMessage(ctx, device, data)
	}
}

func (s *DeviceService) handleStatusMessage(ctx context.Context, device *models.Device, data map[string]any) {
	status, _ := data["status"].(string)
	if status == "" {
		status = "online"
	}

	now := s.clock.Now()
	device.Status = status
	device.LastSeenAt = &now
	if err := s.devices.Save(ctx, device); err != nil {
		slog.Error("failed to update device status", "device", device.ID, "error", err)
		return
	}

	raw, _ := json.Marshal(data)
	s.appendLog(ctx, device.ID, models.DeviceLogStatus, fmt.Sprintf("device status changed to %s", status), string(raw))
}

func (s *DeviceService) handleTelemetryMessage(ctx context.Context, device *models.Device, data map[string]any) {
	raw, _ := json.Marshal(data)
	telemetry := &models.DeviceTelemetry{
		DeviceID:       device.ID,
		Temperature:    floatField(data, "temperature"),
		Humidity:       floatField(data, "humidity"),
		BatteryLevel:   floatField(data, "battery_level"),
		SignalStrength: floatField(data, "signal_strength"),
		Data:           string(raw),
	}
	if err := s.devices.AppendTelemetry(ctx, telemetry); err != nil {
		slog.Error("failed to store telemetry", "device", device.ID, "error", err)
	}
}

func (s *DeviceService) handleEventMessage(ctx context.Context, device *models.Device, data map[string]any) {
	message, _ := data["message"].(string)
	if message == "" {
		message = "device event"
	}
	raw, _ := json.Marshal(data)
	s.appendLog(ctx, device.ID, models.DeviceLogEvent, message, string(raw))
}

func (s *DeviceService) appendLog(ctx context.Context, deviceID string, logType models.DeviceLogType, message, data string) {
	log := &models.DeviceLog{
		DeviceID: deviceID,
		LogType:  logType,
		Message:  message,
		Data:     data,
	}
	if err := s.devices.AppendLog(ctx, log); err != nil {
		slog.Error("failed to append device log", "device", deviceID, "error", err)
	}
}

func floatField(data map[string]any, key string) float64 {
	v, _ := data[key].(float64)
	return v
}
