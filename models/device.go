package models

import "time"

type DeviceType string

const (
	DeviceDoorLock   DeviceType = "door_lock"
	DeviceSmartLock  DeviceType = "smart_lock"
	DeviceSensor     DeviceType = "sensor"
	DeviceThermostat DeviceType = "thermostat"
	DeviceCamera     DeviceType = "camera"
)

// RequiresUnlock reports whether granting physical access to this device
// class involves sending an unlock command. Non-lock classes only get the
// audit record.
func (t DeviceType) RequiresUnlock() bool {
	return t == DeviceDoorLock || t == DeviceSmartLock
}

type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       DeviceType `json:"type"`
	MacAddress string     `json:"mac_address,omitempty"`
	Location   string     `json:"location,omitempty"`
	ResourceID string     `json:"resource_id,omitempty"`
	ChannelID  string     `json:"channel_id"`
	APIKeyHash string     `json:"-"`
	Status     string     `json:"status"` // online, offline
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type DeviceLogType string

const (
	DeviceLogStatus  DeviceLogType = "status"
	DeviceLogEvent   DeviceLogType = "event"
	DeviceLogCommand DeviceLogType = "command"
	DeviceLogSystem  DeviceLogType = "system"
)

type DeviceLog struct {
	ID       string        `json:"id"`
	DeviceID string        `json:"device_id"`
	LogType  DeviceLogType `json:"log_type"`
	Message  string        `json:"message"`
	Data     string        `json:"data,omitempty"`
	Created  time.Time     `json:"created"`
}

type DeviceTelemetry struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"device_id"`
	Temperature    float64   `json:"temperature,omitempty"`
	Humidity       float64   `json:"humidity,omitempty"`
	BatteryLevel   float64   `json:"battery_level,omitempty"`
	SignalStrength float64   `json:"signal_strength,omitempty"`
	Data           string    `json:"data,omitempty"`
	Created        time.Time `json:"created"`
}
