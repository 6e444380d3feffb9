package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"reservation-system/models"
	"reservation-system/services"
)

type DeviceHandler struct {
	devices *services.DeviceService
}

func NewDeviceHandler(devices *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// RegisterDevice creates a device and returns its API key once. Staff only.
func (h *DeviceHandler) RegisterDevice(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	var req services.RegisterDeviceRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	device, apiKey, err := h.devices.Register(e.Request.Context(), req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"device":  device,
		"api_key": apiKey,
	})
}

func (h *DeviceHandler) GetDevice(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	device, err := h.devices.GetByID(e.Request.Context(), e.Request.PathValue("deviceId"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, device)
}

func (h *DeviceHandler) ListDevices(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	status := e.Request.URL.Query().Get("status")
	limit := queryInt(e, "limit", 100)
	offset := queryInt(e, "offset", 0)

	devices, err := h.devices.List(e.Request.Context(), status, limit, offset)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"devices": devices})
}

func (h *DeviceHandler) DeleteDevice(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	if err := h.devices.Delete(e.Request.Context(), e.Request.PathValue("deviceId")); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Device deleted"})
}

// ControlDoorLock sends a lock or unlock command to a door device.
func (h *DeviceHandler) ControlDoorLock(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	if err := h.devices.ControlDoorLock(e.Request.Context(), e.Request.PathValue("deviceId"), req.Action); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Command sent"})
}

func (h *DeviceHandler) PingDevice(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	if err := h.devices.Ping(e.Request.Context(), e.Request.PathValue("deviceId")); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Ping sent"})
}

func (h *DeviceHandler) GetDeviceLogs(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	logType := models.DeviceLogType(e.Request.URL.Query().Get("type"))
	limit := queryInt(e, "limit", 100)

	logs, err := h.devices.ListLogs(e.Request.Context(), e.Request.PathValue("deviceId"), logType, limit)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"logs": logs})
}

func (h *DeviceHandler) GetDeviceTelemetry(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewForbiddenError("Staff access required", nil)
	}

	var start, end time.Time
	if raw := e.Request.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apis.NewBadRequestError("start must be RFC3339", err)
		}
		start = t
	}
	if raw := e.Request.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apis.NewBadRequestError("end must be RFC3339", err)
		}
		end = t
	}
	limit := queryInt(e, "limit", 200)

	rows, err := h.devices.ListTelemetry(e.Request.Context(), e.Request.PathValue("deviceId"), start, end, limit)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"telemetry": rows})
}
