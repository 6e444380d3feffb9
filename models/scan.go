package models

import "time"

type ScanType string

const (
	ScanCheckIn  ScanType = "check_in"
	ScanCheckOut ScanType = "check_out"
	ScanAccess   ScanType = "access"
)

// AccessScanRecord is the append-only audit entry written for every
// successful scan. Records are never mutated or deleted.
type AccessScanRecord struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	SubjectID     string    `json:"subject_id"`
	ScanType      ScanType  `json:"scan_type"`
	DeviceRef     string    `json:"device_ref,omitempty"`
	ScannedAt     time.Time `json:"scanned_at"`
}
