package model

import "time"

// TransferStatus is the terminal state of the last transfer attempt.
type TransferStatus string

const (
	StatusSuccess TransferStatus = "success"
	StatusFailed  TransferStatus = "failed"
	StatusPending TransferStatus = "pending"
)

// DeviceRecord is the persisted per-track sync state: what was last
// transferred, where it lives on the device, and how the attempt ended.
// Records are keyed uniquely by track id and mutated only after the
// corresponding device operation completed.
type DeviceRecord struct {
	TrackID     string         `gorm:"primaryKey;column:track_id"`
	Fingerprint string         `gorm:"column:fingerprint"`
	DevicePath  string         `gorm:"column:device_path"`
	SyncedAt    time.Time      `gorm:"column:synced_at"`
	Status      TransferStatus `gorm:"column:status"`
}

// TableName keeps the table name stable across GORM naming strategies.
func (DeviceRecord) TableName() string {
	return "device_records"
}
