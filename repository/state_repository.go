package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dapsync/model"
)

// SyncStateRepository defines the interface for device record persistence.
// Records are keyed by track id; Put overwrites atomically.
type SyncStateRepository interface {
	Get(trackID string) (*model.DeviceRecord, error)
	Put(record *model.DeviceRecord) error
	Delete(trackID string) error
	ListAll() ([]model.DeviceRecord, error)
}

// gormStateRepository implements SyncStateRepository on GORM.
type gormStateRepository struct {
	db *gorm.DB
}

// NewGormStateRepository creates a new instance of gormStateRepository.
func NewGormStateRepository(db *gorm.DB) SyncStateRepository {
	return &gormStateRepository{db: db}
}

// Get retrieves the record for a track id, or nil when absent.
func (r *gormStateRepository) Get(trackID string) (*model.DeviceRecord, error) {
	var record model.DeviceRecord
	err := r.db.First(&record, "track_id = ?", trackID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device record %s: %w", trackID, err)
	}
	return &record, nil
}

// Put inserts or overwrites the record for its track id. The write is a
// single-row upsert, so a crash can never leave a partial record behind.
func (r *gormStateRepository) Put(record *model.DeviceRecord) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "track_id"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to put device record %s: %w", record.TrackID, err)
	}
	return nil
}

// Delete removes the record for a track id. Deleting an absent record is
// not an error.
func (r *gormStateRepository) Delete(trackID string) error {
	err := r.db.Delete(&model.DeviceRecord{}, "track_id = ?", trackID).Error
	if err != nil {
		return fmt.Errorf("failed to delete device record %s: %w", trackID, err)
	}
	return nil
}

// ListAll returns every device record in insertion order.
func (r *gormStateRepository) ListAll() ([]model.DeviceRecord, error) {
	records := make([]model.DeviceRecord, 0)
	err := r.db.Order("synced_at, track_id").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list device records: %w", err)
	}
	return records, nil
}
