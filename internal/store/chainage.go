package store

import (
	"errors"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/database"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/gorm"
)

// ChainageStore is the historical-range cache collection. It is rebuilt
// wholesale on each refresh and never partially mutated.
type ChainageStore struct {
	db *database.DB
}

// NewChainageStore creates a new chainage store
func NewChainageStore(db *database.DB) *ChainageStore {
	return &ChainageStore{db: db}
}

// ReplaceAll atomically swaps the entire cache for a new set of entries
func (s *ChainageStore) ReplaceAll(entries []models.ChainageCacheEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM chainage_cache").Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

// All returns every cached entry
func (s *ChainageStore) All() ([]models.ChainageCacheEntry, error) {
	var entries []models.ChainageCacheEntry
	err := s.db.Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the cached entry for one activity type, or nil when the cache
// has no data for it
func (s *ChainageStore) Get(activityType string) (*models.ChainageCacheEntry, error) {
	var entry models.ChainageCacheEntry
	err := s.db.Where("activity_type = ?", activityType).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// OldestUpdate returns the oldest updated_at in the cache. The zero time
// with ok=false means the cache is empty.
func (s *ChainageStore) OldestUpdate() (time.Time, bool, error) {
	var entry models.ChainageCacheEntry
	err := s.db.Order("updated_at asc").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return entry.UpdatedAt, true, nil
}
