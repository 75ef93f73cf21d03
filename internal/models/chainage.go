package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ChainageRange is one historical activity interval along the pipeline route.
// Start/End are in metres from kilometre zero.
type ChainageRange struct {
	ReportDate string  `json:"reportDate"`
	Spread     string  `json:"spread"`
	RangeStart float64 `json:"rangeStart"`
	RangeEnd   float64 `json:"rangeEnd"`
}

// ChainageCacheEntry is the cached historical range set for one activity type.
// Entries are advisory, read-only data: each refresh rebuilds the whole
// collection, individual entries are never partially mutated.
type ChainageCacheEntry struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ActivityType string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"activityType"`
	Ranges       datatypes.JSON `gorm:"type:jsonb;not null" json:"ranges"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// TableName specifies the table name
func (ChainageCacheEntry) TableName() string {
	return "chainage_cache"
}

// DecodeRanges unmarshals the stored range list
func (e *ChainageCacheEntry) DecodeRanges() ([]ChainageRange, error) {
	var ranges []ChainageRange
	if len(e.Ranges) == 0 {
		return ranges, nil
	}
	err := json.Unmarshal(e.Ranges, &ranges)
	return ranges, err
}

// EncodeRanges marshals a range list into the entry
func (e *ChainageCacheEntry) EncodeRanges(ranges []ChainageRange) error {
	data, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	e.Ranges = datatypes.JSON(data)
	return nil
}
