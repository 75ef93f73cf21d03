package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReportStatus represents the sync lifecycle state of a pending report
type ReportStatus string

const (
	ReportStatusPendingSync ReportStatus = "pending_sync"
	ReportStatusSyncing     ReportStatus = "syncing"
	ReportStatusConflict    ReportStatus = "conflict"
	ReportStatusFailed      ReportStatus = "failed"
)

// PendingReport is a locally queued inspection report awaiting remote commit.
// The payload is opaque to the sync engine except for the natural-key columns,
// which are duplicated out of the payload so conflict lookups never need to
// parse JSON.
type PendingReport struct {
	ID          string `gorm:"column:report_id;primaryKey;type:uuid" json:"reportId"`
	ReportDate  string `gorm:"type:varchar(10);not null;index:idx_natural_key" json:"reportDate"` // YYYY-MM-DD
	Spread      string `gorm:"type:varchar(100);not null;index:idx_natural_key" json:"spread"`
	InspectorID string `gorm:"type:varchar(255);not null;index:idx_natural_key" json:"inspectorId"`
	CompanyID   string `gorm:"type:varchar(255);not null;index:idx_natural_key" json:"companyId"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`

	Status       ReportStatus `gorm:"type:varchar(20);default:'pending_sync';index" json:"status"`
	SyncAttempts int          `gorm:"default:0" json:"syncAttempts"`
	LastError    *string      `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt      time.Time `json:"createdAt"`
	SavedOfflineAt time.Time `gorm:"not null" json:"savedOfflineAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (PendingReport) TableName() string {
	return "pending_reports"
}
