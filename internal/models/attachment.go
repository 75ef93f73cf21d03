package models

import (
	"time"

	"gorm.io/datatypes"
)

// AttachmentKind distinguishes the two roles an attachment can play in a report
type AttachmentKind string

const (
	AttachmentKindPhoto     AttachmentKind = "photo"
	AttachmentKindSignature AttachmentKind = "signature"
)

// AttachmentSyncStatus tracks whether the binary has been uploaded remotely
type AttachmentSyncStatus string

const (
	AttachmentPending  AttachmentSyncStatus = "pending"
	AttachmentUploaded AttachmentSyncStatus = "uploaded"
)

// Attachment is a binary payload (photo or signature image) belonging to one
// block of a pending report. Kept in its own collection so report metadata
// updates never rewrite megabytes of image data.
type Attachment struct {
	ID       string         `gorm:"column:attachment_id;primaryKey;type:uuid" json:"attachmentId"`
	ReportID string         `gorm:"type:uuid;not null;index" json:"reportId"`
	BlockID  string         `gorm:"type:varchar(100);not null" json:"blockId"`
	Kind     AttachmentKind `gorm:"type:varchar(20);not null" json:"kind"`

	Content []byte `gorm:"type:bytea;not null" json:"-"`

	OriginalName string         `gorm:"type:varchar(255)" json:"originalName"`
	MimeType     string         `gorm:"type:varchar(100)" json:"mimeType"`
	SizeBytes    int64          `json:"sizeBytes"`
	Position     int            `gorm:"default:0" json:"position"`
	Extra        datatypes.JSON `gorm:"type:jsonb" json:"extra,omitempty"` // free-form descriptive fields (caption, GPS, etc.)

	SyncStatus AttachmentSyncStatus `gorm:"type:varchar(20);default:'pending';index" json:"syncStatus"`
	RemoteRef  *string              `gorm:"type:varchar(500)" json:"remoteRef,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (Attachment) TableName() string {
	return "attachments"
}
