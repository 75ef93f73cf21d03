package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pipetrax/fieldsyncgo/internal/database"
	"github.com/pipetrax/fieldsyncgo/internal/models"
)

// AttachmentStore is the binary-attachment collection. Attachments live
// apart from report records so queueing a report stays fast regardless of
// how many photos it carries.
type AttachmentStore struct {
	db *database.DB
}

// NewAttachmentStore creates a new attachment store
func NewAttachmentStore(db *database.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

// Store persists one attachment and returns its id. Success or failure is
// per attachment — a failed photo never poisons its siblings.
func (s *AttachmentStore) Store(att *models.Attachment) (string, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.SyncStatus == "" {
		att.SyncStatus = models.AttachmentPending
	}
	if att.SizeBytes == 0 {
		att.SizeBytes = int64(len(att.Content))
	}

	if err := s.db.Create(att).Error; err != nil {
		return "", fmt.Errorf("failed to persist attachment for report %s: %w", att.ReportID, err)
	}
	return att.ID, nil
}

// ListByReport returns all attachments for a report in slot order,
// regardless of sync status
func (s *AttachmentStore) ListByReport(reportID string) ([]models.Attachment, error) {
	var atts []models.Attachment
	err := s.db.Where("report_id = ?", reportID).
		Order("position asc, created_at asc").
		Find(&atts).Error
	if err != nil {
		return nil, err
	}
	return atts, nil
}

// MarkUploaded records where an attachment now lives remotely
func (s *AttachmentStore) MarkUploaded(id string, remoteRef string) error {
	return s.db.Model(&models.Attachment{}).
		Where("attachment_id = ?", id).
		Updates(map[string]interface{}{
			"sync_status": models.AttachmentUploaded,
			"remote_ref":  remoteRef,
			"updated_at":  time.Now().UTC(),
		}).Error
}

// DeleteByReport bulk-removes a report's attachments. Called only once the
// owning report has been committed remotely or explicitly discarded.
func (s *AttachmentStore) DeleteByReport(reportID string) error {
	return s.db.Where("report_id = ?", reportID).Delete(&models.Attachment{}).Error
}
