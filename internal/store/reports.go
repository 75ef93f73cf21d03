package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pipetrax/fieldsyncgo/internal/database"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/gorm"
)

// ReportStore is the pending-report collection of the local durable store.
// The sync engine is the only writer of status/attempt transitions; the
// handlers layer only inserts and reads.
type ReportStore struct {
	db *database.DB
}

// NewReportStore creates a new report store
func NewReportStore(db *database.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Insert durably persists a new pending report. The write has hit the
// database before this returns — there is no deferred flush.
func (s *ReportStore) Insert(report *models.PendingReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusPendingSync
	}
	if report.SavedOfflineAt.IsZero() {
		report.SavedOfflineAt = time.Now().UTC()
	}

	if err := s.db.Create(report).Error; err != nil {
		return fmt.Errorf("failed to persist pending report: %w", err)
	}
	return nil
}

// Get returns a pending report by id
func (s *ReportStore) Get(id string) (*models.PendingReport, error) {
	var report models.PendingReport
	err := s.db.Where("report_id = ?", id).First(&report).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ListByStatus returns all reports currently in the given status
func (s *ReportStore) ListByStatus(status models.ReportStatus) ([]models.PendingReport, error) {
	var reports []models.PendingReport
	err := s.db.Where("status = ?", status).
		Order("saved_offline_at asc").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// MarkSyncing transitions a report to syncing and increments its attempt
// counter in the same update, before any network call is made. Returns the
// record as it now stands.
func (s *ReportStore) MarkSyncing(id string) (*models.PendingReport, error) {
	err := s.db.Model(&models.PendingReport{}).
		Where("report_id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.ReportStatusSyncing,
			"sync_attempts": gorm.Expr("sync_attempts + 1"),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to mark report %s syncing: %w", id, err)
	}
	return s.Get(id)
}

// SetStatus updates a report's status and last error
func (s *ReportStore) SetStatus(id string, status models.ReportStatus, lastErr *string) error {
	return s.db.Model(&models.PendingReport{}).
		Where("report_id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastErr,
		}).Error
}

// ResetForRetry returns a report to the queue with a fresh attempt budget
func (s *ReportStore) ResetForRetry(id string) error {
	return s.db.Model(&models.PendingReport{}).
		Where("report_id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.ReportStatusPendingSync,
			"sync_attempts": 0,
			"last_error":    nil,
		}).Error
}

// Delete removes a report record. Called only after confirmed remote commit
// or an explicit keep_server resolution.
func (s *ReportStore) Delete(id string) error {
	return s.db.Where("report_id = ?", id).Delete(&models.PendingReport{}).Error
}

// Counts returns the backlog broken down by status. Always answerable from
// the store, even mid-drain or offline.
func (s *ReportStore) Counts() (map[models.ReportStatus]int64, error) {
	type row struct {
		Status models.ReportStatus
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.PendingReport{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[models.ReportStatus]int64{
		models.ReportStatusPendingSync: 0,
		models.ReportStatusSyncing:     0,
		models.ReportStatusConflict:    0,
		models.ReportStatusFailed:      0,
	}
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}
