package sync

import "github.com/pipetrax/fieldsyncgo/internal/models"

// Resolution is a conflict-resolution decision made outside the engine
type Resolution string

const (
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionDefer      Resolution = "defer"
)

// NaturalKey identifies a real-world inspection event: two reports with the
// same key describe the same day's work on the same spread by the same
// inspector for the same company.
type NaturalKey struct {
	ReportDate  string `json:"reportDate"`
	Spread      string `json:"spread"`
	InspectorID string `json:"inspectorId"`
	CompanyID   string `json:"companyId"`
}

// RemoteReport is a report row as it exists in the remote system of record
type RemoteReport struct {
	RemoteID    int64                  `json:"remoteId"`
	ReportDate  string                 `json:"reportDate"`
	Spread      string                 `json:"spread"`
	InspectorID string                 `json:"inspectorId"`
	CompanyID   string                 `json:"companyId"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// ReportQueue is the pending-report slice of the local durable store
type ReportQueue interface {
	Get(id string) (*models.PendingReport, error)
	ListByStatus(status models.ReportStatus) ([]models.PendingReport, error)
	MarkSyncing(id string) (*models.PendingReport, error)
	SetStatus(id string, status models.ReportStatus, lastErr *string) error
	ResetForRetry(id string) error
	Delete(id string) error
	Counts() (map[models.ReportStatus]int64, error)
}

// AttachmentSource is the attachment slice of the local durable store
type AttachmentSource interface {
	ListByReport(reportID string) ([]models.Attachment, error)
	MarkUploaded(id string, remoteRef string) error
	DeleteByReport(reportID string) error
}

// Remote is the narrow face of the remote system of record the engine needs
type Remote interface {
	// FindReportByKey returns nil, nil when no record matches the key
	FindReportByKey(key NaturalKey) (*RemoteReport, error)
	// UploadAttachment stores the binary remotely and returns a durable reference
	UploadAttachment(att *models.Attachment) (string, error)
	InsertReport(values map[string]interface{}) (int64, error)
	InsertReportStatus(remoteID int64, attachmentsExpected, attachmentsUploaded int) (int64, error)
	DeleteReport(remoteID int64) error
	Ping() error
}
