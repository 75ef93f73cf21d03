package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pipetrax/fieldsyncgo/internal/chainage"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/datatypes"
)

// AttachmentUpload is one binary arriving with a new report
type AttachmentUpload struct {
	AttachmentID string `json:"attachmentId"`
	BlockID      string `json:"blockId,omitempty"`
	Kind         string `json:"kind"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Position     int    `json:"position"`
	Content      string `json:"content"` // base64
}

// CreateReportRequest is the offline-save request body. The payload's photo
// slots reference attachments by the client-assigned attachmentId.
type CreateReportRequest struct {
	Payload     models.ReportPayload `json:"payload"`
	Attachments []AttachmentUpload   `json:"attachments"`
}

// createReport durably queues a report locally. The 201 means the data is on
// disk; syncing happens afterwards, opportunistically.
func (r *Router) createReport(w http.ResponseWriter, req *http.Request) {
	var body CreateReportRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	p := body.Payload
	if p.ReportDate == "" || p.Spread == "" || p.InspectorID == "" || p.CompanyID == "" {
		respondError(w, http.StatusBadRequest, "reportDate, spread, inspectorId and companyId are required")
		return
	}

	raw, err := json.Marshal(p)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unserializable report payload")
		return
	}

	rep := &models.PendingReport{
		ID:          uuid.NewString(),
		ReportDate:  p.ReportDate,
		Spread:      p.Spread,
		InspectorID: p.InspectorID,
		CompanyID:   p.CompanyID,
		Payload:     datatypes.JSON(raw),
	}

	if err := r.reports.Insert(rep); err != nil {
		log.Printf("🔴 Failed to queue report: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to persist report")
		return
	}

	// Attachments are stored one by one; a bad photo is reported back but
	// never blocks the report itself.
	attachmentErrors := map[string]string{}
	for _, up := range body.Attachments {
		content, derr := base64.StdEncoding.DecodeString(up.Content)
		if derr != nil {
			attachmentErrors[up.AttachmentID] = "invalid base64 content"
			continue
		}

		kind := models.AttachmentKind(up.Kind)
		if kind != models.AttachmentKindPhoto && kind != models.AttachmentKindSignature {
			kind = models.AttachmentKindPhoto
		}

		att := &models.Attachment{
			ID:           up.AttachmentID,
			ReportID:     rep.ID,
			BlockID:      up.BlockID,
			Kind:         kind,
			Content:      content,
			OriginalName: up.OriginalName,
			MimeType:     up.MimeType,
			Position:     up.Position,
		}
		if _, serr := r.attachments.Store(att); serr != nil {
			log.Printf("⚠️ Failed to store attachment %s: %v", up.AttachmentID, serr)
			attachmentErrors[up.AttachmentID] = serr.Error()
		}
	}

	r.engine.NotifyRecordSaved(rep)

	// Advisory overlap check against the local cache; never blocks the save
	warnings, skipped := r.checkPayloadOverlaps(&p)

	if r.monitor.IsOnline() {
		go r.engine.SyncAll()
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"reportId":         rep.ID,
		"status":           rep.Status,
		"savedOfflineAt":   rep.SavedOfflineAt,
		"warnings":         warnings,
		"skippedBlocks":    skipped,
		"attachmentErrors": attachmentErrors,
	})
}

// checkPayloadOverlaps runs the offline chainage check for every block that
// carries a station range
func (r *Router) checkPayloadOverlaps(p *models.ReportPayload) ([]chainage.OverlapWarning, []string) {
	blocks := make([]chainage.BlockRange, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		if b.StationStart == "" && b.StationEnd == "" {
			continue
		}
		blocks = append(blocks, chainage.BlockRange{
			BlockID:      b.BlockID,
			ActivityType: b.ActivityType,
			StationStart: b.StationStart,
			StationEnd:   b.StationEnd,
		})
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	warnings, skipped, err := r.chainage.CheckOverlapsOffline(blocks, p.ReportDate)
	if err != nil {
		log.Printf("⚠️ Chainage check failed: %v", err)
		return nil, nil
	}
	return warnings, skipped
}

// listReports returns queued reports, optionally filtered by status
func (r *Router) listReports(w http.ResponseWriter, req *http.Request) {
	status := models.ReportStatus(req.URL.Query().Get("status"))
	if status == "" {
		status = models.ReportStatusPendingSync
	}

	reports, err := r.reports.ListByStatus(status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read report queue")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"reports": reports,
	})
}

// getReport returns one queued report with its attachment metadata
func (r *Router) getReport(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	rep, err := r.reports.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Report not found")
		return
	}

	atts, err := r.attachments.ListByReport(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read attachments")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"report":      rep,
		"attachments": atts,
	})
}
