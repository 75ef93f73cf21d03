package sync

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/config"
	"github.com/pipetrax/fieldsyncgo/internal/models"
)

// Engine drains the pending-report queue against the remote system of
// record. It is the sole mutator of report status transitions; everything
// else observes through the event bus or reads the store directly.
type Engine struct {
	mu             sync.Mutex
	syncInProgress bool

	reports     ReportQueue
	attachments AttachmentSource
	remote      Remote

	events  *EventBus
	retries *retryScheduler

	maxAttempts int
	retryDelay  time.Duration
}

// NewEngine creates a new sync engine
func NewEngine(reports ReportQueue, attachments AttachmentSource, remote Remote, cfg *config.SyncConfig) *Engine {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}

	return &Engine{
		reports:     reports,
		attachments: attachments,
		remote:      remote,
		events:      NewEventBus(),
		retries:     newRetryScheduler(),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Events returns the engine's event bus for subscribers
func (e *Engine) Events() *EventBus {
	return e.events
}

// Stop cancels all pending retry timers
func (e *Engine) Stop() {
	e.retries.CancelAll()
}

// NotifyRecordSaved publishes the record-saved event for a freshly queued
// report. The caller (handlers layer) has already completed the durable write.
func (e *Engine) NotifyRecordSaved(rep *models.PendingReport) {
	e.events.Publish(Event{Type: EventRecordSaved, ReportID: rep.ID, Local: rep})
}

// SyncAll performs one full drain of the pending queue. Concurrent
// invocations collapse into the one already running: the call returns false
// without doing anything. Records are processed sequentially so remote-side
// conflict checks stay race-free relative to each other.
func (e *Engine) SyncAll() bool {
	e.mu.Lock()
	if e.syncInProgress {
		e.mu.Unlock()
		log.Println("⏳ Sync already in progress, skipping")
		return false
	}
	e.syncInProgress = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncInProgress = false
		e.mu.Unlock()
	}()

	// Records left in syncing by a crash or an interrupted drain get another
	// chance. Re-attempting a record whose remote commit did land is safe:
	// the natural-key check parks it in conflict instead of duplicating it.
	stuck, err := e.reports.ListByStatus(models.ReportStatusSyncing)
	if err != nil {
		log.Printf("🔴 Failed to scan for stranded records: %v", err)
	} else {
		for _, rep := range stuck {
			log.Printf("🔄 Recovering report %s stranded in syncing", rep.ID)
			if serr := e.reports.SetStatus(rep.ID, models.ReportStatusPendingSync, rep.LastError); serr != nil {
				log.Printf("🔴 Failed to recover report %s: %v", rep.ID, serr)
			}
		}
	}

	pending, err := e.reports.ListByStatus(models.ReportStatusPendingSync)
	if err != nil {
		log.Printf("🔴 Failed to read pending queue: %v", err)
		e.events.Publish(Event{Type: EventSyncError, Err: err.Error()})
		return true
	}

	if len(pending) == 0 {
		return true
	}

	log.Printf("🔄 Draining %d pending report(s)...", len(pending))
	for _, rep := range pending {
		if e.retries.Pending(rep.ID) {
			// Waiting out its per-record retry delay
			continue
		}
		e.syncRecord(rep.ID)
	}
	return true
}

// syncRecord runs the full commit procedure for one report: conflict check,
// attachment uploads, payload assembly, remote insert, linked status row,
// local cleanup. Any step failing leaves the record on a retry path; a
// natural-key match parks it in conflict.
func (e *Engine) syncRecord(id string) {
	rep, err := e.reports.MarkSyncing(id)
	if err != nil {
		// Local store failures threaten durability: surface, never swallow
		log.Printf("🔴 Local store error marking report %s syncing: %v", id, err)
		e.events.Publish(Event{Type: EventSyncError, ReportID: id, Err: err.Error()})
		return
	}

	e.events.Publish(Event{Type: EventSyncStarted, ReportID: rep.ID, Local: rep})

	// Step 1: conflict check by natural key
	key := NaturalKey{
		ReportDate:  rep.ReportDate,
		Spread:      rep.Spread,
		InspectorID: rep.InspectorID,
		CompanyID:   rep.CompanyID,
	}
	remoteRep, err := e.remote.FindReportByKey(key)
	if err != nil {
		e.failAttempt(rep, fmt.Errorf("conflict check failed: %w", err))
		return
	}
	if remoteRep != nil {
		msg := "a remote report already exists for this date/spread/inspector/company"
		if serr := e.reports.SetStatus(rep.ID, models.ReportStatusConflict, &msg); serr != nil {
			log.Printf("🔴 Failed to park report %s in conflict: %v", rep.ID, serr)
		}
		e.retries.Cancel(rep.ID)
		e.events.Publish(Event{Type: EventConflictDetected, ReportID: rep.ID, Local: rep, Remote: remoteRep})
		log.Printf("⚠️ Conflict detected: report %s vs remote %d (%s / %s)", rep.ID, remoteRep.RemoteID, rep.ReportDate, rep.Spread)
		return
	}

	// Step 2: upload pending attachments, each independently
	atts, err := e.attachments.ListByReport(rep.ID)
	if err != nil {
		e.failAttempt(rep, fmt.Errorf("failed to list attachments: %w", err))
		return
	}

	refs := make(map[string]string, len(atts))
	uploaded := 0
	for i := range atts {
		att := &atts[i]
		if att.SyncStatus == models.AttachmentUploaded && att.RemoteRef != nil {
			// Already uploaded on an earlier attempt
			refs[att.ID] = *att.RemoteRef
			uploaded++
			continue
		}

		ref, uerr := e.remote.UploadAttachment(att)
		if uerr != nil {
			// Isolated failure: one bad photo must not block the report
			log.Printf("⚠️ Upload failed for attachment %s (report %s): %v", att.ID, rep.ID, uerr)
			continue
		}
		if merr := e.attachments.MarkUploaded(att.ID, ref); merr != nil {
			log.Printf("🔴 Failed to record upload of attachment %s: %v", att.ID, merr)
			continue
		}
		refs[att.ID] = ref
		uploaded++
	}

	// Step 3: assemble the remote payload with real attachment references
	values, err := e.assemblePayload(rep, refs)
	if err != nil {
		e.failAttempt(rep, err)
		return
	}

	// Step 4: insert the report row
	remoteID, err := e.remote.InsertReport(values)
	if err != nil {
		e.failAttempt(rep, fmt.Errorf("remote insert failed: %w", err))
		return
	}

	// Step 5: linked status row, carrying the attachment accounting so a
	// partially-synced report is visible remotely rather than silent
	if _, err := e.remote.InsertReportStatus(remoteID, len(atts), uploaded); err != nil {
		e.failAttempt(rep, fmt.Errorf("remote status insert failed: %w", err))
		return
	}

	// Step 6: local cleanup — attachments first, then the report record
	if err := e.attachments.DeleteByReport(rep.ID); err != nil {
		log.Printf("🔴 Local store error deleting attachments for %s: %v", rep.ID, err)
		e.events.Publish(Event{Type: EventSyncError, ReportID: rep.ID, Err: err.Error()})
		return
	}
	if err := e.reports.Delete(rep.ID); err != nil {
		log.Printf("🔴 Local store error deleting report %s: %v", rep.ID, err)
		e.events.Publish(Event{Type: EventSyncError, ReportID: rep.ID, Err: err.Error()})
		return
	}

	e.retries.Cancel(rep.ID)
	e.events.Publish(Event{Type: EventSyncCompleted, ReportID: rep.ID, RemoteID: remoteID})
	log.Printf("✅ Report %s committed remotely (id %d, %d/%d attachments)", rep.ID, remoteID, uploaded, len(atts))
}

// failAttempt handles a non-conflict failure: back onto the queue with a
// per-record retry timer while the attempt budget lasts, terminal failed
// state once the next attempt would exceed it.
func (e *Engine) failAttempt(rep *models.PendingReport, cause error) {
	msg := cause.Error()
	log.Printf("⚠️ Sync attempt %d/%d failed for report %s: %v", rep.SyncAttempts, e.maxAttempts, rep.ID, cause)

	if rep.SyncAttempts < e.maxAttempts {
		if err := e.reports.SetStatus(rep.ID, models.ReportStatusPendingSync, &msg); err != nil {
			log.Printf("🔴 Failed to requeue report %s: %v", rep.ID, err)
		}
		e.retries.Schedule(rep.ID, e.retryDelay, func() {
			e.retryAfterDelay(rep.ID)
		})
		e.events.Publish(Event{Type: EventSyncError, ReportID: rep.ID, Err: msg})
		return
	}

	// The attempt that would be number maxAttempts+1 is never started
	if err := e.reports.SetStatus(rep.ID, models.ReportStatusFailed, &msg); err != nil {
		log.Printf("🔴 Failed to mark report %s failed: %v", rep.ID, err)
	}
	e.retries.Cancel(rep.ID)
	e.events.Publish(Event{Type: EventSyncError, ReportID: rep.ID, Err: msg, Terminal: true})
	log.Printf("🔴 Report %s marked failed after %d attempts, manual requeue required", rep.ID, rep.SyncAttempts)
}

// retryAfterDelay runs when a record's retry timer fires. A drain already in
// progress took its snapshot before this record went back onto the queue, so
// a skipped SyncAll would quietly stretch the retry to the next auto-sync
// tick; re-arm instead.
func (e *Engine) retryAfterDelay(id string) {
	if e.SyncAll() {
		return
	}
	e.retries.Schedule(id, e.retryDelay, func() {
		e.retryAfterDelay(id)
	})
}

// assemblePayload builds the remote insert values, swapping each photo
// slot's local attachment id for the remote reference obtained during
// upload. Slot order is preserved; slots whose upload failed are dropped
// from the remote payload (the status row carries the discrepancy).
func (e *Engine) assemblePayload(rep *models.PendingReport, refs map[string]string) (map[string]interface{}, error) {
	var payload models.ReportPayload
	if err := json.Unmarshal(rep.Payload, &payload); err != nil {
		return nil, fmt.Errorf("malformed report payload: %w", err)
	}

	for bi := range payload.Blocks {
		block := &payload.Blocks[bi]
		if len(block.Photos) == 0 {
			continue
		}
		slots := make([]models.PhotoSlot, 0, len(block.Photos))
		for _, slot := range block.Photos {
			ref, ok := refs[slot.AttachmentID]
			if !ok {
				continue
			}
			slot.RemoteRef = ref
			slots = append(slots, slot)
		}
		block.Photos = slots
	}

	if payload.Signature != "" {
		if ref, ok := refs[payload.Signature]; ok {
			payload.Signature = ref
		} else {
			payload.Signature = ""
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal assembled payload: %w", err)
	}

	return map[string]interface{}{
		"report_date":   rep.ReportDate,
		"spread":        rep.Spread,
		"inspector_ref": rep.InspectorID,
		"company_ref":   rep.CompanyID,
		"client_ref":    rep.ID,
		"payload_json":  string(body),
	}, nil
}

// ResolveConflict applies an external resolution decision to a conflicted
// record. keep_local removes the remote record and immediately retries the
// local one; keep_server discards the local record and its attachments with
// no remote mutation; defer leaves everything as is.
func (e *Engine) ResolveConflict(reportID string, resolution Resolution) error {
	rep, err := e.reports.Get(reportID)
	if err != nil {
		return fmt.Errorf("report %s not found: %w", reportID, err)
	}
	if rep.Status != models.ReportStatusConflict {
		return fmt.Errorf("report %s is not in conflict (status %s)", reportID, rep.Status)
	}

	switch resolution {
	case ResolutionKeepLocal:
		key := NaturalKey{
			ReportDate:  rep.ReportDate,
			Spread:      rep.Spread,
			InspectorID: rep.InspectorID,
			CompanyID:   rep.CompanyID,
		}
		remoteRep, err := e.remote.FindReportByKey(key)
		if err != nil {
			return fmt.Errorf("failed to re-query conflicting record: %w", err)
		}
		if remoteRep != nil {
			if err := e.remote.DeleteReport(remoteRep.RemoteID); err != nil {
				return fmt.Errorf("failed to delete conflicting remote record: %w", err)
			}
		}
		e.retries.Cancel(reportID)
		if err := e.reports.ResetForRetry(reportID); err != nil {
			return err
		}
		log.Printf("🔄 Conflict on %s resolved keep_local, retrying sync", reportID)
		go e.SyncAll()
		return nil

	case ResolutionKeepServer:
		e.retries.Cancel(reportID)
		if err := e.attachments.DeleteByReport(reportID); err != nil {
			return err
		}
		if err := e.reports.Delete(reportID); err != nil {
			return err
		}
		log.Printf("🗑️ Conflict on %s resolved keep_server, local record discarded", reportID)
		return nil

	case ResolutionDefer:
		return nil

	default:
		return fmt.Errorf("unknown resolution %q", resolution)
	}
}

// Requeue resets a terminally failed record for another round of attempts
func (e *Engine) Requeue(reportID string) error {
	rep, err := e.reports.Get(reportID)
	if err != nil {
		return fmt.Errorf("report %s not found: %w", reportID, err)
	}
	if rep.Status != models.ReportStatusFailed {
		return fmt.Errorf("report %s is not failed (status %s)", reportID, rep.Status)
	}

	if err := e.reports.ResetForRetry(reportID); err != nil {
		return err
	}
	log.Printf("🔄 Report %s manually requeued", reportID)
	go e.SyncAll()
	return nil
}

// Status returns the current sync state plus the backlog breakdown
func (e *Engine) Status() (map[string]interface{}, error) {
	counts, err := e.reports.Counts()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	inProgress := e.syncInProgress
	e.mu.Unlock()

	return map[string]interface{}{
		"sync_in_progress": inProgress,
		"counts":           counts,
	}, nil
}
