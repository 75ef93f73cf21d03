package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/config"
	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/datatypes"
)

// fakeQueue is an in-memory ReportQueue
type fakeQueue struct {
	mu      sync.Mutex
	reports map[string]*models.PendingReport
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{reports: make(map[string]*models.PendingReport)}
}

func (q *fakeQueue) add(rep *models.PendingReport) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rep.Status == "" {
		rep.Status = models.ReportStatusPendingSync
	}
	if rep.SavedOfflineAt.IsZero() {
		rep.SavedOfflineAt = time.Now().UTC()
	}
	cp := *rep
	q.reports[rep.ID] = &cp
}

func (q *fakeQueue) Get(id string) (*models.PendingReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rep, ok := q.reports[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *rep
	return &cp, nil
}

func (q *fakeQueue) ListByStatus(status models.ReportStatus) ([]models.PendingReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.PendingReport
	for _, rep := range q.reports {
		if rep.Status == status {
			out = append(out, *rep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SavedOfflineAt.Before(out[j].SavedOfflineAt)
	})
	return out, nil
}

func (q *fakeQueue) MarkSyncing(id string) (*models.PendingReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rep, ok := q.reports[id]
	if !ok {
		return nil, errors.New("not found")
	}
	rep.Status = models.ReportStatusSyncing
	rep.SyncAttempts++
	cp := *rep
	return &cp, nil
}

func (q *fakeQueue) SetStatus(id string, status models.ReportStatus, lastErr *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	rep, ok := q.reports[id]
	if !ok {
		return errors.New("not found")
	}
	rep.Status = status
	rep.LastError = lastErr
	return nil
}

func (q *fakeQueue) ResetForRetry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	rep, ok := q.reports[id]
	if !ok {
		return errors.New("not found")
	}
	rep.Status = models.ReportStatusPendingSync
	rep.SyncAttempts = 0
	rep.LastError = nil
	return nil
}

func (q *fakeQueue) Delete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.reports, id)
	return nil
}

func (q *fakeQueue) Counts() (map[models.ReportStatus]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := map[models.ReportStatus]int64{
		models.ReportStatusPendingSync: 0,
		models.ReportStatusSyncing:     0,
		models.ReportStatusConflict:    0,
		models.ReportStatusFailed:      0,
	}
	for _, rep := range q.reports {
		counts[rep.Status]++
	}
	return counts, nil
}

// fakeAttachments is an in-memory AttachmentSource
type fakeAttachments struct {
	mu   sync.Mutex
	byID map[string]*models.Attachment
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{byID: make(map[string]*models.Attachment)}
}

func (a *fakeAttachments) add(att models.Attachment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if att.SyncStatus == "" {
		att.SyncStatus = models.AttachmentPending
	}
	cp := att
	a.byID[att.ID] = &cp
}

func (a *fakeAttachments) ListByReport(reportID string) ([]models.Attachment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.Attachment
	for _, att := range a.byID {
		if att.ReportID == reportID {
			out = append(out, *att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (a *fakeAttachments) MarkUploaded(id string, remoteRef string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	att, ok := a.byID[id]
	if !ok {
		return errors.New("not found")
	}
	att.SyncStatus = models.AttachmentUploaded
	att.RemoteRef = &remoteRef
	return nil
}

func (a *fakeAttachments) DeleteByReport(reportID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, att := range a.byID {
		if att.ReportID == reportID {
			delete(a.byID, id)
		}
	}
	return nil
}

func (a *fakeAttachments) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byID)
}

// statusRow records one InsertReportStatus call
type statusRow struct {
	remoteID int64
	expected int
	uploaded int
}

// fakeRemote is a scriptable in-memory Remote
type fakeRemote struct {
	mu sync.Mutex

	existing map[NaturalKey]*RemoteReport

	findErr    error
	insertErr  error
	failUpload map[string]bool // attachment id -> fail

	inserted   []map[string]interface{}
	statusRows []statusRow
	deleted    []int64
	nextID     int64

	findGate chan struct{} // when set, FindReportByKey blocks until closed
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		existing:   make(map[NaturalKey]*RemoteReport),
		failUpload: make(map[string]bool),
		nextID:     100,
	}
}

func (r *fakeRemote) FindReportByKey(key NaturalKey) (*RemoteReport, error) {
	r.mu.Lock()
	gate := r.findGate
	err := r.findErr
	rep := r.existing[key]
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *fakeRemote) UploadAttachment(att *models.Attachment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpload[att.ID] {
		return "", errors.New("upload rejected")
	}
	r.nextID++
	return fmt.Sprintf("ir.attachment/%d", r.nextID), nil
}

func (r *fakeRemote) InsertReport(values map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.nextID++
	r.inserted = append(r.inserted, values)
	// Committed rows become visible to subsequent natural-key lookups
	key := NaturalKey{
		ReportDate:  values["report_date"].(string),
		Spread:      values["spread"].(string),
		InspectorID: values["inspector_ref"].(string),
		CompanyID:   values["company_ref"].(string),
	}
	r.existing[key] = &RemoteReport{
		RemoteID:    r.nextID,
		ReportDate:  key.ReportDate,
		Spread:      key.Spread,
		InspectorID: key.InspectorID,
		CompanyID:   key.CompanyID,
	}
	return r.nextID, nil
}

func (r *fakeRemote) InsertReportStatus(remoteID int64, expected, uploaded int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusRows = append(r.statusRows, statusRow{remoteID, expected, uploaded})
	r.nextID++
	return r.nextID, nil
}

func (r *fakeRemote) DeleteReport(remoteID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, remoteID)
	for key, rep := range r.existing {
		if rep.RemoteID == remoteID {
			delete(r.existing, key)
		}
	}
	return nil
}

func (r *fakeRemote) Ping() error { return nil }

func (r *fakeRemote) setInsertErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertErr = err
}

func (r *fakeRemote) setFindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findErr = err
}

func testConfig() *config.SyncConfig {
	return &config.SyncConfig{MaxAttempts: 5, RetryDelaySeconds: 1}
}

func testReport(t *testing.T, id string, photoIDs ...string) *models.PendingReport {
	t.Helper()
	slots := make([]models.PhotoSlot, 0, len(photoIDs))
	for i, pid := range photoIDs {
		slots = append(slots, models.PhotoSlot{AttachmentID: pid, Position: i})
	}
	payload := models.ReportPayload{
		ReportDate:  "2026-08-28",
		Spread:      "Spread 3",
		InspectorID: "insp-7",
		CompanyID:   "acme",
		Blocks: []models.ActivityBlock{
			{BlockID: "b1", ActivityType: "welding", StationStart: "12+000", StationEnd: "12+500", Photos: slots},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return &models.PendingReport{
		ID:          id,
		ReportDate:  payload.ReportDate,
		Spread:      payload.Spread,
		InspectorID: payload.InspectorID,
		CompanyID:   payload.CompanyID,
		Payload:     datatypes.JSON(raw),
	}
}

func waitForEvent(t *testing.T, ch chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestSyncCommitsReportWithAttachments(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	rep := testReport(t, "rep-1", "att-1", "att-2")
	queue.add(rep)
	atts.add(models.Attachment{ID: "att-1", ReportID: "rep-1", BlockID: "b1", Kind: models.AttachmentKindPhoto, Position: 0})
	atts.add(models.Attachment{ID: "att-2", ReportID: "rep-1", BlockID: "b1", Kind: models.AttachmentKindPhoto, Position: 1})

	if !engine.SyncAll() {
		t.Fatal("SyncAll reported another drain in progress")
	}

	if len(remote.inserted) != 1 {
		t.Fatalf("got %d remote inserts, want 1", len(remote.inserted))
	}
	values := remote.inserted[0]
	if values["report_date"] != "2026-08-28" || values["spread"] != "Spread 3" {
		t.Errorf("unexpected insert values: %+v", values)
	}

	var payload models.ReportPayload
	if err := json.Unmarshal([]byte(values["payload_json"].(string)), &payload); err != nil {
		t.Fatalf("Failed to decode committed payload: %v", err)
	}
	photos := payload.Blocks[0].Photos
	if len(photos) != 2 {
		t.Fatalf("got %d photo slots, want 2", len(photos))
	}
	if photos[0].Position != 0 || photos[1].Position != 1 {
		t.Errorf("slot order not preserved: %+v", photos)
	}
	for _, slot := range photos {
		if slot.RemoteRef == "" {
			t.Errorf("slot %s has no remote reference", slot.AttachmentID)
		}
	}

	if len(remote.statusRows) != 1 {
		t.Fatalf("got %d status rows, want 1", len(remote.statusRows))
	}
	if row := remote.statusRows[0]; row.expected != 2 || row.uploaded != 2 {
		t.Errorf("status row = %+v, want 2/2", row)
	}

	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("committed report still in local queue")
	}
	if atts.count() != 0 {
		t.Errorf("%d attachments left locally, want 0", atts.count())
	}
}

func TestSyncSkipsFailedAttachmentWithoutBlockingReport(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	remote.failUpload["att-2"] = true
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1", "att-1", "att-2"))
	atts.add(models.Attachment{ID: "att-1", ReportID: "rep-1", BlockID: "b1", Kind: models.AttachmentKindPhoto, Position: 0})
	atts.add(models.Attachment{ID: "att-2", ReportID: "rep-1", BlockID: "b1", Kind: models.AttachmentKindPhoto, Position: 1})

	engine.SyncAll()

	if len(remote.inserted) != 1 {
		t.Fatalf("report not committed despite attachment failure")
	}

	var payload models.ReportPayload
	json.Unmarshal([]byte(remote.inserted[0]["payload_json"].(string)), &payload)
	photos := payload.Blocks[0].Photos
	if len(photos) != 1 || photos[0].AttachmentID != "att-1" {
		t.Errorf("payload photos = %+v, want only att-1", photos)
	}

	if row := remote.statusRows[0]; row.expected != 2 || row.uploaded != 1 {
		t.Errorf("status row = %+v, want expected=2 uploaded=1", row)
	}
}

func TestSyncDetectsConflict(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	key := NaturalKey{ReportDate: "2026-08-28", Spread: "Spread 3", InspectorID: "insp-7", CompanyID: "acme"}
	remote.existing[key] = &RemoteReport{RemoteID: 900, ReportDate: key.ReportDate, Spread: key.Spread, InspectorID: key.InspectorID, CompanyID: key.CompanyID}

	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	queue.add(testReport(t, "rep-1"))
	engine.SyncAll()

	ev := waitForEvent(t, events, EventConflictDetected)
	if ev.Remote == nil || ev.Remote.RemoteID != 900 {
		t.Errorf("conflict event missing remote version: %+v", ev)
	}
	if ev.Local == nil || ev.Local.ID != "rep-1" {
		t.Errorf("conflict event missing local version: %+v", ev)
	}

	rep, _ := queue.Get("rep-1")
	if rep.Status != models.ReportStatusConflict {
		t.Errorf("report status = %s, want conflict", rep.Status)
	}
	if len(remote.inserted) != 0 {
		t.Error("conflicted report was inserted remotely")
	}
}

func TestDrainRecoversRecordStrandedInSyncing(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	// Power loss mid-drain: the record was persisted as syncing and the
	// process restarted
	rep := testReport(t, "rep-1")
	rep.Status = models.ReportStatusSyncing
	queue.add(rep)

	engine.SyncAll()

	if len(remote.inserted) != 1 {
		t.Fatalf("stranded record not committed (%d remote inserts)", len(remote.inserted))
	}
	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("stranded record still queued after recovery drain")
	}
}

func TestRecoveredRecordAlreadyCommittedParksInConflict(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	// The crash happened after the remote commit but before local cleanup
	key := NaturalKey{ReportDate: "2026-08-28", Spread: "Spread 3", InspectorID: "insp-7", CompanyID: "acme"}
	remote.existing[key] = &RemoteReport{RemoteID: 900, ReportDate: key.ReportDate, Spread: key.Spread, InspectorID: key.InspectorID, CompanyID: key.CompanyID}

	rep := testReport(t, "rep-1")
	rep.Status = models.ReportStatusSyncing
	queue.add(rep)

	engine.SyncAll()

	got, err := queue.Get("rep-1")
	if err != nil {
		t.Fatal("recovered record disappeared")
	}
	if got.Status != models.ReportStatusConflict {
		t.Errorf("recovered record status = %s, want conflict (no duplicate insert)", got.Status)
	}
	if len(remote.inserted) != 0 {
		t.Errorf("recovery duplicated the remote record (%d inserts)", len(remote.inserted))
	}
}

func TestRetryTimerReArmsWhileDrainInProgress(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	remote.findGate = make(chan struct{})
	engine := NewEngine(queue, atts, remote, testConfig())
	engine.retryDelay = 20 * time.Millisecond
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	done := make(chan bool)
	go func() { done <- engine.SyncAll() }()
	// Give the drain time to take the guard and block on the remote
	time.Sleep(50 * time.Millisecond)

	// A retry timer firing mid-drain cannot start a second drain; it must
	// re-arm rather than drop the retry until the next auto-sync tick
	engine.retryAfterDelay("rep-2")
	if !engine.retries.Pending("rep-2") {
		t.Fatal("retry dropped while the drain was busy")
	}

	close(remote.findGate)
	<-done

	// Once the drain finishes, the re-armed timer fires and clears itself
	deadline := time.Now().Add(2 * time.Second)
	for engine.retries.Pending("rep-2") {
		if time.Now().After(deadline) {
			t.Fatal("re-armed retry never ran after the drain finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSecondReportWithSameKeyLandsInConflict(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	// Two inspectors' devices filed the same day/spread/inspector/company
	first := testReport(t, "rep-1")
	second := testReport(t, "rep-2")
	second.SavedOfflineAt = time.Now().UTC().Add(time.Second)
	queue.add(first)
	queue.add(second)

	engine.SyncAll()

	if len(remote.inserted) != 1 {
		t.Fatalf("got %d remote inserts, want 1 (no silent duplicate)", len(remote.inserted))
	}
	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("first report not committed")
	}
	rep, err := queue.Get("rep-2")
	if err != nil {
		t.Fatal("second report disappeared")
	}
	if rep.Status != models.ReportStatusConflict {
		t.Errorf("second report status = %s, want conflict", rep.Status)
	}
}

func TestReconnectDrivesDrain(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	pinger := &fakePinger{err: errors.New("no coverage")}
	monitor := NewMonitor(pinger, time.Hour)
	monitor.OnOnline(func() { engine.SyncAll() })

	if monitor.CheckNow() {
		t.Fatal("monitor online while pinger fails")
	}
	if len(remote.inserted) != 0 {
		t.Fatal("report synced while offline")
	}

	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	// Back into coverage: the transition alone must drain the queue
	pinger.set(nil)
	monitor.CheckNow()

	waitForEvent(t, events, EventSyncCompleted)
	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("report still queued after reconnect drain")
	}
}

func TestResolveConflictKeepLocal(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	key := NaturalKey{ReportDate: "2026-08-28", Spread: "Spread 3", InspectorID: "insp-7", CompanyID: "acme"}
	remote.existing[key] = &RemoteReport{RemoteID: 900, ReportDate: key.ReportDate, Spread: key.Spread, InspectorID: key.InspectorID, CompanyID: key.CompanyID}

	queue.add(testReport(t, "rep-1"))
	engine.SyncAll()

	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	if err := engine.ResolveConflict("rep-1", ResolutionKeepLocal); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	waitForEvent(t, events, EventSyncCompleted)

	if len(remote.deleted) != 1 || remote.deleted[0] != 900 {
		t.Errorf("remote record not deleted: %v", remote.deleted)
	}
	// Exactly one remote copy survives: the local one, freshly committed
	if len(remote.inserted) != 1 {
		t.Errorf("got %d remote inserts, want 1", len(remote.inserted))
	}
	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("local record still queued after keep_local commit")
	}
}

func TestResolveConflictKeepServer(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	key := NaturalKey{ReportDate: "2026-08-28", Spread: "Spread 3", InspectorID: "insp-7", CompanyID: "acme"}
	remote.existing[key] = &RemoteReport{RemoteID: 900}

	queue.add(testReport(t, "rep-1", "att-1"))
	atts.add(models.Attachment{ID: "att-1", ReportID: "rep-1", BlockID: "b1", Kind: models.AttachmentKindPhoto})
	engine.SyncAll()

	if err := engine.ResolveConflict("rep-1", ResolutionKeepServer); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("local record survived keep_server")
	}
	if atts.count() != 0 {
		t.Error("local attachments survived keep_server")
	}
	// The remote record is untouched
	if len(remote.deleted) != 0 || len(remote.inserted) != 0 {
		t.Errorf("keep_server mutated the remote (deleted=%v inserted=%d)", remote.deleted, len(remote.inserted))
	}
}

func TestResolveConflictDeferLeavesRecord(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	key := NaturalKey{ReportDate: "2026-08-28", Spread: "Spread 3", InspectorID: "insp-7", CompanyID: "acme"}
	remote.existing[key] = &RemoteReport{RemoteID: 900}

	queue.add(testReport(t, "rep-1"))
	engine.SyncAll()

	if err := engine.ResolveConflict("rep-1", ResolutionDefer); err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}

	rep, err := queue.Get("rep-1")
	if err != nil {
		t.Fatal("deferred record disappeared")
	}
	if rep.Status != models.ReportStatusConflict {
		t.Errorf("deferred record status = %s, want conflict", rep.Status)
	}
}

func TestResolveConflictRejectsNonConflicted(t *testing.T) {
	queue := newFakeQueue()
	engine := NewEngine(queue, newFakeAttachments(), newFakeRemote(), testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	if err := engine.ResolveConflict("rep-1", ResolutionKeepServer); err == nil {
		t.Error("resolved a report that was not in conflict")
	}
}

func TestFailedAttemptRequeuesUntilBudgetExhausted(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	remote.setFindErr(errors.New("network down"))
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	// Attempts 1 through 4: back onto the queue each time
	for want := 1; want <= 4; want++ {
		engine.SyncAll()
		rep, _ := queue.Get("rep-1")
		if rep.SyncAttempts != want {
			t.Fatalf("after drain %d: attempts = %d, want %d", want, rep.SyncAttempts, want)
		}
		if rep.Status != models.ReportStatusPendingSync {
			t.Fatalf("after drain %d: status = %s, want pending_sync", want, rep.Status)
		}
		if rep.LastError == nil {
			t.Fatalf("after drain %d: last error not recorded", want)
		}
		// Clear the armed retry timer so the next drain picks the record up
		engine.retries.Cancel("rep-1")
	}

	// Attempt 5 fails: terminal. Attempt 6 is never started.
	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	engine.SyncAll()
	ev := waitForEvent(t, events, EventSyncError)
	if !ev.Terminal {
		t.Error("fifth failure was not marked terminal")
	}

	rep, _ := queue.Get("rep-1")
	if rep.Status != models.ReportStatusFailed {
		t.Fatalf("status = %s, want failed", rep.Status)
	}
	if rep.SyncAttempts != 5 {
		t.Fatalf("attempts = %d, want 5", rep.SyncAttempts)
	}

	// A further drain must not touch the failed record
	engine.SyncAll()
	rep, _ = queue.Get("rep-1")
	if rep.SyncAttempts != 5 {
		t.Errorf("failed record was retried (attempts = %d)", rep.SyncAttempts)
	}
}

func TestRetryTimerDrivesNextAttempt(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	remote.setInsertErr(errors.New("remote insert rejected"))
	engine := NewEngine(queue, atts, remote, testConfig())
	engine.retryDelay = 20 * time.Millisecond
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	engine.SyncAll()
	waitForEvent(t, events, EventSyncError)

	// Heal the remote; the armed timer should finish the job on its own
	remote.setInsertErr(nil)
	waitForEvent(t, events, EventSyncCompleted)

	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("report still queued after timer-driven retry")
	}
}

func TestRequeueResetsFailedRecord(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	rep := testReport(t, "rep-1")
	rep.Status = models.ReportStatusFailed
	rep.SyncAttempts = 5
	queue.add(rep)

	events := engine.Events().Subscribe()
	defer engine.Events().Unsubscribe(events)

	if err := engine.Requeue("rep-1"); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	waitForEvent(t, events, EventSyncCompleted)
	if _, err := queue.Get("rep-1"); err == nil {
		t.Error("requeued report not committed")
	}
}

func TestRequeueRejectsNonFailed(t *testing.T) {
	queue := newFakeQueue()
	engine := NewEngine(queue, newFakeAttachments(), newFakeRemote(), testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	if err := engine.Requeue("rep-1"); err == nil {
		t.Error("requeued a report that had not failed")
	}
}

func TestConcurrentSyncAllCollapses(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	remote.findGate = make(chan struct{})
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1"))

	started := make(chan struct{})
	done := make(chan bool)
	go func() {
		close(started)
		done <- engine.SyncAll()
	}()

	<-started
	// Give the first drain time to take the guard and block on the remote
	time.Sleep(50 * time.Millisecond)

	if engine.SyncAll() {
		t.Error("second drain ran while the first was in progress")
	}

	close(remote.findGate)
	if !<-done {
		t.Error("first drain reported itself as a duplicate")
	}
}

func TestAlreadyUploadedAttachmentsAreNotReuploaded(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	queue.add(testReport(t, "rep-1", "att-1"))
	ref := "ir.attachment/55"
	atts.add(models.Attachment{
		ID: "att-1", ReportID: "rep-1", BlockID: "b1",
		Kind: models.AttachmentKindPhoto, SyncStatus: models.AttachmentUploaded, RemoteRef: &ref,
	})

	engine.SyncAll()

	var payload models.ReportPayload
	json.Unmarshal([]byte(remote.inserted[0]["payload_json"].(string)), &payload)
	if got := payload.Blocks[0].Photos[0].RemoteRef; got != ref {
		t.Errorf("remote ref = %q, want existing %q", got, ref)
	}
	if row := remote.statusRows[0]; row.uploaded != 1 {
		t.Errorf("status row = %+v, want uploaded=1", row)
	}
}

func TestSignatureSwappedForRemoteRef(t *testing.T) {
	queue := newFakeQueue()
	atts := newFakeAttachments()
	remote := newFakeRemote()
	engine := NewEngine(queue, atts, remote, testConfig())
	defer engine.Stop()

	payload := models.ReportPayload{
		ReportDate:  "2026-08-28",
		Spread:      "Spread 3",
		InspectorID: "insp-7",
		CompanyID:   "acme",
		Signature:   "sig-1",
	}
	raw, _ := json.Marshal(payload)
	queue.add(&models.PendingReport{
		ID: "rep-1", ReportDate: payload.ReportDate, Spread: payload.Spread,
		InspectorID: payload.InspectorID, CompanyID: payload.CompanyID,
		Payload: datatypes.JSON(raw),
	})
	atts.add(models.Attachment{ID: "sig-1", ReportID: "rep-1", Kind: models.AttachmentKindSignature})

	engine.SyncAll()

	var committed models.ReportPayload
	json.Unmarshal([]byte(remote.inserted[0]["payload_json"].(string)), &committed)
	if committed.Signature == "" || committed.Signature == "sig-1" {
		t.Errorf("signature = %q, want remote reference", committed.Signature)
	}
}
