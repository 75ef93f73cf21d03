package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	syncpkg "github.com/pipetrax/fieldsyncgo/internal/sync"
)

// syncStatus returns whether a drain is running plus the backlog breakdown
func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	status, err := r.engine.Status()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read sync status")
		return
	}
	status["online"] = r.monitor.IsOnline()
	respondJSON(w, http.StatusOK, status)
}

// syncCounts returns the queue broken down by status
func (r *Router) syncCounts(w http.ResponseWriter, req *http.Request) {
	counts, err := r.reports.Counts()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count queued reports")
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// runSync triggers a manual drain. The probe runs first so a user hitting
// "sync now" right after regaining signal gets an immediate answer.
func (r *Router) runSync(w http.ResponseWriter, req *http.Request) {
	if !r.monitor.CheckNow() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"triggered": false,
			"online":    false,
		})
		return
	}

	go r.engine.SyncAll()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"triggered": true,
		"online":    true,
	})
}

// ResolveRequest carries the conflict decision
type ResolveRequest struct {
	Resolution string `json:"resolution"` // keep_local | keep_server | defer
}

// resolveConflict applies a conflict decision to one report
func (r *Router) resolveConflict(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	var body ResolveRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	resolution := syncpkg.Resolution(body.Resolution)
	switch resolution {
	case syncpkg.ResolutionKeepLocal, syncpkg.ResolutionKeepServer, syncpkg.ResolutionDefer:
	default:
		respondError(w, http.StatusBadRequest, "resolution must be keep_local, keep_server or defer")
		return
	}

	if resolution == syncpkg.ResolutionKeepLocal && !r.monitor.IsOnline() {
		respondError(w, http.StatusServiceUnavailable, "keep_local needs connectivity to remove the remote record")
		return
	}

	if err := r.engine.ResolveConflict(id, resolution); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"reportId":   id,
		"resolution": body.Resolution,
	})
}

// requeueReport puts a terminally failed report back on the queue
func (r *Router) requeueReport(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]

	if err := r.engine.Requeue(id); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"reportId": id,
		"status":   "pending_sync",
	})
}
