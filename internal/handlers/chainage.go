package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pipetrax/fieldsyncgo/internal/chainage"
)

// chainageStatus returns what the local cache currently holds, so the UI can
// show how current its advisory warnings are
func (r *Router) chainageStatus(w http.ResponseWriter, req *http.Request) {
	entries, err := r.chainage.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read chainage cache")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// ChainageCheckRequest asks for overlap warnings for in-progress blocks
type ChainageCheckRequest struct {
	Blocks      []chainage.BlockRange `json:"blocks"`
	ExcludeDate string                `json:"excludeDate,omitempty"`
}

// checkChainage answers an overlap check from the local cache only
func (r *Router) checkChainage(w http.ResponseWriter, req *http.Request) {
	var body ChainageCheckRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	warnings, skipped, err := r.chainage.CheckOverlapsOffline(body.Blocks, body.ExcludeDate)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Chainage check failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"warnings":      warnings,
		"skippedBlocks": skipped,
	})
}

// refreshChainage forces a cache rebuild from the remote recent window
func (r *Router) refreshChainage(w http.ResponseWriter, req *http.Request) {
	if !r.monitor.CheckNow() {
		respondError(w, http.StatusServiceUnavailable, "Cannot refresh chainage cache while offline")
		return
	}

	if err := r.chainage.Refresh(); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "refreshed",
	})
}
