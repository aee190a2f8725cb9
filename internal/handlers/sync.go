package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// getSyncStatus returns the coordinator's current state
func (r *Router) getSyncStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.coordinator.Status())
}

// triggerFullSync queues a full sync cycle
func (r *Router) triggerFullSync(w http.ResponseWriter, req *http.Request) {
	r.coordinator.RequestFullSync()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}

// triggerRecordSync queues reconciliation of a single record
func (r *Router) triggerRecordSync(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	r.coordinator.RequestRecordSync(vars["table"], vars["id"])
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"table":  vars["table"],
		"record": vars["id"],
	})
}

// cancelSync asks an in-progress cycle to stop after the current record
func (r *Router) cancelSync(w http.ResponseWriter, req *http.Request) {
	r.coordinator.RequestCancel()
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "cancel_requested",
	})
}

// getQueueStats returns retry queue and upload tracker depth
func (r *Router) getQueueStats(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"retryQueue": r.retries.Stats(),
		"uploads":    r.uploads.Stats(),
	})
}

// getRecentErrors returns the bounded sync error history
func (r *Router) getRecentErrors(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"errors": r.errlog.Recent(limit),
	})
}
