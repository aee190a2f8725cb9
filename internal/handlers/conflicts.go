package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/opslink-dev/fieldsync/internal/middleware"
	"github.com/opslink-dev/fieldsync/internal/report"
)

// getRecentConflicts returns the newest audit entries.
// Optional query params: limit, start, end (epoch millis, inclusive).
func (r *Router) getRecentConflicts(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	if q.Get("start") != "" || q.Get("end") != "" {
		start, _ := strconv.ParseInt(q.Get("start"), 10, 64)
		end, err := strconv.ParseInt(q.Get("end"), 10, 64)
		if err != nil || q.Get("end") == "" {
			end = time.Now().UnixMilli()
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"conflicts": r.audit.ByTimeRange(start, end),
		})
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": r.audit.Recent(limit),
	})
}

// getEscalatedConflicts returns entries waiting for human review
func (r *Router) getEscalatedConflicts(w http.ResponseWriter, req *http.Request) {
	escalated := r.audit.Escalated()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(escalated),
		"conflicts": escalated,
	})
}

// getConflictsForRecord returns the audit trail of one record
func (r *Router) getConflictsForRecord(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"table":     vars["table"],
		"record":    vars["id"],
		"conflicts": r.audit.ForRecord(vars["table"], vars["id"]),
	})
}

// getConflictStats returns audit log summary counts
func (r *Router) getConflictStats(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.audit.Stats())
}

// getConflictReport streams the audit history as a printable PDF
func (r *Router) getConflictReport(w http.ResponseWriter, req *http.Request) {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	entries := r.audit.Recent(limit)

	pdf, err := report.ConflictReport(entries, r.audit.Stats(), time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=conflict-report-%s.pdf", time.Now().Format("2006-01-02")))
	w.Write(pdf)
}

// ReviewRequest carries the reviewer's verdict
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// reviewConflict marks an audit entry as reviewed by the caller
func (r *Router) reviewConflict(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	var reviewReq ReviewRequest
	if err := json.NewDecoder(req.Body).Decode(&reviewReq); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	reviewer := reviewerID(req)
	if reviewer == "" {
		respondError(w, http.StatusUnauthorized, "Reviewer identity missing")
		return
	}

	entry, ok := r.audit.Get(vars["id"])
	if !ok || !r.audit.MarkReviewed(vars["id"], reviewer, reviewReq.Notes) {
		respondError(w, http.StatusNotFound, "Conflict not found")
		return
	}

	// Reviewing releases the record from its conflict flag
	if r.records != nil {
		if err := r.records.ClearConflict(entry.TableName, entry.RecordID); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to release record")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":     "reviewed",
		"conflictId": vars["id"],
		"reviewedBy": reviewer,
	})
}

// pruneConflicts drops audit entries older than the retention window.
// Optional query param maxAgeDays overrides the default.
func (r *Router) pruneConflicts(w http.ResponseWriter, req *http.Request) {
	var maxAge time.Duration
	if days, err := strconv.Atoi(req.URL.Query().Get("maxAgeDays")); err == nil && days > 0 {
		maxAge = time.Duration(days) * 24 * time.Hour
	}

	removed := r.audit.Prune(maxAge)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
	})
}

// reviewerID pulls the authenticated user id from the JWT claims
func reviewerID(req *http.Request) string {
	claims, ok := req.Context().Value(middleware.UserContextKey).(jwt.MapClaims)
	if !ok {
		return ""
	}
	if id, ok := claims["id"].(string); ok {
		return id
	}
	return ""
}
