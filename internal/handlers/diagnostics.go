package handlers

import "net/http"

// getDiagnostics returns the full support snapshot
func (r *Router) getDiagnostics(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, r.collector.Collect())
}
