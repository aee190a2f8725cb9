package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opslink-dev/fieldsync/internal/config"
	"github.com/opslink-dev/fieldsync/internal/database"
	"github.com/opslink-dev/fieldsync/internal/diagnostics"
	"github.com/opslink-dev/fieldsync/internal/middleware"
	"github.com/opslink-dev/fieldsync/internal/store"
	"github.com/opslink-dev/fieldsync/internal/sync"
	"github.com/opslink-dev/fieldsync/internal/websocket"
)

// Router wraps the mux router with the sync components it exposes
type Router struct {
	*mux.Router
	db          *database.DB
	cfg         *config.Config
	records     *store.Records
	coordinator *sync.Coordinator
	audit       *sync.AuditLog
	errlog      *sync.ErrorLog
	retries     *sync.RetryQueue
	uploads     *sync.UploadTracker
	collector   *diagnostics.Collector
	hub         *websocket.Hub
}

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	DB          *database.DB
	Config      *config.Config
	Records     *store.Records
	Coordinator *sync.Coordinator
	Audit       *sync.AuditLog
	ErrorLog    *sync.ErrorLog
	Retries     *sync.RetryQueue
	Uploads     *sync.UploadTracker
	Collector   *diagnostics.Collector
	Hub         *websocket.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(deps RouterDeps) *Router {
	r := &Router{
		Router:      mux.NewRouter(),
		db:          deps.DB,
		cfg:         deps.Config,
		records:     deps.Records,
		coordinator: deps.Coordinator,
		audit:       deps.Audit,
		errlog:      deps.ErrorLog,
		retries:     deps.Retries,
		uploads:     deps.Uploads,
		collector:   deps.Collector,
		hub:         deps.Hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	// Sync control
	syncAPI := r.PathPrefix("/api/sync").Subrouter()
	syncAPI.HandleFunc("/status", r.getSyncStatus).Methods("GET")
	syncAPI.HandleFunc("/full", r.triggerFullSync).Methods("POST")
	syncAPI.HandleFunc("/record/{table}/{id}", r.triggerRecordSync).Methods("POST")
	syncAPI.HandleFunc("/cancel", r.cancelSync).Methods("POST")
	syncAPI.HandleFunc("/queue", r.getQueueStats).Methods("GET")
	syncAPI.HandleFunc("/errors", r.getRecentErrors).Methods("GET")

	// Conflict audit log
	conflicts := r.PathPrefix("/api/conflicts").Subrouter()
	conflicts.HandleFunc("", r.getRecentConflicts).Methods("GET")
	conflicts.HandleFunc("/escalated", r.getEscalatedConflicts).Methods("GET")
	conflicts.HandleFunc("/stats", r.getConflictStats).Methods("GET")
	conflicts.HandleFunc("/report.pdf", r.getConflictReport).Methods("GET")
	conflicts.HandleFunc("/record/{table}/{id}", r.getConflictsForRecord).Methods("GET")

	// Review and prune require an authenticated reviewer
	guarded := r.PathPrefix("/api/conflicts").Subrouter()
	guarded.Use(middleware.AuthMiddleware(deps.Config))
	guarded.HandleFunc("/{id}/review", r.reviewConflict).Methods("POST")
	guarded.HandleFunc("/prune", r.pruneConflicts).Methods("POST")

	// Diagnostics
	r.HandleFunc("/api/diagnostics", r.getDiagnostics).Methods("GET")

	// Photo intake
	r.HandleFunc("/api/photos", r.registerPhoto).Methods("POST")

	// Asset tags
	assets := r.PathPrefix("/api/assets").Subrouter()
	assets.HandleFunc("/{id}/tag.png", r.getAssetTagPNG).Methods("GET")
	assets.HandleFunc("/tags.pdf", r.getAssetTagSheet).Methods("POST")

	// Event stream
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(deps.Hub, w, req)
	})

	return r
}

// Handler returns the root http.Handler for the server
func (r *Router) Handler() http.Handler {
	return r.Router
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"server": "local",
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
