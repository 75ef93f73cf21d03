package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pipetrax/fieldsyncgo/internal/buildinfo"
	"github.com/pipetrax/fieldsyncgo/internal/chainage"
	"github.com/pipetrax/fieldsyncgo/internal/config"
	"github.com/pipetrax/fieldsyncgo/internal/middleware"
	"github.com/pipetrax/fieldsyncgo/internal/remote"
	"github.com/pipetrax/fieldsyncgo/internal/store"
	syncpkg "github.com/pipetrax/fieldsyncgo/internal/sync"
	"github.com/pipetrax/fieldsyncgo/internal/websocket"
)

// Router wraps the mux router and the subsystem's collaborators
type Router struct {
	*mux.Router
	cfg         *config.Config
	reports     *store.ReportStore
	attachments *store.AttachmentStore
	sessions    *store.SessionStore
	engine      *syncpkg.Engine
	chainage    *chainage.Manager
	monitor     *syncpkg.Monitor
	remote      *remote.Client
	hub         *websocket.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(
	cfg *config.Config,
	reports *store.ReportStore,
	attachments *store.AttachmentStore,
	sessions *store.SessionStore,
	engine *syncpkg.Engine,
	chainageMgr *chainage.Manager,
	monitor *syncpkg.Monitor,
	remoteClient *remote.Client,
	hub *websocket.Hub,
) *Router {
	r := &Router{
		Router:      mux.NewRouter(),
		cfg:         cfg,
		reports:     reports,
		attachments: attachments,
		sessions:    sessions,
		engine:      engine,
		chainage:    chainageMgr,
		monitor:     monitor,
		remote:      remoteClient,
		hub:         hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes (open)
	auth := r.PathPrefix("/api/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	// Event feed for the UI
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(hub, w, req)
	})

	// Protected API routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	protected.HandleFunc("/reports", r.createReport).Methods("POST")
	protected.HandleFunc("/reports", r.listReports).Methods("GET")
	protected.HandleFunc("/reports/{id}", r.getReport).Methods("GET")
	protected.HandleFunc("/reports/{id}/resolve", r.resolveConflict).Methods("POST")
	protected.HandleFunc("/reports/{id}/requeue", r.requeueReport).Methods("POST")

	protected.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	protected.HandleFunc("/sync/counts", r.syncCounts).Methods("GET")
	protected.HandleFunc("/sync/run", r.runSync).Methods("POST")

	protected.HandleFunc("/auth/logout", r.logout).Methods("POST")

	protected.HandleFunc("/chainage", r.chainageStatus).Methods("GET")
	protected.HandleFunc("/chainage/check", r.checkChainage).Methods("POST")
	protected.HandleFunc("/chainage/refresh", r.refreshChainage).Methods("POST")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"online":     r.monitor.IsOnline(),
		"startTime":  buildinfo.StartTime,
		"commitHash": buildinfo.CommitHash,
		"commitTime": buildinfo.CommitTime,
		"buildTime":  buildinfo.BuildTime,
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
