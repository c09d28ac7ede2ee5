// Package v0 provides the REST API handlers for the sync control service.
package v0

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftline/shiftline-sync-server/internal/config"
	"github.com/shiftline/shiftline-sync-server/internal/notify"
	"github.com/shiftline/shiftline-sync-server/internal/notify/queue"
	"github.com/shiftline/shiftline-sync-server/internal/status"
	pkgsync "github.com/shiftline/shiftline-sync-server/internal/sync"
	"github.com/shiftline/shiftline-sync-server/internal/versions"
	"github.com/shiftline/shiftline-sync-server/pkg/logger"
)

// timeFormat is the wire format for timestamps in API responses.
const timeFormat = time.RFC3339

// StatusResponse represents the sync service status
type StatusResponse struct {
	Running     bool     `json:"running"`
	Paused      bool     `json:"paused"`
	Status      string   `json:"status"`
	LastSync    *string  `json:"lastSync"`
	NextSyncAt  *string  `json:"nextSyncAt,omitempty"`
	FilesSynced int      `json:"filesSynced"`
	ErrorCount  int      `json:"errorCount"`
	Errors      []string `json:"errors"`
	Destination string   `json:"destination"`
	Source      string   `json:"source"`
}

// QueueResponse represents the pending notification queue
type QueueResponse struct {
	Pending      int                `json:"pending"`
	CountsByKind map[string]int     `json:"countsByKind"`
	Items        []notify.QueueItem `json:"items"`
}

// ConfigRequest is the body of POST /api/v0/config
type ConfigRequest struct {
	Destination *DestinationRequest `json:"destination"`
}

// DestinationRequest mirrors the destination section of the config file
type DestinationRequest struct {
	Path string     `json:"path,omitempty"`
	S3   *S3Request `json:"s3,omitempty"`
}

// S3Request carries S3 destination settings
type S3Request struct {
	Endpoint      string `json:"endpoint"`
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix,omitempty"`
	AccessKey     string `json:"accessKey"`
	SecretKeyFile string `json:"secretKeyFile,omitempty"`
	Insecure      bool   `json:"insecure,omitempty"`
}

// MessageResponse represents a simple acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	controller pkgsync.Controller
	queue      queue.Queue
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(controller pkgsync.Controller, q queue.Queue) *Routes {
	return &Routes{
		controller: controller,
		queue:      q,
	}
}

// Router creates a new router for the sync control API
func Router(controller pkgsync.Controller, q queue.Queue) http.Handler {
	routes := NewRoutes(controller, q)

	r := chi.NewRouter()

	r.Post("/control/start", routes.startService)
	r.Post("/control/stop", routes.stopService)
	r.Post("/control/pause", routes.pauseService)
	r.Post("/control/resume", routes.resumeService)
	r.Post("/sync/force", routes.forceSync)
	r.Post("/config", routes.updateConfig)
	r.Get("/status", routes.getStatus)
	r.Get("/queue", routes.getQueue)

	return r
}

// startService handles POST /api/v0/control/start
func (rr *Routes) startService(w http.ResponseWriter, r *http.Request) {
	if err := rr.controller.Start(r.Context()); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "sync service started"})
}

// stopService handles POST /api/v0/control/stop
func (rr *Routes) stopService(w http.ResponseWriter, _ *http.Request) {
	if err := rr.controller.Stop(); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "sync service stopped"})
}

// pauseService handles POST /api/v0/control/pause
func (rr *Routes) pauseService(w http.ResponseWriter, _ *http.Request) {
	if err := rr.controller.Pause(); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "sync service paused"})
}

// resumeService handles POST /api/v0/control/resume
func (rr *Routes) resumeService(w http.ResponseWriter, _ *http.Request) {
	if err := rr.controller.Resume(); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "sync service resumed"})
}

// forceSync handles POST /api/v0/sync/force
func (rr *Routes) forceSync(w http.ResponseWriter, r *http.Request) {
	if err := rr.controller.ForceSyncNow(r.Context()); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "sync completed"})
}

// updateConfig handles POST /api/v0/config
func (rr *Routes) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rr.writeErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Destination == nil {
		rr.writeErrorResponse(w, "destination is required", http.StatusBadRequest)
		return
	}

	if err := rr.controller.SetDestination(r.Context(), req.Destination.toConfig()); err != nil {
		rr.writeServiceError(w, err)
		return
	}
	rr.writeJSONResponse(w, MessageResponse{Message: "destination updated"})
}

// getStatus handles GET /api/v0/status
func (rr *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, statusResponseFrom(rr.controller.Status()))
}

// getQueue handles GET /api/v0/queue
func (rr *Routes) getQueue(w http.ResponseWriter, r *http.Request) {
	items, err := rr.queue.List(r.Context())
	if err != nil {
		logger.Errorf("Failed to list queue: %v", err)
		rr.writeErrorResponse(w, "failed to list queue", http.StatusInternalServerError)
		return
	}

	pending := make([]notify.QueueItem, 0, len(items))
	counts := make(map[string]int)
	for _, item := range items {
		if item.Acknowledged {
			continue
		}
		pending = append(pending, item)
		counts[string(item.Kind)]++
	}

	rr.writeJSONResponse(w, QueueResponse{
		Pending:      len(pending),
		CountsByKind: counts,
		Items:        pending,
	})
}

func (d *DestinationRequest) toConfig() *config.DestinationConfig {
	dest := &config.DestinationConfig{Path: d.Path}
	if d.S3 != nil {
		dest.S3 = &config.S3Config{
			Endpoint:      d.S3.Endpoint,
			Bucket:        d.S3.Bucket,
			Prefix:        d.S3.Prefix,
			AccessKey:     d.S3.AccessKey,
			SecretKeyFile: d.S3.SecretKeyFile,
			Insecure:      d.S3.Insecure,
		}
	}
	return dest
}

func statusResponseFrom(state status.SyncState) StatusResponse {
	resp := StatusResponse{
		Running:     state.Phase == status.PhaseRunning,
		Paused:      state.Phase == status.PhasePaused,
		Status:      string(state.Phase),
		FilesSynced: state.FilesSynced,
		ErrorCount:  state.ErrorCount,
		Errors:      state.RecentErrors,
		Destination: state.Destination,
		Source:      state.Source,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}
	if state.LastSyncAt != nil {
		ts := state.LastSyncAt.UTC().Format(timeFormat)
		resp.LastSync = &ts
	}
	if state.NextSyncAt != nil {
		ts := state.NextSyncAt.UTC().Format(timeFormat)
		resp.NextSyncAt = &ts
	}
	return resp
}

// writeServiceError maps classified service errors to response codes.
func (rr *Routes) writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch pkgsync.ClassOf(err) {
	case pkgsync.ClassInvalidTransition, pkgsync.ClassNotConfigured:
		code = http.StatusConflict
	case pkgsync.ClassConfiguration:
		code = http.StatusBadRequest
	}
	rr.writeErrorResponse(w, err.Error(), code)
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()

	response := map[string]string{
		"version":    info.Version,
		"commit":     info.Commit,
		"build_date": info.BuildDate,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}
