package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nicktill/moldwatch/pkg/httpx"
	"github.com/nicktill/moldwatch/pkg/monitoring"
	"github.com/nicktill/moldwatch/pkg/server/monitor"
	"github.com/nicktill/moldwatch/pkg/storage"
)

const healthPingTimeout = 2 * time.Second

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string               `json:"status"`
	Version   string               `json:"version"`
	Uptime    string               `json:"uptime"`
	Store     string               `json:"store"`
	DiskBytes int64                `json:"disk_bytes,omitempty"`
	Tasks     []monitor.TaskStatus `json:"tasks,omitempty"`
}

// Deps are the collaborators the HTTP routes need.
type Deps struct {
	Service  *monitoring.Service
	Store    storage.Store
	Gatherer prometheus.Gatherer

	// Tasks and Disk are optional; they are only set for the badger backend.
	Tasks []*monitor.TaskMonitor
	Disk  *monitor.DiskMonitor

	// Port is used to build the allowed CORS origins.
	Port string
}

// handleHealth pings the store and reports background task health.
func handleHealth(store storage.Store, tasks []*monitor.TaskMonitor, disk *monitor.DiskMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Store:   "ok",
		}
		statusCode := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Store = err.Error()
			statusCode = http.StatusServiceUnavailable
		}

		for _, tm := range tasks {
			status := tm.Status()
			response.Tasks = append(response.Tasks, status)
			if !status.Healthy && statusCode == http.StatusOK {
				response.Status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		if disk != nil {
			if used, err := disk.Usage(); err == nil {
				response.DiskBytes = used
			}
		}

		httpx.RespondJSON(w, statusCode, response)
	}
}

// NewRouter configures all HTTP routes for the server.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(), corsMiddleware(d.Port))

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/monitoring", handleMonitoring(d.Service, time.Now)).Methods("GET", "OPTIONS")
	api.HandleFunc("/health", handleHealth(d.Store, d.Tasks, d.Disk)).Methods("GET")

	router.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})).Methods("GET")

	for _, r := range []*mux.Router{router, api} {
		r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httpx.RespondErrorString(w, http.StatusNotFound, "not found")
		})
		r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "method not allowed")
		})
	}

	return router
}

// corsMiddleware allows the dashboard dev servers on localhost to call the API.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
