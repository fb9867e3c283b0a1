// Package monitor implements the HTTP introspection surface over the
// worker's registries.
package monitor

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/koji-project/adjutant/node"
	"github.com/koji-project/adjutant/registry"
)

// Server is the multithreaded HTTP monitoring server. Each request is
// served on its own goroutine by net/http's default
// connection-per-goroutine model.
type Server struct {
	httpServer *http.Server
	startedAt  time.Time

	workerID   string
	containers *registry.ContainerRegistry
	tasks      *registry.TaskRegistry
	capacity   node.Capacity
	logRoot    func(taskID int64) string
}

// Config bundles the dependencies New needs.
type Config struct {
	WorkerID   string
	Bind       string
	Containers *registry.ContainerRegistry
	Tasks      *registry.TaskRegistry
	Capacity   node.Capacity
	// LogPath resolves a task id to its on-disk container.log path.
	LogPath func(taskID int64) string
}

// New builds a Server bound to cfg.Bind but does not start it.
func New(cfg Config) *Server {
	s := &Server{
		startedAt:  time.Now(),
		workerID:   cfg.WorkerID,
		containers: cfg.Containers,
		tasks:      cfg.Tasks,
		capacity:   cfg.Capacity,
		logRoot:    cfg.LogPath,
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)

	router.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/containers", s.handleContainers).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/containers/{id}", s.handleContainer).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks", s.handleTasks).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks/{id}", s.handleTask).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tasks/{id}/logs", s.handleTaskLogs).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    cfg.Bind,
		Handler: otelhttp.NewHandler(router, "monitor"),
	}
	return s
}

// ListenAndServe blocks serving requests until the server errors out
// or is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}
