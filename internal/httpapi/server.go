// Package httpapi wires Chorus's core (store, lockmgr, ops, discovery)
// to an HTTP transport: a single http.ServeMux using Go 1.22+
// method-specific patterns, a thin middleware chain (request ID, CORS,
// structured logging), and a JSON error envelope at the boundary.
package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chorusdev/chorus/internal/discovery"
	"github.com/chorusdev/chorus/internal/lockmgr"
	"github.com/chorusdev/chorus/internal/metrics"
	"github.com/chorusdev/chorus/internal/ops"
	"github.com/chorusdev/chorus/internal/store"
)

// Config controls request-handling behavior that is not part of the core
// domain packages.
type Config struct {
	CORSOrigin string
}

// Server holds everything a handler needs to answer a request. Handlers
// are methods on *Server grouped by resource across the other files in
// this package.
type Server struct {
	store     store.Store
	locks     *lockmgr.Manager
	ops       *ops.Manager
	discovery *discovery.Finder
	log       zerolog.Logger
	clock     func() time.Time
	cfg       Config
}

// NewServer builds a Server over the given core components.
func NewServer(st store.Store, locks *lockmgr.Manager, opsManager *ops.Manager, finder *discovery.Finder, log zerolog.Logger, cfg Config) *Server {
	return &Server{
		store:     st,
		locks:     locks,
		ops:       opsManager,
		discovery: finder,
		log:       log,
		clock:     time.Now,
		cfg:       cfg,
	}
}

// NewRouter builds the full HTTP handler: route table wrapped by the
// middleware chain.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /projects", s.createProject)
	mux.HandleFunc("GET /projects", s.listProjects)
	mux.HandleFunc("GET /projects/{id}", s.getProject)
	mux.HandleFunc("PUT /projects/{id}", s.updateProject)
	mux.HandleFunc("DELETE /projects/{id}", s.deleteProject)
	mux.HandleFunc("GET /projects/{id}/export", s.exportProject)
	mux.HandleFunc("GET /projects/{id}/tasks", s.getProjectTasks)

	mux.HandleFunc("POST /projects/{id}/tasks", s.createTask)
	mux.HandleFunc("POST /tasks/{id}/subtasks", s.createSubtask)
	mux.HandleFunc("GET /tasks/{id}", s.getTask)
	mux.HandleFunc("PUT /tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.deleteTask)
	mux.HandleFunc("GET /tasks/{id}/tree", s.getTaskTree)
	mux.HandleFunc("GET /tasks/{id}/ancestry", s.getTaskAncestry)
	mux.HandleFunc("GET /tasks/{id}/context", s.getTaskContext)
	mux.HandleFunc("PATCH /tasks/{id}/status", s.updateTaskStatus)
	mux.HandleFunc("PATCH /tasks/{id}/reorder", s.reorderTask)

	mux.HandleFunc("POST /tasks/{id}/size", s.sizeTask)
	mux.HandleFunc("POST /tasks/{id}/breakdown", s.breakdownTask)
	mux.HandleFunc("POST /tasks/{id}/refine", s.refineTask)
	mux.HandleFunc("POST /tasks/{id}/flag-refinement", s.flagRefinement)
	mux.HandleFunc("POST /tasks/{id}/complete", s.completeTask)

	mux.HandleFunc("POST /tasks/{id}/work-log", s.createWorkLog)
	mux.HandleFunc("GET /tasks/{id}/work-log", s.getWorkLog)
	mux.HandleFunc("POST /tasks/{id}/commits", s.createCommit)
	mux.HandleFunc("GET /tasks/{id}/commits", s.getCommits)

	mux.HandleFunc("POST /tasks/{id}/lock", s.acquireLock)
	mux.HandleFunc("PATCH /tasks/{id}/lock/heartbeat", s.heartbeatLock)
	mux.HandleFunc("DELETE /tasks/{id}/lock", s.releaseLock)

	mux.HandleFunc("GET /projects/{id}/backlog", s.backlog)
	mux.HandleFunc("GET /projects/{id}/in-progress", s.inProgress)
	mux.HandleFunc("GET /projects/{id}/needs-refinement", s.needsRefinement)
	mux.HandleFunc("GET /tasks/available", s.available)

	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = loggingMiddleware(s.log)(handler)
	handler = corsMiddleware(s.cfg.CORSOrigin)(handler)
	handler = requestIDMiddleware(handler)
	return handler
}
