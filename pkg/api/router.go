package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dapagg/internal/bytesize"
	"github.com/marmos91/dapagg/internal/logger"
	"github.com/marmos91/dapagg/pkg/api/handlers"
	apiMiddleware "github.com/marmos91/dapagg/pkg/api/middleware"
	"github.com/marmos91/dapagg/pkg/auth"
	"github.com/marmos91/dapagg/pkg/clock"
	"github.com/marmos91/dapagg/pkg/datastore"
	"github.com/marmos91/dapagg/pkg/engine"
	"github.com/marmos91/dapagg/pkg/taskregistry"
)

// NewRouter creates and configures the chi router serving both the
// client-facing DAP surface (§6.1) and the administrative surface
// (§6.2).
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET  /health, /health/ready            - unauthenticated
//   - GET  /hpke_config                      - unauthenticated
//   - POST /upload                           - unauthenticated (Leader role only)
//   - POST /aggregate                        - HMAC envelope authenticated (Helper role only)
//   - GET  /task_ids, /tasks/schema          - Authorization: Basic admin secret
//   - POST /tasks, GET/DELETE /tasks/{id}, GET /tasks/{id}/metrics - same
func NewRouter(store datastore.Store, registry *taskregistry.Registry, eng *engine.Engine, clk clock.Clock, adminSecrets []string, maxUploadSize bytesize.ByteSize) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health routes - unauthenticated
	healthHandler := handlers.NewHealthHandler(store, registry)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	// Client-facing DAP routes (§6.1) - unauthenticated at the HTTP
	// layer; /aggregate authenticates its own envelope below the router.
	hpkeHandler := handlers.NewHpkeConfigHandler(registry)
	uploadHandler := handlers.NewUploadHandler(eng)
	aggregateHandler := handlers.NewAggregateHandler(eng, registry)

	r.Get("/hpke_config", hpkeHandler.Get)
	r.Group(func(r chi.Router) {
		r.Use(maxBodySize(maxUploadSize))
		r.Post("/upload", uploadHandler.Post)
		r.Post("/aggregate", aggregateHandler.Post)
	})

	// Administrative routes (§6.2) - Authorization: Basic <secret>
	tasksHandler := handlers.NewTasksHandler(store, registry, clk)
	adminAuth := auth.NewAdminAuthenticator(adminSecrets)

	r.Group(func(r chi.Router) {
		r.Use(apiMiddleware.RequireAdmin(adminAuth))

		r.Get("/task_ids", tasksHandler.ListIDs)
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/schema", tasksHandler.Schema)
			r.Post("/", tasksHandler.Create)
			r.Get("/{taskID}", tasksHandler.Get)
			r.Delete("/{taskID}", tasksHandler.Delete)
			r.Get("/{taskID}/metrics", tasksHandler.Metrics)
		})
	})

	return r
}

// maxBodySize caps a request body at n bytes: once the handler attempts to
// read past the limit the body read fails, which the upload and aggregate
// handlers answer with a 400 unrecognizedMessage problem. A zero limit
// disables the cap.
func maxBodySize(n bytesize.ByteSize) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n.Int64())
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
