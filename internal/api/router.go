// Package api exposes the coordinator's HTTP route table over gorilla/mux.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sagaflow/lra-coordinator/infrastructure/logging"
	"github.com/sagaflow/lra-coordinator/infrastructure/metrics"
	"github.com/sagaflow/lra-coordinator/infrastructure/middleware"
	"github.com/sagaflow/lra-coordinator/internal/lra"
)

// Options configures the router.
type Options struct {
	PathPrefix      string // default "/lra-coordinator"
	CoordinatorBase string // full external base URL, e.g. http://host:8080/lra-coordinator
	APIVersion      string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	BodyLimitBytes  int64
}

// NewRouter builds the full HTTP handler: middleware chain plus every route
// named by the external interface.
func NewRouter(engine *lra.Engine, recovery *lra.Recovery, logger *logging.Logger, m *metrics.Metrics, opts Options) http.Handler {
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/lra-coordinator"
	}

	// {lraId} on the routes below is only the uid segment — the LRA id's
	// own coordinator-base portion is already consumed by PathPrefix, since
	// CoordinatorBase and PathPrefix name the same mount point. Handlers
	// rebuild the full "<base>/<uid>" id from coordinatorBase before calling
	// into the engine, which only ever deals in full ids.
	h := &handlers{engine: engine, recovery: recovery, logger: logger, apiVersion: opts.APIVersion, coordinatorBase: opts.CoordinatorBase}

	root := mux.NewRouter()
	root.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	root.Use(middleware.LoggingMiddleware(logger))
	root.Use(middleware.MetricsMiddleware("lra_coordinator", m))
	root.Use(apiVersionMiddleware)
	if len(opts.CORSOrigins) > 0 {
		root.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: opts.CORSOrigins}).Handler)
	}
	if opts.BodyLimitBytes > 0 {
		root.Use(middleware.NewBodyLimitMiddleware(opts.BodyLimitBytes).Handler)
	}
	if opts.RateLimit > 0 {
		rl := middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst, logger)
		root.Use(rl.Handler)
	}

	sub := root.PathPrefix(opts.PathPrefix).Subrouter()

	sub.HandleFunc("/", h.listLRAs).Methods(http.MethodGet)
	sub.HandleFunc("/start", h.startLRA).Methods(http.MethodPost)
	sub.HandleFunc("/recovery", h.recoveryStatus).Methods(http.MethodGet)
	sub.HandleFunc("/recovery/{lraUID}/{participantUID}", h.recoveryReplay).Methods(http.MethodGet)

	sub.HandleFunc("/{lraId}", h.getInfo).Methods(http.MethodGet)
	sub.HandleFunc("/{lraId}/status", h.getStatus).Methods(http.MethodGet)
	sub.HandleFunc("/{lraId}/renew", h.renew).Methods(http.MethodPut)
	sub.HandleFunc("/{lraId}", h.join).Methods(http.MethodPut)
	sub.HandleFunc("/{lraId}/remove", h.leave).Methods(http.MethodPut)
	sub.HandleFunc("/{lraId}/close", h.close).Methods(http.MethodPut)
	sub.HandleFunc("/{lraId}/cancel", h.cancel).Methods(http.MethodPut)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		middleware.NewRecoveryMiddleware(logger)
		w.WriteHeader(http.StatusNotFound)
	})

	return root
}

// apiVersionMiddleware echoes the Narayana-LRA-API-version header back on
// every response when the caller supplied one.
func apiVersionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get("Narayana-LRA-API-version"); v != "" {
			w.Header().Set("Narayana-LRA-API-version", v)
		}
		next.ServeHTTP(w, r)
	})
}
