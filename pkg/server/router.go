package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luxsim/helio/pkg/auth"
	"github.com/luxsim/helio/pkg/errdefs"
	"github.com/luxsim/helio/pkg/observability"
	"github.com/luxsim/helio/pkg/pipeline"
	"github.com/luxsim/helio/pkg/services"
)

// routes maps every public path under /v1 to its pipeline endpoint.
// /run and /obstruction_parallel are aliases kept for older clients.
var routes = []struct {
	path     string
	endpoint pipeline.Endpoint
}{
	{"/simulate", pipeline.EndpointSimulate},
	{"/run", pipeline.EndpointSimulate},
	{"/encode", pipeline.EndpointEncode},
	{"/encode_raw", pipeline.EndpointEncodeRaw},
	{"/obstruction", pipeline.EndpointObstruction},
	{"/obstruction_all", pipeline.EndpointObstructionAll},
	{"/obstruction_parallel", pipeline.EndpointObstructionAll},
	{"/horizon", pipeline.EndpointHorizon},
	{"/zenith", pipeline.EndpointZenith},
	{"/calculate-direction", pipeline.EndpointDirection},
	{"/get-reference-point", pipeline.EndpointReferencePoint},
	{"/merge", pipeline.EndpointMerge},
	{"/stats", pipeline.EndpointStats},
}

// buildRouter assembles the gateway's HTTP surface. Health and metrics stay
// open; everything under /v1 goes through authentication.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/", s.handleHealth)
	r.Get(s.metricsPath(), s.obs.MetricsHandler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(s.authn, s.cfg.IsLocal()))
		for _, route := range routes {
			r.Post(route.path, s.handleRoom(route.endpoint))
		}
	})

	return r
}

// metricsPath returns the configured Prometheus scrape path.
func (s *Server) metricsPath() string {
	if s.cfg.Observability != nil && s.cfg.Observability.Metrics.Endpoint != "" {
		return s.cfg.Observability.Metrics.Endpoint
	}
	return observability.DefaultMetricsPath
}

// handleHealth probes every downstream service and reports per-service
// readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.registry.Health(r.Context())
	status := "ok"
	if !services.AllReady(statuses) {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": statuses,
	})
}

// handleRoom parses the body for the endpoint, runs its pipeline and shapes
// the final accumulator into the response.
func (s *Server) handleRoom(endpoint pipeline.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			errdefs.WriteHTTP(w, errdefs.Wrap(errdefs.KindValidation, err, "reading request body"), s.cfg.IsLocal())
			return
		}

		acc, err := parseRequest(endpoint, body)
		if err != nil {
			errdefs.WriteHTTP(w, err, s.cfg.IsLocal())
			return
		}

		if err := s.pipe.Run(r.Context(), endpoint, acc); err != nil {
			gwErr := errdefs.AsError(err)
			slog.Error("Request failed",
				"request_id", requestID(r.Context()),
				"endpoint", string(endpoint),
				"kind", gwErr.Kind.String(),
				"error", err,
			)
			errdefs.WriteHTTP(w, err, s.cfg.IsLocal())
			return
		}

		writeResponse(w, endpoint, acc)
	}
}
