// Package metrics exposes the checker's Prometheus metrics over HTTP.
// All metrics are defined in their respective packages (client, batch, admission)
// via promauto and land in the default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the checker.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered on Registry.
var Gatherer = prometheus.DefaultGatherer

// Path is where metrics are served.
const Path = "/metrics"

// Handler returns the /metrics handler for the default registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Server serves /metrics for the duration of a run.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger zerolog.Logger
}

// Start listens on addr and serves metrics in the background.
func Start(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, Handler())

	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger.With().Str("component", "metrics").Logger(),
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - gia_requests_total{stage, status} (Counter): Requests by stage (lookup, data) and HTTP status
//   - gia_request_duration_seconds{stage} (Histogram): Request duration by stage
//   - gia_errors_total{reason} (Counter): Failed checks by reason (blocked, fetch_failed,
//     parse_failed, extraction_failed, network)
//
// Batch Metrics (pkg/batch):
//   - gia_batch_inflight (Gauge): Checks currently past admission
//   - gia_batch_outcomes_total{result} (Counter): Outcomes by result (success, failure)
//
// Admission Metrics (pkg/admission):
//   - gia_admission_inflight{key} (Gauge): Checks admitted across processes, as last observed
//   - gia_admission_waits_total{key} (Counter): Acquisitions that waited for a slot
//   - gia_admission_wait_seconds{key} (Histogram): Time spent waiting for admission
//
// Example Prometheus Queries:
//
//   # Block Rate
//   rate(gia_errors_total{reason="blocked"}[5m]) / rate(gia_batch_outcomes_total[5m])
//
//   # P95 Lookup Latency
//   histogram_quantile(0.95, rate(gia_request_duration_seconds_bucket{stage="lookup"}[5m]))
//
//   # Saturated Shared Limit
//   rate(gia_admission_waits_total[5m]) > 0
