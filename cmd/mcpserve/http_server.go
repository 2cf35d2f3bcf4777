// file: cmd/mcpserve/http_server.go
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	"github.com/dkoosis/mcpserve/internal/metrics"
)

// newMetricsMux serves Prometheus metrics and a JSON summary.
func newMetricsMux(collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/debug/summary", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collector.GetCurrentMetrics())
	})
	return mux
}

// startMetricsServer listens on addr and returns a function that shuts the
// listener down.
func startMetricsServer(addr string, collector *metrics.Collector, logger logging.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen for metrics on %s", addr)
	}
	srv := &http.Server{
		Handler:           newMetricsMux(collector),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed.", "error", err)
		}
	}()
	logger.Info("Metrics endpoint listening.", "addr", ln.Addr().String())
	return srv.Shutdown, nil
}
