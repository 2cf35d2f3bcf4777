// file: cmd/mcpserve/runner.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/config"
	"github.com/dkoosis/mcpserve/internal/logging"
	"github.com/dkoosis/mcpserve/internal/mcp"
	"github.com/dkoosis/mcpserve/internal/metrics"
)

const (
	metricsErrorBuffer = 20
	shutdownTimeout    = 5 * time.Second
)

// buildServer creates the server and registers the filesystem tools and
// resource. collector may be nil.
func buildServer(cfg *config.Config, collector *metrics.Collector, logger logging.Logger) (*mcp.Server, error) {
	root, err := cfg.FilesRoot()
	if err != nil {
		return nil, err
	}
	files, err := newFileSystem(root, logger)
	if err != nil {
		return nil, err
	}

	opts := mcp.OptionsFromConfig(cfg)
	if opts.Instructions == "" {
		opts.Instructions = "Exposes the local filesystem under: " + files.root
	}
	opts.Metrics = collector
	opts.Logger = logger

	server := mcp.NewServer(opts)
	if err := files.register(server); err != nil {
		return nil, errors.Wrap(err, "failed to register filesystem tools")
	}
	return server, nil
}

// runServe serves stdio until end of input or ctx is cancelled, with the
// metrics endpoint running alongside when enabled.
func runServe(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	startTime := time.Now()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewMetricsCollector(metricsErrorBuffer)
		stopMetrics, err := startMetricsServer(cfg.Metrics.Addr, collector, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := stopMetrics(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown failed.", "error", err)
			}
		}()
	}

	server, err := buildServer(cfg, collector, logger)
	if err != nil {
		return err
	}
	logger.Info("Starting mcpserve.",
		"version", Version,
		"server_name", cfg.Server.Name,
		"tools", len(server.Tools()),
		"resources", len(server.Resources()))

	if err := server.ServeStdio(ctx); err != nil {
		logger.Error("Server stopped with error.", "error", fmt.Sprintf("%+v", err))
		return err
	}
	logger.Info("Server stopped.", "uptime", time.Since(startTime).Round(time.Millisecond))
	return nil
}
