// Package metrics collects request and tool-call statistics for the server.
// Counters are exported in Prometheus format; a summary snapshot is kept in
// memory for logging and the CLI.
// file: internal/metrics/collector.go
package metrics

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcpserve"

// Outcome labels.
const (
	OutcomeOK            = "ok"
	OutcomeProtocolError = "protocol_error"
	OutcomeToolError     = "tool_error"
	OutcomeFault         = "fault"
	OutcomeRateLimited   = "rate_limited"
)

// UnknownLabel replaces method and tool names the server does not serve, so
// callers cannot create new series.
const UnknownLabel = "unknown"

// ServerMetrics is a point-in-time summary of the collector.
type ServerMetrics struct {
	StartTime      time.Time     `json:"startTime"`
	Uptime         time.Duration `json:"uptime"`
	GoVersion      string        `json:"goVersion"`
	TotalRequests  int           `json:"totalRequests"`
	FailedRequests int           `json:"failedRequests"`
	ToolCalls      int           `json:"toolCalls"`
	FailedTools    int           `json:"failedTools"`
	DecodeErrors   int           `json:"decodeErrors"`
	LastErrors     []ErrorInfo   `json:"lastErrors,omitempty"`
}

// ErrorInfo contains details about an error that occurred.
type ErrorInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Collector records server statistics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	toolCalls     *prometheus.CounterVec
	decodeErrors  prometheus.Counter
	resourceReads *prometheus.CounterVec

	mu          sync.Mutex
	summary     ServerMetrics
	errorBuffer []ErrorInfo
	bufferSize  int
}

// NewMetricsCollector creates a collector with its own Prometheus registry.
// errorBufferSize bounds the number of recent errors kept.
func NewMetricsCollector(errorBufferSize int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC messages handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent dispatching a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations, by tool and outcome.",
		}, []string{"tool", "outcome"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Incoming messages that could not be decoded.",
		}),
		resourceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_reads_total",
			Help:      "Resource reads, by URI template and outcome.",
		}, []string{"template", "outcome"}),
		summary: ServerMetrics{
			StartTime: time.Now(),
			GoVersion: runtime.Version(),
		},
		errorBuffer: make([]ErrorInfo, 0, errorBufferSize),
		bufferSize:  errorBufferSize,
	}
	c.registry.MustRegister(
		c.requests,
		c.requestTime,
		c.toolCalls,
		c.decodeErrors,
		c.resourceReads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordRequest records one dispatched message.
func (c *Collector) RecordRequest(method, outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(method, outcome).Inc()
	c.requestTime.WithLabelValues(method).Observe(latency.Seconds())

	c.mu.Lock()
	c.summary.TotalRequests++
	if outcome == OutcomeProtocolError {
		c.summary.FailedRequests++
	}
	c.mu.Unlock()
}

// RecordToolCall records the outcome of one tools/call.
func (c *Collector) RecordToolCall(tool, outcome string) {
	if c == nil {
		return
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()

	c.mu.Lock()
	c.summary.ToolCalls++
	if outcome != OutcomeOK {
		c.summary.FailedTools++
	}
	c.mu.Unlock()
}

// RecordResourceRead records the outcome of one resources/read.
func (c *Collector) RecordResourceRead(template, outcome string) {
	if c == nil {
		return
	}
	c.resourceReads.WithLabelValues(template, outcome).Inc()
}

// RecordDecodeError counts a message that could not be decoded.
func (c *Collector) RecordDecodeError() {
	if c == nil {
		return
	}
	c.decodeErrors.Inc()

	c.mu.Lock()
	c.summary.DecodeErrors++
	c.mu.Unlock()
}

// RecordError adds an error to the bounded buffer of recent errors.
func (c *Collector) RecordError(component, message string) {
	if c == nil || c.bufferSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errorBuffer) >= c.bufferSize {
		c.errorBuffer = c.errorBuffer[1:]
	}
	c.errorBuffer = append(c.errorBuffer, ErrorInfo{
		Timestamp: time.Now(),
		Component: component,
		Message:   message,
	})
}

// GetCurrentMetrics returns a copy of the current summary.
func (c *Collector) GetCurrentMetrics() ServerMetrics {
	if c == nil {
		return ServerMetrics{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.summary
	snapshot.Uptime = time.Since(c.summary.StartTime)
	if len(c.errorBuffer) > 0 {
		snapshot.LastErrors = make([]ErrorInfo, len(c.errorBuffer))
		copy(snapshot.LastErrors, c.errorBuffer)
	}
	return snapshot
}
