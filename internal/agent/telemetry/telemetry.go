package telemetry

import (
	"context"
	"sync"
	"time"

	"log"

	"github.com/answerforge/answerforge/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry tracks pipeline metrics and exposes them on /metrics
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds pipeline performance counters
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	AverageDuration    time.Duration

	StageExecutions map[string]int64
	StageDegraded   map[string]int64
	StageDurations  map[string]time.Duration
	MethodCounts    map[string]int64
	ToolCalls       map[string]int64
	ToolFailures    map[string]int64
}

// StageEvent records one pipeline stage execution
type StageEvent struct {
	Stage    string
	Degraded bool
	Duration time.Duration
}

// RequestEvent records one complete request
type RequestEvent struct {
	ID       string
	Success  bool
	Method   string
	Rounds   int
	Duration time.Duration
}

// ToolEvent records one tool invocation through the gateway
type ToolEvent struct {
	Tool     string
	Success  bool
	Duration time.Duration
}

var (
	promRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answerforge_requests_total",
		Help: "Completed ask requests by outcome.",
	}, []string{"outcome"})
	promMethods = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answerforge_answers_by_method_total",
		Help: "Answers produced, labeled by answering method.",
	}, []string{"method"})
	promStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "answerforge_stage_duration_seconds",
		Help:    "Pipeline stage execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	promToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answerforge_tool_calls_total",
		Help: "Tool invocations through the gateway by outcome.",
	}, []string{"tool", "outcome"})
)

// NewTelemetry creates a telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			StageExecutions: make(map[string]int64),
			StageDegraded:   make(map[string]int64),
			StageDurations:  make(map[string]time.Duration),
			MethodCounts:    make(map[string]int64),
			ToolCalls:       make(map[string]int64),
			ToolFailures:    make(map[string]int64),
		},
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startMetricsCollection()
	}
	return t
}

// RecordStageEvent records a pipeline stage execution
func (t *Telemetry) RecordStageEvent(ctx context.Context, event StageEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.StageExecutions[event.Stage]++
	if event.Degraded {
		t.metrics.StageDegraded[event.Stage]++
	}
	count := t.metrics.StageExecutions[event.Stage]
	if count == 1 {
		t.metrics.StageDurations[event.Stage] = event.Duration
	} else {
		total := t.metrics.StageDurations[event.Stage] * time.Duration(count-1)
		t.metrics.StageDurations[event.Stage] = (total + event.Duration) / time.Duration(count)
	}
	promStageDuration.WithLabelValues(event.Stage).Observe(event.Duration.Seconds())
}

// RecordRequestEvent records a completed request
func (t *Telemetry) RecordRequestEvent(ctx context.Context, event RequestEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRequests++
	outcome := "success"
	if event.Success {
		t.metrics.SuccessfulRequests++
	} else {
		t.metrics.FailedRequests++
		outcome = "failure"
	}
	if t.metrics.TotalRequests == 1 {
		t.metrics.AverageDuration = event.Duration
	} else {
		total := t.metrics.AverageDuration * time.Duration(t.metrics.TotalRequests-1)
		t.metrics.AverageDuration = (total + event.Duration) / time.Duration(t.metrics.TotalRequests)
	}
	if event.Method != "" {
		t.metrics.MethodCounts[event.Method]++
		promMethods.WithLabelValues(event.Method).Inc()
	}
	promRequests.WithLabelValues(outcome).Inc()

	t.logger.Printf("Request Event: ID=%s, Success=%t, Method=%s, Rounds=%d, Duration=%v",
		event.ID, event.Success, event.Method, event.Rounds, event.Duration)
}

// RecordToolEvent records one gateway tool invocation
func (t *Telemetry) RecordToolEvent(ctx context.Context, event ToolEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.ToolCalls[event.Tool]++
	outcome := "success"
	if !event.Success {
		t.metrics.ToolFailures[event.Tool]++
		outcome = "failure"
	}
	promToolCalls.WithLabelValues(event.Tool, outcome).Inc()
}

// GetMetrics returns a snapshot of current metrics
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	metrics := *t.metrics
	metrics.StageExecutions = make(map[string]int64)
	metrics.StageDegraded = make(map[string]int64)
	metrics.StageDurations = make(map[string]time.Duration)
	metrics.MethodCounts = make(map[string]int64)
	metrics.ToolCalls = make(map[string]int64)
	metrics.ToolFailures = make(map[string]int64)
	for k, v := range t.metrics.StageExecutions {
		metrics.StageExecutions[k] = v
	}
	for k, v := range t.metrics.StageDegraded {
		metrics.StageDegraded[k] = v
	}
	for k, v := range t.metrics.StageDurations {
		metrics.StageDurations[k] = v
	}
	for k, v := range t.metrics.MethodCounts {
		metrics.MethodCounts[k] = v
	}
	for k, v := range t.metrics.ToolCalls {
		metrics.ToolCalls[k] = v
	}
	for k, v := range t.metrics.ToolFailures {
		metrics.ToolFailures[k] = v
	}
	return metrics
}

// startMetricsCollection logs a periodic metrics snapshot
func (t *Telemetry) startMetricsCollection() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		metrics := t.GetMetrics()
		t.logger.Printf("Metrics Snapshot: Requests=%d/%d, AvgTime=%v",
			metrics.SuccessfulRequests, metrics.TotalRequests, metrics.AverageDuration)
	}
}

// Shutdown logs a final metrics report
func (t *Telemetry) Shutdown() {
	metrics := t.GetMetrics()
	if metrics.TotalRequests == 0 {
		return
	}
	t.logger.Printf("Final Report: Requests=%d, Success=%.2f%%, AvgTime=%v",
		metrics.TotalRequests,
		float64(metrics.SuccessfulRequests)/float64(metrics.TotalRequests)*100,
		metrics.AverageDuration)
}
