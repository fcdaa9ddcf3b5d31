// Package metrics exposes Prometheus instrumentation for the registry,
// scanner, policy engine, and audit pipeline. All collectors register with
// the default registry at init, so wiring /metrics is just Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcpwarden"

var (
	// serverRegistrations counts register operations by source type.
	serverRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "server_registrations_total",
		Help:      "Total server registrations by source type",
	}, []string{"source"})

	// approvedServers tracks how many servers are currently approved.
	approvedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "approved_servers",
		Help:      "Number of servers currently in the approved state",
	})

	// pendingScans tracks scans waiting for or undergoing execution.
	pendingScans = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "pending_scans",
		Help:      "Number of scans currently pending or running",
	})

	// approvalDecisions counts recorded administrative decisions by action.
	approvalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "registry",
		Name:      "approval_decisions_total",
		Help:      "Total recorded approval decisions by action",
	}, []string{"action"})

	// scanRuns counts finished scan executions by terminal status.
	scanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Total scan runs by terminal status",
	}, []string{"status"})

	// scanDuration measures wall-clock scan runtime in seconds.
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Scan execution time in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// riskScores tracks the distribution of computed risk scores.
	riskScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scan",
		Name:      "risk_score",
		Help:      "Distribution of scan risk scores (0-100)",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// toolCalls counts gated tool invocations by decision and target.
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enforce",
		Name:      "tool_calls_total",
		Help:      "Total gated tool calls by policy decision",
	}, []string{"decision", "server", "tool", "team"})

	// toolCallLatency measures end-to-end gated call latency per target.
	toolCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enforce",
		Name:      "tool_call_latency_seconds",
		Help:      "End-to-end gated tool call latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"server", "tool"})

	// policyEvals measures in-memory policy evaluation time.
	policyEvals = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enforce",
		Name:      "policy_eval_seconds",
		Help:      "Policy evaluation time in seconds",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// auditDropped counts audit events discarded because the queue was full.
	auditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "events_dropped_total",
		Help:      "Total audit events dropped due to a full queue",
	})

	// auditQueueDepth tracks the current audit queue backlog.
	auditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "queue_depth",
		Help:      "Current number of audit events waiting to be persisted",
	})
)

// RecordRegistration records one server registration for the given source type.
func RecordRegistration(source string) {
	serverRegistrations.WithLabelValues(source).Inc()
}

// SetApprovedServers sets the approved-server gauge to the given count.
func SetApprovedServers(n int64) {
	approvedServers.Set(float64(n))
}

// SetPendingScans sets the pending-scan gauge to the given count.
func SetPendingScans(n int64) {
	pendingScans.Set(float64(n))
}

// RecordApprovalDecision records one administrative decision by action name.
func RecordApprovalDecision(action string) {
	approvalDecisions.WithLabelValues(action).Inc()
}

// RecordScanRun records a finished scan with its terminal status and runtime.
func RecordScanRun(status string, durationSec float64) {
	scanRuns.WithLabelValues(status).Inc()
	scanDuration.Observe(durationSec)
}

// RecordRiskScore records a computed risk score. Scores are stored on the
// unit interval and observed on the 0-100 scale the buckets use.
func RecordRiskScore(score float64) {
	riskScores.Observe(score * 100)
}

// RecordToolCall records one gated tool call with its decision, target, and
// latency. Empty label values are normalized so missing context cannot fan
// out the series.
func RecordToolCall(decision, server, tool, team string, latencySec float64) {
	if server == "" {
		server = "unknown"
	}
	if tool == "" {
		tool = "unknown"
	}
	if team == "" {
		team = "none"
	}
	toolCalls.WithLabelValues(decision, server, tool, team).Inc()
	toolCallLatency.WithLabelValues(server, tool).Observe(latencySec)
}

// RecordPolicyEval records the duration of one policy evaluation.
func RecordPolicyEval(durationSec float64) {
	policyEvals.Observe(durationSec)
}

// RecordAuditDrop records one audit event lost to backpressure.
func RecordAuditDrop() {
	auditDropped.Inc()
}

// SetAuditQueueDepth sets the audit backlog gauge.
func SetAuditQueueDepth(n int) {
	auditQueueDepth.Set(float64(n))
}

// Handler returns the HTTP handler serving the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
