package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	treasuryOnce     sync.Once
	treasuryRegistry *TreasuryMetrics

	keeperOnce     sync.Once
	keeperRegistry *KeeperMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record HTTP
// API activity per module.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "treasury",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by the rate limiter.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module = normalizeLabel(module)
	method = normalizeLabel(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for module.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(module), normalizeLabel(reason)).Inc()
}

// TreasuryMetrics tracks controller invocations and the operations they emit.
type TreasuryMetrics struct {
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	operations  *prometheus.CounterVec
}

// Treasury returns the controller invocation registry.
func Treasury() *TreasuryMetrics {
	treasuryOnce.Do(func() {
		treasuryRegistry = &TreasuryMetrics{
			invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "runtime",
				Name:      "invocations_total",
				Help:      "Controller invocations segmented by entrypoint and outcome.",
			}, []string{"entrypoint", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "runtime",
				Name:      "failures_total",
				Help:      "Failed invocations segmented by entrypoint and error code.",
			}, []string{"entrypoint", "code"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "treasury",
				Subsystem: "runtime",
				Name:      "invocation_duration_seconds",
				Help:      "Latency of controller invocations including emitted operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"entrypoint"}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "treasury",
				Subsystem: "runtime",
				Name:      "operations_total",
				Help:      "Operations delivered by the runtime segmented by target entrypoint.",
			}, []string{"entrypoint"}),
		}
		prometheus.MustRegister(
			treasuryRegistry.invocations,
			treasuryRegistry.failures,
			treasuryRegistry.duration,
			treasuryRegistry.operations,
		)
	})
	return treasuryRegistry
}

// ObserveInvocation records one invocation. code is empty on success.
func (m *TreasuryMetrics) ObserveInvocation(entrypoint, code string, duration time.Duration) {
	if m == nil {
		return
	}
	entrypoint = normalizeLabel(entrypoint)
	outcome := "committed"
	if code != "" {
		outcome = "failed"
		m.failures.WithLabelValues(entrypoint, code).Inc()
	}
	m.invocations.WithLabelValues(entrypoint, outcome).Inc()
	m.duration.WithLabelValues(entrypoint).Observe(duration.Seconds())
}

// RecordOperation counts one delivered operation.
func (m *TreasuryMetrics) RecordOperation(entrypoint string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(entrypoint)).Inc()
}

// KeeperMetrics tracks the periodic trade loop of treasuryd.
type KeeperMetrics struct {
	ticks    *prometheus.CounterVec
	lastRun  *prometheus.GaugeVec
	lastCode *prometheus.GaugeVec
}

// Keeper returns the keeper loop registry.
func Keeper() *KeeperMetrics {
	keeperOnce.Do(func() {
		keeperRegistry = &KeeperMetrics{
			ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "treasury_keeper_ticks_total",
				Help: "Keeper trade attempts segmented by controller and outcome.",
			}, []string{"controller", "outcome"}),
			lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "treasury_keeper_last_run_timestamp",
				Help: "Unix time of the last keeper attempt per controller.",
			}, []string{"controller"}),
			lastCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "treasury_keeper_last_error_code",
				Help: "Error code of the last failed keeper attempt, zero after a success.",
			}, []string{"controller"}),
		}
		prometheus.MustRegister(keeperRegistry.ticks, keeperRegistry.lastRun, keeperRegistry.lastCode)
	})
	return keeperRegistry
}

// RecordTick records one keeper attempt. code is zero on success.
func (m *KeeperMetrics) RecordTick(controller string, code uint16, at time.Time) {
	if m == nil {
		return
	}
	controller = normalizeLabel(controller)
	outcome := "traded"
	if code != 0 {
		outcome = "skipped"
	}
	m.ticks.WithLabelValues(controller, outcome).Inc()
	m.lastRun.WithLabelValues(controller).Set(float64(at.Unix()))
	m.lastCode.WithLabelValues(controller).Set(float64(code))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
