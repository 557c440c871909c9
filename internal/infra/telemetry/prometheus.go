package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolgate/internal/domain"
)

type PrometheusMetrics struct {
	dispatchDuration   *prometheus.HistogramVec
	dispatchTotal      *prometheus.CounterVec
	pendingCalls       prometheus.Gauge
	routeDecisions     *prometheus.CounterVec
	externalTimeouts   *prometheus.CounterVec
	unknownCompletions prometheus.Counter
	cacheLookups       *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_dispatch_duration_seconds",
				Help:    "Duration of tool call dispatches in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode", "status"},
		),
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_dispatch_total",
				Help: "Total number of dispatched tool calls",
			},
			[]string{"tool", "mode", "status", "cached"},
		),
		pendingCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_pending_calls",
				Help: "Current number of pending external calls",
			},
		),
		routeDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_route_decisions_total",
				Help: "Total number of routing decisions",
			},
			[]string{"mode", "source"},
		),
		externalTimeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_external_timeouts_total",
				Help: "Total number of external calls that timed out",
			},
			[]string{"tool"},
		),
		unknownCompletions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "toolgate_unknown_completions_total",
				Help: "Total number of external completions for unknown call ids",
			},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_cache_lookups_total",
				Help: "Total number of result cache lookups",
			},
			[]string{"tool", "result"},
		),
	}
}

func (p *PrometheusMetrics) ObserveDispatch(metric domain.DispatchMetric) {
	mode := string(metric.Mode)
	status := string(metric.Status)
	p.dispatchDuration.WithLabelValues(mode, status).Observe(metric.Duration.Seconds())
	p.dispatchTotal.WithLabelValues(metric.Tool, mode, status, strconv.FormatBool(metric.Cached)).Inc()
}

func (p *PrometheusMetrics) SetPendingCalls(count int) {
	p.pendingCalls.Set(float64(count))
}

func (p *PrometheusMetrics) ObserveRouteDecision(mode domain.ExecutionMode, source domain.RouteSource) {
	p.routeDecisions.WithLabelValues(string(mode), string(source)).Inc()
}

func (p *PrometheusMetrics) ObserveExternalTimeout(tool string) {
	p.externalTimeouts.WithLabelValues(tool).Inc()
}

func (p *PrometheusMetrics) ObserveUnknownCompletion() {
	p.unknownCompletions.Inc()
}

func (p *PrometheusMetrics) ObserveCacheLookup(tool string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(tool, result).Inc()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
