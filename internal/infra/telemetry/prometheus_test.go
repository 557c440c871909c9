package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveDispatch(domain.DispatchMetric{
		Tool:     "search",
		Mode:     domain.ModeInternal,
		Status:   domain.CallCompleted,
		Duration: 10 * time.Millisecond,
	})
	m.SetPendingCalls(2)
	m.ObserveRouteDecision(domain.ModeExternal, domain.RouteSourceDecision)
	m.ObserveExternalTimeout("upload")
	m.ObserveUnknownCompletion()
	m.ObserveCacheLookup("search", true)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.GetName())
	}

	assert.Contains(t, names, "toolgate_dispatch_duration_seconds")
	assert.Contains(t, names, "toolgate_dispatch_total")
	assert.Contains(t, names, "toolgate_pending_calls")
	assert.Contains(t, names, "toolgate_route_decisions_total")
	assert.Contains(t, names, "toolgate_external_timeouts_total")
	assert.Contains(t, names, "toolgate_unknown_completions_total")
	assert.Contains(t, names, "toolgate_cache_lookups_total")
}

func TestPrometheusMetrics_Values(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.ObserveDispatch(domain.DispatchMetric{Tool: "search", Mode: domain.ModeInternal, Status: domain.CallFailed})
	m.ObserveDispatch(domain.DispatchMetric{Tool: "search", Mode: domain.ModeInternal, Status: domain.CallFailed})
	m.ObserveCacheLookup("search", false)
	m.SetPendingCalls(3)
	m.SetPendingCalls(1)
	m.ObserveUnknownCompletion()

	families, err := registry.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["toolgate_dispatch_total"])
	assert.Equal(t, 1.0, values["toolgate_cache_lookups_total"])
	assert.Equal(t, 1.0, values["toolgate_pending_calls"])
	assert.Equal(t, 1.0, values["toolgate_unknown_completions_total"])
}

func TestPrometheusMetrics_ImplementsInterface(t *testing.T) {
	var _ domain.Metrics = (*PrometheusMetrics)(nil)
	var _ domain.Metrics = (*NoopMetrics)(nil)
}
