package telemetry

import "toolgate/internal/domain"

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveDispatch(_ domain.DispatchMetric) {}

func (n *NoopMetrics) SetPendingCalls(_ int) {}

func (n *NoopMetrics) ObserveRouteDecision(_ domain.ExecutionMode, _ domain.RouteSource) {}

func (n *NoopMetrics) ObserveExternalTimeout(_ string) {}

func (n *NoopMetrics) ObserveUnknownCompletion() {}

func (n *NoopMetrics) ObserveCacheLookup(_ string, _ bool) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
