package domain

import "time"

// RouteSource labels where a dispatch mode came from.
type RouteSource string

const (
	// RouteSourceStatic means the call-site mode was used unchanged.
	RouteSourceStatic RouteSource = "static"
	// RouteSourceDecision means the decision function picked the mode.
	RouteSourceDecision RouteSource = "decision"
	// RouteSourceFallback means the decision function failed or returned nothing.
	RouteSourceFallback RouteSource = "fallback"
)

// DispatchMetric captures one dispatched tool call.
type DispatchMetric struct {
	Tool     string
	Mode     ExecutionMode
	Status   CallStatus
	Cached   bool
	Duration time.Duration
}

// Metrics records operational metrics for dispatch and routing.
type Metrics interface {
	ObserveDispatch(metric DispatchMetric)
	SetPendingCalls(count int)
	ObserveRouteDecision(mode ExecutionMode, source RouteSource)
	ObserveExternalTimeout(tool string)
	ObserveUnknownCompletion()
	ObserveCacheLookup(tool string, hit bool)
}
