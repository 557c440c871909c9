package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldTool       = "tool"
	FieldCallID     = "call_id"
	FieldThreadID   = "thread_id"
	FieldMode       = "mode"
	FieldStatus     = "status"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventDispatch          = "dispatch"
	EventDispatchFailure   = "dispatch_failure"
	EventExternalTimeout   = "external_timeout"
	EventUnknownCompletion = "unknown_completion"
	EventRouteDecision     = "route_decision"
	EventCatalogReload     = "catalog_reload"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func CallIDField(id string) zap.Field {
	return zap.String(FieldCallID, id)
}

func ThreadIDField(threadID string) zap.Field {
	return zap.String(FieldThreadID, threadID)
}

func ModeField(mode string) zap.Field {
	return zap.String(FieldMode, mode)
}

func StatusField(status string) zap.Field {
	return zap.String(FieldStatus, status)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
