// Package strategy executes tool calls either in-process (internal) or by
// parking them for an external actor (external).
package strategy

import (
	"context"
	"fmt"

	"toolgate/internal/domain"
)

// SettleFunc is invoked exactly once per call, right after its terminal
// transition. Calls removed by Clear never settle.
type SettleFunc func(call *domain.ToolCall, metadata map[string]any)

// Dispatcher is the closed set of execution strategies. Internal is nil when
// no handler registry is configured.
type Dispatcher struct {
	Internal *Internal
	External *External
}

// Execute runs call with the strategy selected by mode. It never returns an
// error; failures end up as a Failed call.
func (d *Dispatcher) Execute(ctx context.Context, mode domain.ExecutionMode, call *domain.ToolCall, entry domain.ToolCatalogEntry, ec domain.ExecutionContext, settle SettleFunc) domain.ToolCallResult {
	switch mode {
	case domain.ModeInternal:
		if d.Internal != nil {
			return d.Internal.Execute(ctx, call, entry, ec, settle)
		}
		return failNow(call, domain.ErrMissingExecutor.Error(), settle)
	case domain.ModeExternal:
		if d.External != nil {
			return d.External.Execute(ctx, call, settle)
		}
		return failNow(call, "external execution is not configured", settle)
	default:
		return failNow(call, fmt.Sprintf("%v: %q", domain.ErrInvalidMode, mode), settle)
	}
}

// OnExternalResult forwards an external completion; internal execution has
// nothing to complete.
func (d *Dispatcher) OnExternalResult(id string, result domain.ExternalResult) bool {
	if d.External == nil {
		return false
	}
	return d.External.OnExternalResult(id, result)
}

func failNow(call *domain.ToolCall, message string, settle SettleFunc) domain.ToolCallResult {
	if call.Fail(message) {
		notify(settle, call, nil)
	}
	return call.Result()
}

func notify(settle SettleFunc, call *domain.ToolCall, metadata map[string]any) {
	if settle != nil {
		settle(call, metadata)
	}
}
