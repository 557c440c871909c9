package router

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

func TestDynamicRouter_Disabled(t *testing.T) {
	called := false
	r, err := New(Options{
		Decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
			called = true
			return domain.ModeExternal, nil
		},
		LogSize: 4,
	})
	require.NoError(t, err)

	mode, source := r.Decide(context.Background(), "upload", nil, domain.SessionContext{}, domain.ModeInternal)
	assert.Equal(t, domain.ModeInternal, mode)
	assert.Equal(t, domain.RouteSourceStatic, source)
	assert.False(t, called)
	assert.Empty(t, r.Decisions())
}

func TestDynamicRouter_Decide(t *testing.T) {
	tests := []struct {
		name   string
		decide DecisionFunc
		mode   domain.ExecutionMode
		source domain.RouteSource
	}{
		{
			name: "decision wins over call site",
			decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
				return domain.ModeExternal, nil
			},
			mode:   domain.ModeExternal,
			source: domain.RouteSourceDecision,
		},
		{
			name: "error falls back",
			decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
				return domain.ModeExternal, errors.New("boom")
			},
			mode:   domain.ModeInternal,
			source: domain.RouteSourceFallback,
		},
		{
			name: "panic falls back",
			decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
				panic("bad decision")
			},
			mode:   domain.ModeInternal,
			source: domain.RouteSourceFallback,
		},
		{
			name: "empty falls back",
			decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
				return "", nil
			},
			mode:   domain.ModeInternal,
			source: domain.RouteSourceFallback,
		},
		{
			name: "unknown mode falls back",
			decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
				return "remote", nil
			},
			mode:   domain.ModeInternal,
			source: domain.RouteSourceFallback,
		},
		{
			name:   "nil function falls back",
			mode:   domain.ModeInternal,
			source: domain.RouteSourceFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(Options{
				Enabled:     true,
				DefaultMode: domain.ModeInternal,
				Decide:      tt.decide,
				LogSize:     8,
				Logger:      zap.NewNop(),
			})
			require.NoError(t, err)

			mode, source := r.Decide(context.Background(), "upload", map[string]any{"file": "x.pdf"}, domain.SessionContext{ThreadID: "t1"}, domain.ModeExternal)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, tt.source, source)

			decisions := r.Decisions()
			require.Len(t, decisions, 1)
			assert.Equal(t, "upload", decisions[0].Tool)
			assert.Equal(t, "t1", decisions[0].ThreadID)
			assert.Equal(t, tt.mode, decisions[0].Mode)
		})
	}
}

func TestDynamicRouter_DecisionsAreNotMemoized(t *testing.T) {
	calls := 0
	r, err := New(Options{
		Enabled: true,
		Decide: func(context.Context, string, map[string]any, domain.SessionContext) (domain.ExecutionMode, error) {
			calls++
			if calls%2 == 0 {
				return domain.ModeExternal, nil
			}
			return domain.ModeInternal, nil
		},
	})
	require.NoError(t, err)

	first, _ := r.Decide(context.Background(), "a", nil, domain.SessionContext{}, domain.ModeInternal)
	second, _ := r.Decide(context.Background(), "a", nil, domain.SessionContext{}, domain.ModeInternal)
	assert.Equal(t, domain.ModeInternal, first)
	assert.Equal(t, domain.ModeExternal, second)
	assert.Equal(t, 2, calls)
}

func TestDynamicRouter_DecisionLogRing(t *testing.T) {
	r, err := New(Options{Enabled: true, DefaultMode: domain.ModeExternal, LogSize: 3})
	require.NoError(t, err)

	for _, tool := range []string{"a", "b", "c", "d", "e"} {
		r.Decide(context.Background(), tool, nil, domain.SessionContext{}, domain.ModeInternal)
	}
	decisions := r.Decisions()
	require.Len(t, decisions, 3)
	assert.Equal(t, "c", decisions[0].Tool)
	assert.Equal(t, "d", decisions[1].Tool)
	assert.Equal(t, "e", decisions[2].Tool)

	unlogged, err := New(Options{Enabled: true})
	require.NoError(t, err)
	unlogged.Decide(context.Background(), "a", nil, domain.SessionContext{}, domain.ModeInternal)
	assert.Empty(t, unlogged.Decisions())
}

func TestDynamicRouter_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	r, err := New(Options{
		Enabled: true,
		Decide:  RuleDecisionFunc([]domain.RoutingRule{{Tool: "upload*", Mode: domain.ModeExternal}}),
		Metrics: telemetry.NewPrometheusMetrics(registry),
	})
	require.NoError(t, err)
	r.Decide(context.Background(), "upload_file", nil, domain.SessionContext{}, domain.ModeInternal)

	families, err := registry.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != "toolgate_route_decisions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, total)
}

func TestNew_InvalidDefaultMode(t *testing.T) {
	_, err := New(Options{Enabled: true, DefaultMode: "remote"})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestRuleDecisionFunc(t *testing.T) {
	decide := RuleDecisionFunc([]domain.RoutingRule{
		{Tool: "upload*", Mode: domain.ModeExternal},
		{Tool: "upload_small", Mode: domain.ModeInternal},
		{Tool: "search", Mode: domain.ModeInternal},
	})

	mode, err := decide(context.Background(), "upload_small", nil, domain.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeExternal, mode)

	mode, err = decide(context.Background(), "search", nil, domain.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeInternal, mode)

	mode, err = decide(context.Background(), "browse", nil, domain.SessionContext{})
	require.NoError(t, err)
	assert.Empty(t, mode)
}
