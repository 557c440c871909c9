// Package router picks the execution mode of each tool call.
package router

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

// DecisionFunc chooses a mode for one call. Returning an empty mode means
// "no opinion" and selects the router's default mode.
type DecisionFunc func(ctx context.Context, toolName string, args map[string]any, sc domain.SessionContext) (domain.ExecutionMode, error)

// Decision is one entry of the decision log.
type Decision struct {
	Tool     string               `json:"tool"`
	ThreadID string               `json:"threadId"`
	Mode     domain.ExecutionMode `json:"mode"`
	Source   domain.RouteSource   `json:"source"`
	Error    string               `json:"error,omitempty"`
	At       time.Time            `json:"at"`
}

type Options struct {
	Enabled     bool
	DefaultMode domain.ExecutionMode
	Decide      DecisionFunc
	LogSize     int
	Metrics     domain.Metrics
	Logger      *zap.Logger
}

// DynamicRouter routes each call independently; decisions are never memoized.
type DynamicRouter struct {
	enabled     bool
	defaultMode domain.ExecutionMode
	decide      DecisionFunc
	metrics     domain.Metrics
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	log  []Decision
	next int
	full bool
}

func New(opts Options) (*DynamicRouter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultMode := opts.DefaultMode
	if defaultMode == "" {
		defaultMode = domain.DefaultExecutionMode
	}
	if !defaultMode.Valid() {
		return nil, domain.ConfigError("router.New", fmt.Sprintf("invalid default mode %q", defaultMode), domain.ErrInvalidMode)
	}
	size := opts.LogSize
	if size < 0 {
		size = 0
	}
	return &DynamicRouter{
		enabled:     opts.Enabled,
		defaultMode: defaultMode,
		decide:      opts.Decide,
		metrics:     opts.Metrics,
		logger:      logger.Named("router"),
		now:         time.Now,
		log:         make([]Decision, size),
	}, nil
}

func (r *DynamicRouter) Enabled() bool {
	return r != nil && r.enabled
}

func (r *DynamicRouter) DefaultMode() domain.ExecutionMode {
	return r.defaultMode
}

// Decide returns the mode for one call. A disabled router always returns
// callSite.
func (r *DynamicRouter) Decide(ctx context.Context, toolName string, args map[string]any, sc domain.SessionContext, callSite domain.ExecutionMode) (domain.ExecutionMode, domain.RouteSource) {
	if !r.Enabled() {
		return callSite, domain.RouteSourceStatic
	}

	mode, err := r.invoke(ctx, toolName, args, sc)
	source := domain.RouteSourceDecision
	switch {
	case err != nil:
		r.logger.Warn("routing decision failed, using default mode",
			telemetry.EventField(telemetry.EventRouteDecision),
			telemetry.ToolField(toolName),
			telemetry.ModeField(string(r.defaultMode)),
			zap.Error(err),
		)
		mode, source = r.defaultMode, domain.RouteSourceFallback
	case !mode.Valid():
		mode, source = r.defaultMode, domain.RouteSourceFallback
	}

	r.record(Decision{
		Tool:     toolName,
		ThreadID: sc.Thread(),
		Mode:     mode,
		Source:   source,
		Error:    errString(err),
		At:       r.now(),
	})
	if r.metrics != nil {
		r.metrics.ObserveRouteDecision(mode, source)
	}
	r.logger.Debug("routing decision",
		telemetry.EventField(telemetry.EventRouteDecision),
		telemetry.ToolField(toolName),
		telemetry.ModeField(string(mode)),
		zap.String("source", string(source)),
	)
	return mode, source
}

func (r *DynamicRouter) invoke(ctx context.Context, toolName string, args map[string]any, sc domain.SessionContext) (mode domain.ExecutionMode, err error) {
	if r.decide == nil {
		return "", nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			mode = ""
			err = fmt.Errorf("decision function panicked: %v", recovered)
		}
	}()
	mode, err = r.decide(ctx, toolName, args, sc)
	if err == nil && mode != "" && !mode.Valid() {
		err = fmt.Errorf("%w: %q", domain.ErrInvalidMode, mode)
	}
	return mode, err
}

func (r *DynamicRouter) record(decision Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.log) == 0 {
		return
	}
	r.log[r.next] = decision
	r.next = (r.next + 1) % len(r.log)
	if r.next == 0 {
		r.full = true
	}
}

// Decisions returns the decision log, oldest first.
func (r *DynamicRouter) Decisions() []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Decision(nil), r.log[:r.next]...)
	}
	out := make([]Decision, 0, len(r.log))
	out = append(out, r.log[r.next:]...)
	return append(out, r.log[:r.next]...)
}

// RuleDecisionFunc maps tool names to modes; the first matching glob wins.
func RuleDecisionFunc(rules []domain.RoutingRule) DecisionFunc {
	compiled := append([]domain.RoutingRule(nil), rules...)
	return func(_ context.Context, toolName string, _ map[string]any, _ domain.SessionContext) (domain.ExecutionMode, error) {
		for _, rule := range compiled {
			ok, err := path.Match(rule.Tool, toolName)
			if err != nil {
				return "", err
			}
			if ok {
				return rule.Mode, nil
			}
		}
		return "", nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
