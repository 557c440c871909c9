package strategy

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/telemetry"
)

type ExternalOptions struct {
	WaitForResult bool
	Timeout       time.Duration
	CallbackURL   string
	Metrics       domain.Metrics
	Logger        *zap.Logger
}

type pendingCall struct {
	call    *domain.ToolCall
	settle  SettleFunc
	cleared chan struct{}
}

// External parks calls in a pending set until OnExternalResult settles them.
// A waiting dispatch blocks on the call's done channel instead of polling.
type External struct {
	waitForResult bool
	timeout       time.Duration
	callbackURL   string
	metrics       domain.Metrics
	logger        *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	order   []string
}

func NewExternal(opts ExternalOptions) (*External, error) {
	if opts.WaitForResult && opts.Timeout <= 0 {
		return nil, domain.ConfigError("strategy.NewExternal", "timeout must be > 0 when waitForResult is true", domain.ErrInvalidConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &External{
		waitForResult: opts.WaitForResult,
		timeout:       opts.Timeout,
		callbackURL:   opts.CallbackURL,
		metrics:       opts.Metrics,
		logger:        logger.Named("strategy.external"),
		pending:       make(map[string]*pendingCall),
	}, nil
}

// Execute registers call as pending. Fire-and-forget returns at once with a
// pending, successful dispatch result; otherwise it waits for completion,
// the timeout, or ctx.
func (s *External) Execute(ctx context.Context, call *domain.ToolCall, settle SettleFunc) domain.ToolCallResult {
	p := &pendingCall{call: call, settle: settle, cleared: make(chan struct{})}
	s.mu.Lock()
	s.pending[call.ID()] = p
	s.order = append(s.order, call.ID())
	s.observePendingLocked()
	s.mu.Unlock()

	if !s.waitForResult {
		return s.result(call)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-call.Done():
	case <-p.cleared:
	case <-timer.C:
		if s.expire(call, domain.ErrExternalTimeout.Error(), map[string]any{"timedOut": true}) {
			s.logger.Warn("external call timed out",
				telemetry.EventField(telemetry.EventExternalTimeout),
				telemetry.ToolField(call.ToolName()),
				telemetry.CallIDField(call.ID()),
				telemetry.ThreadIDField(call.ThreadID()),
				telemetry.DurationField(s.timeout),
				zap.Error(domain.ErrExternalTimeout),
			)
			if s.metrics != nil {
				s.metrics.ObserveExternalTimeout(call.ToolName())
			}
		}
	case <-ctx.Done():
		s.expire(call, ctx.Err().Error(), map[string]any{"cancelled": true})
	}

	result := s.result(call)
	if !result.Status.Terminal() {
		// cleared while waiting; the call itself stays non-terminal
		result.Success = false
		result.Error = "external call was cleared before completion"
	}
	return result
}

// expire fails a still-pending call. It reports false when a completion won
// the race.
func (s *External) expire(call *domain.ToolCall, message string, metadata map[string]any) bool {
	p, ok := s.take(call.ID())
	if !ok {
		return false
	}
	if !call.Fail(message) {
		return false
	}
	notify(p.settle, call, metadata)
	return true
}

// OnExternalResult is the single completion point for parked calls. It
// returns false for ids that are not pending (unknown, timed out, cleared or
// already completed).
func (s *External) OnExternalResult(id string, result domain.ExternalResult) bool {
	p, ok := s.take(id)
	if !ok {
		return false
	}
	var settled bool
	if result.Error != "" {
		settled = p.call.Fail(result.Error)
	} else {
		settled = p.call.Complete(result.Result)
	}
	if settled {
		notify(p.settle, p.call, map[string]any{"external": true})
	}
	return settled
}

func (s *External) take(id string) (*pendingCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
		s.order = removeID(s.order, id)
		s.observePendingLocked()
	}
	return p, ok
}

// Lookup returns a snapshot of a pending call.
func (s *External) Lookup(id string) (domain.ToolCallInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return domain.ToolCallInfo{}, false
	}
	return p.call.Snapshot(), true
}

// ListPending returns pending calls in registration order. An empty threadID
// lists every thread.
func (s *External) ListPending(threadID string) []domain.ToolCallInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ToolCallInfo, 0, len(s.order))
	for _, id := range s.order {
		p := s.pending[id]
		if threadID != "" && p.call.ThreadID() != threadID {
			continue
		}
		out = append(out, p.call.Snapshot())
	}
	return out
}

// Clear drops pending calls without settling them. An empty threadID clears
// every thread. Waiting dispatches of cleared calls return immediately.
func (s *External) Clear(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		p := s.pending[id]
		if threadID == "" || p.call.ThreadID() == threadID {
			delete(s.pending, id)
			close(p.cleared)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.observePendingLocked()
	return removed
}

func (s *External) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *External) result(call *domain.ToolCall) domain.ToolCallResult {
	result := call.Result()
	result.CallbackURL = s.callbackURL
	return result
}

// observePendingLocked must be called with s.mu held so gauge updates follow
// the order of pending set changes.
func (s *External) observePendingLocked() {
	if s.metrics != nil {
		s.metrics.SetPendingCalls(len(s.pending))
	}
}

func removeID(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
