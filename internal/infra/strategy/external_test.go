package strategy

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"toolgate/internal/domain"
)

func TestExternal_FireAndForget(t *testing.T) {
	s := newExternal(t, ExternalOptions{CallbackURL: "https://ui.example/cb"})
	rec := &settleRecorder{}

	call := newCall("call-1", "upload", "t1", map[string]any{"file": "x.pdf"})
	result := s.Execute(context.Background(), call, rec.settle)

	assert.Equal(t, domain.CallPending, result.Status)
	assert.True(t, result.Success)
	assert.Nil(t, result.Result)
	assert.Equal(t, "https://ui.example/cb", result.CallbackURL)

	pending := s.ListPending("")
	require.Len(t, pending, 1)
	assert.Equal(t, "upload", pending[0].ToolName)
	assert.Equal(t, map[string]any{"file": "x.pdf"}, pending[0].Args)
	assert.Equal(t, 0, rec.count())

	require.True(t, s.OnExternalResult("call-1", domain.ExternalResult{Result: "stored"}))
	assert.Empty(t, s.ListPending(""))
	assert.Equal(t, domain.CallCompleted, call.Status())
	assert.Equal(t, 1, rec.count())
}

func TestExternal_WaitCompletesBeforeTimeout(t *testing.T) {
	s := newExternal(t, ExternalOptions{WaitForResult: true, Timeout: 200 * time.Millisecond})
	call := newCall("call-1", "approve", "t1", nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.OnExternalResult("call-1", domain.ExternalResult{Result: map[string]any{"approved": true}})
	}()

	start := time.Now()
	result := s.Execute(context.Background(), call, nil)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, domain.CallCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"approved": true}, result.Result)
	assert.Empty(t, s.ListPending(""))
}

func TestExternal_WaitTimesOutAndIgnoresLateCompletion(t *testing.T) {
	s := newExternal(t, ExternalOptions{WaitForResult: true, Timeout: 200 * time.Millisecond})
	rec := &settleRecorder{}
	call := newCall("call-1", "approve", "t1", nil)

	late := make(chan bool, 1)
	go func() {
		time.Sleep(500 * time.Millisecond)
		late <- s.OnExternalResult("call-1", domain.ExternalResult{Result: "too late"})
	}()

	result := s.Execute(context.Background(), call, rec.settle)
	assert.Equal(t, domain.CallFailed, result.Status)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ExternalTimeoutMessage, result.Error)
	assert.Equal(t, domain.ErrExternalTimeout.Error(), result.Error)
	assert.Empty(t, s.ListPending(""))

	select {
	case accepted := <-late:
		assert.False(t, accepted)
	case <-time.After(2 * time.Second):
		t.Fatal("late completion did not return")
	}
	assert.Equal(t, domain.CallFailed, call.Status())
	assert.Equal(t, domain.ExternalTimeoutMessage, call.Snapshot().Error)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, true, rec.metadata(0)["timedOut"])
}

func TestExternal_CompletionIsIdempotent(t *testing.T) {
	s := newExternal(t, ExternalOptions{})
	rec := &settleRecorder{}
	call := newCall("call-1", "upload", "", nil)
	s.Execute(context.Background(), call, rec.settle)

	require.True(t, s.OnExternalResult("call-1", domain.ExternalResult{Result: "done"}))
	first := call.Snapshot()

	require.False(t, s.OnExternalResult("call-1", domain.ExternalResult{Result: "done"}))
	second := call.Snapshot()

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, 1, rec.count())
}

func TestExternal_CompletionWithError(t *testing.T) {
	s := newExternal(t, ExternalOptions{})
	call := newCall("call-1", "upload", "", nil)
	s.Execute(context.Background(), call, nil)

	require.True(t, s.OnExternalResult("call-1", domain.ExternalResult{Error: "user rejected"}))
	info := call.Snapshot()
	assert.Equal(t, domain.CallFailed, info.Status)
	assert.Equal(t, "user rejected", info.Error)
}

func TestExternal_ContextCancel(t *testing.T) {
	s := newExternal(t, ExternalOptions{WaitForResult: true, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	call := newCall("call-1", "approve", "", nil)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := s.Execute(ctx, call, nil)
	assert.Equal(t, domain.CallFailed, result.Status)
	assert.Equal(t, context.Canceled.Error(), result.Error)
	assert.Equal(t, 0, s.PendingCount())
}

func TestExternal_ClearByThread(t *testing.T) {
	s := newExternal(t, ExternalOptions{})
	rec := &settleRecorder{}
	calls := []*domain.ToolCall{
		newCall("call-1", "upload", "t1", nil),
		newCall("call-2", "upload", "t2", nil),
		newCall("call-3", "sign", "t1", nil),
	}
	for _, call := range calls {
		s.Execute(context.Background(), call, rec.settle)
	}

	t1 := s.ListPending("t1")
	require.Len(t, t1, 2)
	assert.Equal(t, "call-1", t1[0].ID)
	assert.Equal(t, "call-3", t1[1].ID)

	assert.Equal(t, 2, s.Clear("t1"))
	assert.Equal(t, 1, s.PendingCount())
	_, ok := s.Lookup("call-1")
	assert.False(t, ok)
	info, ok := s.Lookup("call-2")
	require.True(t, ok)
	assert.Equal(t, "t2", info.ThreadID)

	// cleared calls simply vanish
	assert.Equal(t, domain.CallPending, calls[0].Status())
	assert.False(t, s.OnExternalResult("call-1", domain.ExternalResult{}))
	assert.Equal(t, 0, rec.count())

	assert.Equal(t, 1, s.Clear(""))
	assert.Empty(t, s.ListPending(""))
}

func TestExternal_ClearWhileWaiting(t *testing.T) {
	s := newExternal(t, ExternalOptions{WaitForResult: true, Timeout: 10 * time.Second})
	call := newCall("call-1", "approve", "", nil)

	go func() {
		assert.Eventually(t, func() bool { return s.PendingCount() == 1 }, time.Second, 5*time.Millisecond)
		s.Clear("")
	}()

	start := time.Now()
	result := s.Execute(context.Background(), call, nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.CallPending, result.Status)
	assert.False(t, result.Success)
	assert.Equal(t, "external call was cleared before completion", result.Error)
}

func TestExternal_PendingGaugeTracksSet(t *testing.T) {
	gauge := &gaugeRecorder{}
	s := newExternal(t, ExternalOptions{Metrics: gauge})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("call-%d-%d", i, j)
				s.Execute(context.Background(), newCall(id, "upload", "", nil), nil)
				s.OnExternalResult(id, domain.ExternalResult{Result: j})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, s.PendingCount())
	assert.Equal(t, 0, gauge.value())

	s.Execute(context.Background(), newCall("call-last", "upload", "", nil), nil)
	assert.Equal(t, 1, gauge.value())
	s.Clear("")
	assert.Equal(t, 0, gauge.value())
}

func TestNewExternal_Config(t *testing.T) {
	_, err := NewExternal(ExternalOptions{WaitForResult: true})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestDispatcher(t *testing.T) {
	external := newExternal(t, ExternalOptions{})
	d := &Dispatcher{External: external}
	rec := &settleRecorder{}

	result := d.Execute(context.Background(), domain.ModeInternal, newCall("call-1", "a", "", nil), entry("a"), domain.ExecutionContext{}, rec.settle)
	assert.Equal(t, domain.CallFailed, result.Status)
	assert.Equal(t, domain.ErrMissingExecutor.Error(), result.Error)

	result = d.Execute(context.Background(), "remote", newCall("call-2", "a", "", nil), entry("a"), domain.ExecutionContext{}, rec.settle)
	assert.Equal(t, domain.CallFailed, result.Status)
	assert.Contains(t, result.Error, "invalid execution mode")
	assert.Equal(t, 2, rec.count())

	result = d.Execute(context.Background(), domain.ModeExternal, newCall("call-3", "a", "", nil), entry("a"), domain.ExecutionContext{}, rec.settle)
	assert.Equal(t, domain.CallPending, result.Status)
	assert.True(t, d.OnExternalResult("call-3", domain.ExternalResult{Result: 1}))

	internalOnly := &Dispatcher{}
	assert.False(t, internalOnly.OnExternalResult("call-3", domain.ExternalResult{}))
}

func newExternal(t *testing.T, opts ExternalOptions) *External {
	t.Helper()
	opts.Logger = zap.NewNop()
	s, err := NewExternal(opts)
	require.NoError(t, err)
	return s
}

type gaugeRecorder struct {
	mu      sync.Mutex
	pending int
}

func (g *gaugeRecorder) ObserveDispatch(domain.DispatchMetric) {}

func (g *gaugeRecorder) SetPendingCalls(count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = count
}

func (g *gaugeRecorder) ObserveRouteDecision(domain.ExecutionMode, domain.RouteSource) {}

func (g *gaugeRecorder) ObserveExternalTimeout(string) {}

func (g *gaugeRecorder) ObserveUnknownCompletion() {}

func (g *gaugeRecorder) ObserveCacheLookup(string, bool) {}

func (g *gaugeRecorder) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
