package domain

import (
	"maps"
	"sync"
	"time"
)

var callTransitions = map[CallStatus][]CallStatus{
	CallPending:   {CallExecuting, CallCompleted, CallFailed},
	CallExecuting: {CallCompleted, CallFailed},
}

// CanTransition reports whether a call may move from one status to another.
func CanTransition(from, to CallStatus) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ToolCall is the mutable unit of work behind a ToolCallInfo. All mutations go
// through transition, which rejects regressions and anything after a terminal
// status. Done is closed exactly once, on the terminal transition.
type ToolCall struct {
	mu   sync.Mutex
	info ToolCallInfo
	done chan struct{}
	now  func() time.Time
}

// NewToolCall wraps info in a pending call.
func NewToolCall(info ToolCallInfo) *ToolCall {
	return newToolCall(info, time.Now)
}

func newToolCall(info ToolCallInfo, now func() time.Time) *ToolCall {
	info.Status = CallPending
	info.Result = nil
	info.Error = ""
	if info.Timestamp.IsZero() {
		info.Timestamp = now()
	}
	info.UpdatedAt = info.Timestamp
	return &ToolCall{
		info: info,
		done: make(chan struct{}),
		now:  now,
	}
}

func (c *ToolCall) ID() string {
	return c.info.ID
}

func (c *ToolCall) ToolName() string {
	return c.info.ToolName
}

func (c *ToolCall) ThreadID() string {
	return c.info.ThreadID
}

// Args returns the call arguments. Callers must treat the map as read-only.
func (c *ToolCall) Args() map[string]any {
	return c.info.Args
}

// Snapshot returns a copy of the current call state.
func (c *ToolCall) Snapshot() ToolCallInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.info
	out.Args = maps.Clone(c.info.Args)
	return out
}

func (c *ToolCall) Status() CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.Status
}

// Done is closed once the call reaches a terminal status.
func (c *ToolCall) Done() <-chan struct{} {
	return c.done
}

// Bind records how the call is being dispatched. It has no effect once the
// call left the pending status.
func (c *ToolCall) Bind(mode ExecutionMode, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info.Status != CallPending {
		return
	}
	c.info.Mode = mode
	if sessionID != "" {
		c.info.SessionID = sessionID
	}
}

func (c *ToolCall) MarkExecuting() bool {
	return c.transition(CallExecuting, nil, "")
}

func (c *ToolCall) Complete(result any) bool {
	return c.transition(CallCompleted, result, "")
}

func (c *ToolCall) Fail(message string) bool {
	if message == "" {
		message = "tool call failed"
	}
	return c.transition(CallFailed, nil, message)
}

func (c *ToolCall) transition(to CallStatus, result any, errMsg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !CanTransition(c.info.Status, to) {
		return false
	}
	c.info.Status = to
	c.info.UpdatedAt = c.now()
	switch to {
	case CallCompleted:
		c.info.Result = result
		c.info.Error = ""
	case CallFailed:
		c.info.Result = nil
		c.info.Error = errMsg
	}
	if to.Terminal() {
		close(c.done)
	}
	return true
}

// Result converts the current state into a ToolCallResult.
func (c *ToolCall) Result() ToolCallResult {
	info := c.Snapshot()
	return ToolCallResult{
		CallID:   info.ID,
		ToolName: info.ToolName,
		Mode:     info.Mode,
		Status:   info.Status,
		Success:  info.Status != CallFailed,
		Result:   info.Result,
		Error:    info.Error,
	}
}
