package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestToolCall_StartsPending(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1", ToolName: "upload", Status: CallCompleted, Result: "stale"}, fixedNow)

	info := call.Snapshot()
	require.Equal(t, CallPending, info.Status)
	require.Nil(t, info.Result)
	require.Equal(t, fixedNow(), info.Timestamp)
}

func TestToolCall_InternalLifecycle(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1"}, fixedNow)

	require.True(t, call.MarkExecuting())
	require.False(t, call.MarkExecuting())
	require.True(t, call.Complete(map[string]any{"ok": true}))

	select {
	case <-call.Done():
	default:
		t.Fatal("done channel not closed")
	}

	info := call.Snapshot()
	require.Equal(t, CallCompleted, info.Status)
	require.Equal(t, map[string]any{"ok": true}, info.Result)
}

func TestToolCall_TerminalIsFinal(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1"}, fixedNow)
	require.True(t, call.Fail("boom"))

	require.False(t, call.Complete("late"))
	require.False(t, call.MarkExecuting())
	require.False(t, call.Fail("again"))

	info := call.Snapshot()
	require.Equal(t, CallFailed, info.Status)
	require.Equal(t, "boom", info.Error)
	require.Nil(t, info.Result)
}

func TestToolCall_PendingToCompletedDirectly(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1"}, fixedNow)
	require.True(t, call.Complete("done"))

	result := call.Result()
	require.Equal(t, CallCompleted, result.Status)
	require.True(t, result.Success)
	require.Equal(t, "done", result.Result)
}

func TestToolCall_BindOnlyWhilePending(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1"}, fixedNow)
	call.Bind(ModeExternal, "sess-1")
	require.True(t, call.MarkExecuting())
	call.Bind(ModeInternal, "sess-2")

	info := call.Snapshot()
	require.Equal(t, ModeExternal, info.Mode)
	require.Equal(t, "sess-1", info.SessionID)
}

func TestToolCall_SnapshotCopiesArgs(t *testing.T) {
	call := newToolCall(ToolCallInfo{ID: "call-1", Args: map[string]any{"file": "x.pdf"}}, fixedNow)
	info := call.Snapshot()
	info.Args["file"] = "mutated"

	require.Equal(t, "x.pdf", call.Args()["file"])
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to CallStatus
		want     bool
	}{
		{CallPending, CallExecuting, true},
		{CallPending, CallCompleted, true},
		{CallPending, CallFailed, true},
		{CallExecuting, CallCompleted, true},
		{CallExecuting, CallPending, false},
		{CallCompleted, CallFailed, false},
		{CallFailed, CallCompleted, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestParseExecutionMode(t *testing.T) {
	mode, err := ParseExecutionMode(" External ")
	require.NoError(t, err)
	require.Equal(t, ModeExternal, mode)

	_, err = ParseExecutionMode("remote")
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestCodeFrom(t *testing.T) {
	code, ok := CodeFrom(ConfigError("calls.NewManager", "", ErrMissingExecutor))
	require.True(t, ok)
	require.Equal(t, CodeFailedPrecond, code)

	code, ok = CodeFrom(ErrUnknownCall)
	require.True(t, ok)
	require.Equal(t, CodeNotFound, code)

	_, ok = CodeFrom(errors.New("plain"))
	require.False(t, ok)
}
