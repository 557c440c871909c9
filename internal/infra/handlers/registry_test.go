package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, map[string]any, domain.ExecutionContext) (any, error) { return nil, nil }

	require.NoError(t, r.Register("files.upload", noop))
	require.Error(t, r.Register("files.upload", noop))
	require.Error(t, r.Register(" ", noop))
	require.Error(t, r.Register("nil", nil))

	_, ok := r.Lookup("files.upload")
	require.True(t, ok)
	_, ok = r.Lookup("missing")
	require.False(t, ok)
	require.Equal(t, []string{"files.upload"}, r.Names())
}

func TestEcho(t *testing.T) {
	r := NewBuiltinRegistry()
	echo, ok := r.Lookup(EchoHandlerName)
	require.True(t, ok)

	out, err := echo(context.Background(), map[string]any{"x": 1}, domain.ExecutionContext{ExecutionID: "call-1", ThreadID: "t1"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"executionId": "call-1",
		"threadId":    "t1",
		"args":        map[string]any{"x": 1},
	}, out)
}
