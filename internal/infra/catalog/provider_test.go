package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const providerConfig = `
tools:
  - name: a
  - name: b
    dependencies:
      - kind: all
        tools: [a]
`

func TestProvider_Reload(t *testing.T) {
	file := writeTempConfig(t, providerConfig)
	loader := NewLoader(zap.NewNop())
	initial, err := loader.LoadCatalog(context.Background(), file)
	require.NoError(t, err)

	provider := NewProvider(initial, loader, file, zap.NewNop())
	require.Equal(t, uint64(1), provider.Current().Revision())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := provider.Subscribe(ctx)

	// unchanged file keeps the revision
	require.NoError(t, provider.Reload(ctx))
	require.Equal(t, uint64(1), provider.Current().Revision())

	require.NoError(t, os.WriteFile(file, []byte(providerConfig+"  - name: c\n"), 0o600))
	require.NoError(t, provider.Reload(ctx))
	require.Equal(t, uint64(2), provider.Current().Revision())
	require.Equal(t, []string{"a", "b", "c"}, provider.Current().Names())

	select {
	case update := <-updates:
		require.Equal(t, []string{"c"}, update.Added)
		require.Empty(t, update.Removed)
	case <-time.After(time.Second):
		t.Fatal("no update broadcast")
	}
}

func TestProvider_ReloadKeepsPreviousOnError(t *testing.T) {
	file := writeTempConfig(t, providerConfig)
	loader := NewLoader(zap.NewNop())
	initial, err := loader.LoadCatalog(context.Background(), file)
	require.NoError(t, err)
	provider := NewProvider(initial, loader, file, zap.NewNop())

	require.NoError(t, os.WriteFile(file, []byte("tools:\n  - name: a\n  - name: a\n"), 0o600))
	err = provider.Reload(context.Background())
	require.Error(t, err)
	require.True(t, ValidationError(err))
	require.Equal(t, []string{"a", "b"}, provider.Current().Names())

	require.NoError(t, os.Remove(file))
	err = provider.Reload(context.Background())
	require.Error(t, err)
	require.False(t, ValidationError(err))
	require.Equal(t, []string{"a", "b"}, provider.Current().Names())
}

func TestProvider_Watch(t *testing.T) {
	file := writeTempConfig(t, providerConfig)
	loader := NewLoader(zap.NewNop())
	initial, err := loader.LoadCatalog(context.Background(), file)
	require.NoError(t, err)

	provider := NewProvider(initial, loader, file, zap.NewNop())
	provider.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	provider.Watch(ctx)

	// give the watcher a moment to register the directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("tools:\n  - name: only\n"), 0o600))

	require.Eventually(t, func() bool {
		names := provider.Current().Names()
		return len(names) == 1 && names[0] == "only"
	}, 3*time.Second, 20*time.Millisecond)
}
