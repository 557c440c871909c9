// Package resultcache stores successful internal tool results by tool name
// and canonical arguments.
package resultcache

import (
	"context"
	"fmt"
	"time"

	"toolgate/internal/infra/hashutil"
)

// Store is a TTL cache of tool results.
type Store interface {
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// Key builds the cache key for a tool call. Equal argument maps produce
// equal keys regardless of insertion order.
func Key(tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	digest, err := hashutil.JSONDigest(args)
	if err != nil {
		return "", fmt.Errorf("encode cache key args: %w", err)
	}
	return tool + ":" + digest, nil
}
