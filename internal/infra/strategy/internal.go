package strategy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/resultcache"
	"toolgate/internal/infra/telemetry"
)

type InternalOptions struct {
	Handlers    domain.HandlerRegistry
	EnableCache bool
	CacheTTL    time.Duration
	MaxRetries  int
	Cache       resultcache.Store
	Metrics     domain.Metrics
	Logger      *zap.Logger
}

// Internal runs handlers in-process and always returns a terminal result.
type Internal struct {
	handlers    domain.HandlerRegistry
	cache       resultcache.Store
	cacheTTL    time.Duration
	maxAttempts int
	metrics     domain.Metrics
	logger      *zap.Logger
}

func NewInternal(opts InternalOptions) (*Internal, error) {
	if opts.Handlers == nil {
		return nil, domain.ConfigError("strategy.NewInternal", "", domain.ErrMissingExecutor)
	}
	if opts.MaxRetries < 0 {
		return nil, domain.ConfigError("strategy.NewInternal", "maxRetries must be >= 0", domain.ErrInvalidConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Internal{
		handlers:    opts.Handlers,
		maxAttempts: max(opts.MaxRetries, 1),
		metrics:     opts.Metrics,
		logger:      logger.Named("strategy.internal"),
	}
	if opts.EnableCache {
		if opts.CacheTTL <= 0 {
			return nil, domain.ConfigError("strategy.NewInternal", "cacheTtl must be > 0 when the cache is enabled", domain.ErrInvalidConfig)
		}
		s.cache = opts.Cache
		if s.cache == nil {
			s.cache = resultcache.NewMemoryStore()
		}
		s.cacheTTL = opts.CacheTTL
	}
	return s, nil
}

// Execute invokes the handler up to maxRetries times (at least once).
func (s *Internal) Execute(ctx context.Context, call *domain.ToolCall, entry domain.ToolCatalogEntry, ec domain.ExecutionContext, settle SettleFunc) domain.ToolCallResult {
	call.MarkExecuting()

	handler, ok := s.handlers.Lookup(entry.HandlerName())
	if !ok {
		return failNow(call, fmt.Sprintf("no handler registered for tool %s", entry.Name), settle)
	}

	cacheKey := s.cacheKey(call)
	if cached, hit := s.lookup(ctx, call.ToolName(), cacheKey); hit {
		if call.Complete(cached) {
			notify(settle, call, map[string]any{"cached": true})
		}
		result := call.Result()
		result.Cached = true
		return result
	}

	var (
		output   any
		lastErr  error
		attempts int
	)
	for attempts < s.maxAttempts {
		if attempts > 0 && ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		attempts++
		output, lastErr = invoke(ctx, handler, call.Args(), ec)
		if lastErr == nil {
			break
		}
		s.logger.Debug("handler attempt failed",
			telemetry.ToolField(call.ToolName()),
			telemetry.CallIDField(call.ID()),
			zap.Int("attempt", attempts),
			zap.Error(lastErr),
		)
	}

	metadata := map[string]any{"attempts": attempts}
	if lastErr != nil {
		if call.Fail(lastErr.Error()) {
			notify(settle, call, metadata)
		}
		return call.Result()
	}

	if call.Complete(output) {
		notify(settle, call, metadata)
	}
	s.store(ctx, call.ToolName(), cacheKey, output)
	return call.Result()
}

func (s *Internal) cacheKey(call *domain.ToolCall) string {
	if s.cache == nil {
		return ""
	}
	key, err := resultcache.Key(call.ToolName(), call.Args())
	if err != nil {
		s.logger.Debug("result cache key unavailable", telemetry.ToolField(call.ToolName()), zap.Error(err))
		return ""
	}
	return key
}

func (s *Internal) lookup(ctx context.Context, tool, key string) (any, bool) {
	if key == "" {
		return nil, false
	}
	value, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("result cache read failed", telemetry.ToolField(tool), zap.Error(err))
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.ObserveCacheLookup(tool, ok)
	}
	return value, ok
}

func (s *Internal) store(ctx context.Context, tool, key string, value any) {
	if key == "" {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("result cache write failed", telemetry.ToolField(tool), zap.Error(err))
	}
}

// invoke converts handler panics into errors.
func invoke(ctx context.Context, handler domain.ToolHandler, args map[string]any, ec domain.ExecutionContext) (out any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = nil
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler(ctx, args, ec)
}
