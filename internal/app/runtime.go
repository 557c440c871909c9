package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/adminapi"
	"toolgate/internal/infra/calls"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/handlers"
	"toolgate/internal/infra/history"
	"toolgate/internal/infra/resultcache"
	"toolgate/internal/infra/router"
	"toolgate/internal/infra/session"
	"toolgate/internal/infra/telemetry"
)

// BuildOptions customizes how a Runtime is assembled.
type BuildOptions struct {
	ConfigPath string
	// Handlers defaults to the built-in registry.
	Handlers domain.HandlerRegistry
	// Decide replaces the rule based decision function when routing is enabled.
	Decide   router.DecisionFunc
	Registry *prometheus.Registry
	// Ephemeral keeps history and results in memory regardless of the
	// configured backends.
	Ephemeral bool
	Logger    *zap.Logger
}

// Runtime holds the wired engine. Close releases its stores.
type Runtime struct {
	Config   domain.Config
	Catalog  *catalog.Provider
	Manager  *calls.Manager
	Router   *router.DynamicRouter
	Admin    *adminapi.Server
	Registry *prometheus.Registry

	logger *zap.Logger
	cache  resultcache.Store
}

// Build wires catalog, history, cache, strategies, router and manager from
// cfg. Configuration problems are returned before anything starts.
func Build(ctx context.Context, cfg domain.Config, opts BuildOptions) (rt *Runtime, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := telemetry.NewPrometheusMetrics(registry)

	cat, err := catalog.New(cfg.Tools)
	if err != nil {
		return nil, err
	}
	provider := catalog.NewProvider(cat, catalog.NewLoader(logger), opts.ConfigPath, logger)

	store, err := openHistory(cfg.History, opts.Ephemeral)
	if err != nil {
		return nil, err
	}
	sessions := session.NewRegistry(store, logger)
	defer func() {
		if err != nil {
			_ = sessions.Close()
		}
	}()
	if bolt, ok := store.(*history.BoltStore); ok {
		logger.Info("history store opened", zap.String("path", bolt.Path()))
	}
	restored, err := sessions.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore sessions: %w", err)
	}
	if restored > 0 {
		logger.Info("sessions restored", zap.Int("threads", restored))
	}

	cache, err := openCache(ctx, cfg.Execution.Internal, opts.Ephemeral)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && cache != nil {
			_ = cache.Close()
		}
	}()

	decide := opts.Decide
	if decide == nil {
		decide = router.RuleDecisionFunc(cfg.Routing.Rules)
	}
	rtr, err := router.New(router.Options{
		Enabled:     cfg.Routing.Enabled,
		DefaultMode: cfg.Routing.DefaultMode,
		Decide:      decide,
		LogSize:     cfg.Routing.DecisionLogSize,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	handlerRegistry := opts.Handlers
	if handlerRegistry == nil {
		handlerRegistry = handlers.NewBuiltinRegistry()
	}
	if named, ok := handlerRegistry.(*handlers.Registry); ok {
		logger.Debug("tool handlers registered", zap.Strings("handlers", named.Names()))
	}

	manager, err := calls.NewManager(calls.Options{
		Catalog:   provider,
		Handlers:  handlerRegistry,
		Sessions:  sessions,
		Router:    rtr,
		Execution: cfg.Execution,
		Cache:     cache,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &Runtime{
		Config:   cfg,
		Catalog:  provider,
		Manager:  manager,
		Router:   rtr,
		Admin:    adminapi.New(manager, logger),
		Registry: registry,
		logger:   logger,
		cache:    cache,
	}, nil
}

func openHistory(cfg domain.HistoryConfig, ephemeral bool) (history.Store, error) {
	if ephemeral {
		return history.NewMemoryStore(), nil
	}
	switch cfg.Backend {
	case "", "memory":
		return history.NewMemoryStore(), nil
	case "bolt":
		store, err := history.OpenBoltStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		return store, nil
	default:
		return nil, domain.ConfigError("app.Build", fmt.Sprintf("unknown history backend %q", cfg.Backend), domain.ErrInvalidConfig)
	}
}

// openCache returns nil when the strategy should use its in-memory default.
func openCache(ctx context.Context, cfg domain.InternalConfig, ephemeral bool) (resultcache.Store, error) {
	if !cfg.EnableCache || ephemeral {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "", "memory":
		return nil, nil
	case "redis":
		store, err := resultcache.NewRedisStore(ctx, cfg.Cache.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect result cache: %w", err)
		}
		return store, nil
	default:
		return nil, domain.ConfigError("app.Build", fmt.Sprintf("unknown cache backend %q", cfg.Cache.Backend), domain.ErrInvalidConfig)
	}
}

// Health reports the engine state served on /healthz.
func (r *Runtime) Health() telemetry.HealthReport {
	return telemetry.HealthReport{
		Status:       "ok",
		Mode:         string(r.Manager.Mode()),
		Tools:        r.Catalog.Current().Len(),
		PendingCalls: r.Manager.PendingCount(),
	}
}

// WatchCatalog reloads the catalog on file changes until ctx is done and
// logs tools left without a handler after each reload.
func (r *Runtime) WatchCatalog(ctx context.Context) {
	updates := r.Catalog.Subscribe(ctx)
	r.Catalog.Watch(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-updates:
				if missing := r.Manager.UnresolvedHandlers(); len(missing) > 0 {
					r.logger.Warn("reloaded catalog references unregistered handlers",
						zap.Uint64("revision", update.Catalog.Revision()),
						zap.Strings("tools", missing),
					)
				}
			}
		}
	}()
}

func (r *Runtime) Close() error {
	var errs []error
	if err := r.Manager.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
