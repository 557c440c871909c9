package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/dependency"
	"toolgate/internal/infra/telemetry"
)

type App struct {
	logger *zap.Logger
}

type ServeConfig struct {
	ConfigPath    string
	Observability *ObservabilityOptions
	Build         BuildOptions
}

type ValidateConfig struct {
	ConfigPath string
}

type ReportConfig struct {
	ConfigPath string
	ThreadID   string
	Options    dependency.ReportOptions
	Out        io.Writer
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		logger: logger.Named("app"),
	}
}

// Serve runs the admin API and the observability listener until ctx is done.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	conf, err := a.load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}

	opts := cfg.Build
	opts.ConfigPath = cfg.ConfigPath
	if opts.Logger == nil {
		opts.Logger = a.logger
	}
	rt, err := Build(ctx, conf, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			a.logger.Warn("runtime close failed", zap.Error(err))
		}
	}()

	a.logger.Info("toolgate starting",
		zap.String("version", Version),
		zap.String("config", cfg.ConfigPath),
		telemetry.ModeField(string(rt.Manager.Mode())),
		zap.Int("tools", len(conf.Tools)),
		zap.Bool("routing", rt.Router.Enabled()),
		zap.String("routingDefaultMode", string(rt.Router.DefaultMode())),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt.WatchCatalog(ctx)

	metricsEnabled, healthzEnabled := resolveObservabilityDefaults(cfg.Observability)
	errs := make(chan error, 2)
	go func() {
		errs <- telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
			Addr:          conf.Observability.ListenAddress,
			EnableMetrics: metricsEnabled,
			EnableHealthz: healthzEnabled,
			Health:        rt.Health,
			Registry:      rt.Registry,
		}, a.logger)
	}()
	go func() {
		errs <- rt.Admin.Serve(ctx, conf.Admin.ListenAddress)
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	return firstErr
}

// ValidateConfig loads the configuration and builds the engine without
// touching persistent stores.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) error {
	conf, err := a.load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	rt, err := Build(ctx, conf, BuildOptions{ConfigPath: cfg.ConfigPath, Ephemeral: true, Logger: a.logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	a.logger.Info("configuration validated",
		zap.String("config", cfg.ConfigPath),
		zap.Int("tools", len(conf.Tools)),
		telemetry.ModeField(string(conf.Execution.Mode)),
		zap.Strings("unresolvedHandlers", rt.Manager.UnresolvedHandlers()),
	)
	return nil
}

// Report prints the availability report of one thread using the configured
// history backend.
func (a *App) Report(ctx context.Context, cfg ReportConfig) error {
	conf, err := a.load(ctx, cfg.ConfigPath)
	if err != nil {
		return err
	}
	conf.Execution.Internal.EnableCache = false
	rt, err := Build(ctx, conf, BuildOptions{ConfigPath: cfg.ConfigPath, Logger: a.logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.Manager.Report(ctx, domain.NormalizeThreadID(cfg.ThreadID), cfg.Options)
	if err != nil {
		return err
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprint(out, report)
	return err
}

func (a *App) load(ctx context.Context, path string) (domain.Config, error) {
	return catalog.NewLoader(a.logger).Load(ctx, path)
}
