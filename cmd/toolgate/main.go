package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"toolgate/internal/app"
	"toolgate/internal/infra/dependency"
)

type rootOptions struct {
	configPath string
	logLevel   string
	dev        bool
}

type reportOptions struct {
	threadID string
	report   dependency.ReportOptions
}

type serveOptions struct {
	metrics bool
	healthz bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{
		configPath: "toolgate.yaml",
	}

	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "Tool call dispatch engine with internal and external execution",
		Version:       fmt.Sprintf("%s (%s)", app.Version, app.Build),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", opts.configPath, "path to the toolgate config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.dev, "dev", false, "human readable development logging")

	root.AddCommand(
		newServeCmd(opts),
		newValidateCmd(opts),
		newReportCmd(opts),
	)
	return root
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the observability listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, func(application *app.App) error {
				ctx, cancel := signalAwareContext(cmd.Context())
				defer cancel()

				observability := &app.ObservabilityOptions{}
				if cmd.Flags().Changed("metrics") {
					observability.MetricsEnabled = &opts.metrics
				}
				if cmd.Flags().Changed("healthz") {
					observability.HealthzEnabled = &opts.healthz
				}
				return application.Serve(ctx, app.ServeConfig{
					ConfigPath:    root.configPath,
					Observability: observability,
				})
			})
		},
	}
	cmd.Flags().BoolVar(&opts.metrics, "metrics", true, "serve /metrics on the observability listener")
	cmd.Flags().BoolVar(&opts.healthz, "healthz", true, "serve /healthz on the observability listener")
	return cmd
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and tool catalog without serving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, func(application *app.App) error {
				return application.ValidateConfig(cmd.Context(), app.ValidateConfig{
					ConfigPath: root.configPath,
				})
			})
		},
	}
}

func newReportCmd(root *rootOptions) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the tool availability report of a thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(root, func(application *app.App) error {
				return application.Report(cmd.Context(), app.ReportConfig{
					ConfigPath: root.configPath,
					ThreadID:   opts.threadID,
					Options:    opts.report,
					Out:        cmd.OutOrStdout(),
				})
			})
		},
	}
	addReportFlags(cmd.Flags(), opts)
	return cmd
}

func addReportFlags(flags *pflag.FlagSet, opts *reportOptions) {
	flags.StringVar(&opts.threadID, "thread", "", "thread id (defaults to the default thread)")
	flags.BoolVar(&opts.report.IncludeUnavailable, "unavailable", false, "also list unavailable tools with reasons")
	flags.BoolVar(&opts.report.IncludeDependencies, "dependencies", false, "render dependency declarations")
	flags.BoolVar(&opts.report.IncludeStatistics, "statistics", false, "append availability counts")
}

func withApp(opts *rootOptions, run func(*app.App) error) error {
	logging, err := app.NewLogging(app.LoggingConfig{
		Development: opts.dev,
		Level:       opts.logLevel,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logging.Logger.Sync() }()
	return run(app.New(logging.Logger))
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
