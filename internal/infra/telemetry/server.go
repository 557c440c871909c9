package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// HealthReport is served on /healthz.
type HealthReport struct {
	Status       string `json:"status"`
	Mode         string `json:"mode,omitempty"`
	Tools        int    `json:"tools"`
	PendingCalls int    `json:"pendingCalls"`
}

// HealthFunc reports the current engine health. A status other than "ok"
// turns /healthz into a 503.
type HealthFunc func() HealthReport

type HTTPServerOptions struct {
	Addr          string
	EnableMetrics bool
	EnableHealthz bool
	Health        HealthFunc
	Registry      prometheus.Gatherer
}

// StartHTTPServer serves /metrics and /healthz until ctx is done. It returns
// at once when both are disabled.
func StartHTTPServer(ctx context.Context, opts HTTPServerOptions, logger *zap.Logger) error {
	if !opts.EnableMetrics && !opts.EnableHealthz {
		return nil
	}
	addr := opts.Addr
	if addr == "" {
		addr = "0.0.0.0:9090"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("observability server listening",
		zap.String("addr", addr),
		zap.Bool("metrics", opts.EnableMetrics),
		zap.Bool("healthz", opts.EnableHealthz),
	)
	server := &http.Server{
		Addr:              addr,
		Handler:           observabilityMux(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ServeUntilDone(ctx, server, "observability server", logger)
}

func observabilityMux(opts HTTPServerOptions) *http.ServeMux {
	mux := http.NewServeMux()
	if opts.EnableMetrics {
		gatherer := opts.Registry
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	if opts.EnableHealthz {
		mux.Handle("/healthz", healthHandler(opts.Health))
	}
	return mux
}

// ServeUntilDone runs server until ctx is done and then shuts it down
// gracefully. A listen failure is returned as soon as it happens.
func ServeUntilDone(ctx context.Context, server *http.Server, name string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("%s failed to start: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(name+" shutdown error", zap.Error(err))
		return err
	}
	logger.Info(name + " stopped")
	return nil
}

func healthHandler(health HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := HealthReport{Status: "ok"}
		if health != nil {
			report = health()
		}
		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	})
}
