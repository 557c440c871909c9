// Package adminapi exposes the dispatch engine to conversation drivers,
// external actors and operators over HTTP.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/dependency"
	"toolgate/internal/infra/router"
	"toolgate/internal/infra/telemetry"
)

// Engine is the part of the call manager served over HTTP.
type Engine interface {
	ExecuteBatch(ctx context.Context, reqs []domain.CallRequest, sc domain.SessionContext) domain.BatchResult
	CompleteExternal(id string, result domain.ExternalResult) bool
	ListPending(threadID string) []domain.ToolCallInfo
	PendingCall(id string) (domain.ToolCallInfo, bool)
	ClearPending(threadID string) int
	Mode() domain.ExecutionMode
	SetMode(mode domain.ExecutionMode) error
	Availability(ctx context.Context, threadID string) ([]domain.AvailabilityStatus, error)
	Report(ctx context.Context, threadID string, opts dependency.ReportOptions) (string, error)
	History(ctx context.Context, threadID string) ([]domain.ExecutionRecord, error)
	Sessions() []domain.SessionInfo
	Decisions() []router.Decision
}

type Server struct {
	engine  Engine
	logger  *zap.Logger
	handler *gin.Engine
}

func New(engine Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		logger: logger.Named("adminapi"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestMeta(), s.accessLog())

	v1 := r.Group("/v1")
	{
		v1.POST("/threads/:thread/calls", s.dispatchCalls)
		v1.GET("/threads/:thread/availability", s.availability)
		v1.GET("/threads/:thread/report", s.report)
		v1.GET("/threads/:thread/history", s.history)
		v1.GET("/threads", s.sessions)

		v1.POST("/calls/:id/complete", s.completeCall)
		v1.GET("/calls/pending", s.listPending)
		v1.DELETE("/calls/pending", s.clearPending)
		v1.GET("/calls/:id", s.pendingCall)

		v1.GET("/mode", s.getMode)
		v1.PUT("/mode", s.setMode)
		v1.GET("/routing/decisions", s.decisions)
	}
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = domain.DefaultAdminListenAddress
	}
	s.logger.Info("admin api listening", zap.String("addr", addr))
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return telemetry.ServeUntilDone(ctx, server, "admin api", s.logger)
}

func (s *Server) requestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, meta := telemetry.EnsureRequestMeta(c.Request.Context(), c.GetHeader(telemetry.RequestIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(telemetry.RequestIDHeader, meta.RequestID)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger := telemetry.LoggerWithRequest(c.Request.Context(), s.logger)
		logger.Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			telemetry.DurationField(time.Since(start)),
		)
	}
}
