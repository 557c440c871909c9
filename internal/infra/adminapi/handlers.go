package adminapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"toolgate/internal/domain"
	"toolgate/internal/infra/dependency"
	"toolgate/internal/infra/telemetry"
)

type dispatchRequest struct {
	Calls     []domain.CallRequest `json:"calls" binding:"required"`
	UserID    string               `json:"userId"`
	SessionID string               `json:"sessionId"`
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) dispatchCalls(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	for i, call := range req.Calls {
		if call.ToolName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "calls[" + strconv.Itoa(i) + "].toolName is required"})
			return
		}
	}

	ctx := c.Request.Context()
	requestID, _ := telemetry.RequestIDFromContext(ctx)
	sc := domain.SessionContext{
		ThreadID:  c.Param("thread"),
		UserID:    req.UserID,
		SessionID: req.SessionID,
		RequestID: requestID,
	}
	c.JSON(http.StatusOK, s.engine.ExecuteBatch(ctx, req.Calls, sc))
}

// completeCall always answers 202: a completion for a call that already
// timed out or was cleared is not the external actor's error.
func (s *Server) completeCall(c *gin.Context) {
	var result domain.ExternalResult
	if err := c.ShouldBindJSON(&result); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	accepted := s.engine.CompleteExternal(c.Param("id"), result)
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func (s *Server) listPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.engine.ListPending(c.Query("thread"))})
}

func (s *Server) pendingCall(c *gin.Context) {
	info, ok := s.engine.PendingCall(c.Param("id"))
	if !ok {
		writeError(c, domain.ErrUnknownCall)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) clearPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.engine.ClearPending(c.Query("thread"))})
}

func (s *Server) getMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": s.engine.Mode()})
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	mode, err := domain.ParseExecutionMode(req.Mode)
	if err == nil {
		err = s.engine.SetMode(mode)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (s *Server) availability(c *gin.Context) {
	statuses, err := s.engine.Availability(c.Request.Context(), c.Param("thread"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": statuses})
}

func (s *Server) report(c *gin.Context) {
	opts := dependency.ReportOptions{
		IncludeUnavailable:  queryBool(c, "unavailable"),
		IncludeDependencies: queryBool(c, "dependencies"),
		IncludeStatistics:   queryBool(c, "statistics"),
	}
	report, err := s.engine.Report(c.Request.Context(), c.Param("thread"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.String(http.StatusOK, report)
}

func (s *Server) history(c *gin.Context) {
	records, err := s.engine.History(c.Request.Context(), c.Param("thread"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) sessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"threads": s.engine.Sessions()})
}

func (s *Server) decisions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"decisions": s.engine.Decisions()})
}

func queryBool(c *gin.Context, key string) bool {
	value, err := strconv.ParseBool(c.Query(key))
	return err == nil && value
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if code, ok := domain.CodeFrom(err); ok {
		switch code {
		case domain.CodeInvalidArgument:
			status = http.StatusBadRequest
		case domain.CodeNotFound:
			status = http.StatusNotFound
		case domain.CodeFailedPrecond:
			status = http.StatusConflict
		case domain.CodeDeadlineExceeded:
			status = http.StatusGatewayTimeout
		}
	}
	if errors.Is(err, domain.ErrStoreClosed) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
