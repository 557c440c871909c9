// Package calls owns the lifecycle of tool calls: creation, routing, dispatch
// to an execution strategy, external completion and the execution history
// that feeds dependency resolution.
package calls

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"toolgate/internal/domain"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/dependency"
	"toolgate/internal/infra/resultcache"
	"toolgate/internal/infra/router"
	"toolgate/internal/infra/session"
	"toolgate/internal/infra/strategy"
	"toolgate/internal/infra/telemetry"
)

// CatalogSource yields the active catalog snapshot. Both *catalog.Catalog and
// *catalog.Provider satisfy it.
type CatalogSource interface {
	Current() *catalog.Catalog
}

type Options struct {
	Catalog   CatalogSource
	Handlers  domain.HandlerRegistry
	Sessions  *session.Registry
	Router    *router.DynamicRouter
	Execution domain.ExecutionConfig
	Cache     resultcache.Store
	Metrics   domain.Metrics
	Logger    *zap.Logger
}

// Manager implements the tool call manager.
type Manager struct {
	catalog    CatalogSource
	handlers   domain.HandlerRegistry
	sessions   *session.Registry
	router     *router.DynamicRouter
	dispatcher strategy.Dispatcher
	enforce    bool
	metrics    domain.Metrics
	logger     *zap.Logger
	now        func() time.Time

	seq    atomic.Uint64
	modeMu sync.RWMutex
	mode   domain.ExecutionMode
}

// NewManager validates the configuration for the selected mode and builds
// the strategies. Any configuration problem keeps the manager from starting.
func NewManager(opts Options) (*Manager, error) {
	const op = "calls.NewManager"
	if opts.Catalog == nil || opts.Catalog.Current() == nil {
		return nil, domain.ConfigError(op, "tool catalog is required", domain.ErrInvalidConfig)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}

	mode := opts.Execution.Mode
	if mode == "" {
		mode = domain.DefaultExecutionMode
	}
	if !mode.Valid() {
		return nil, domain.ConfigError(op, fmt.Sprintf("execution mode %q", mode), domain.ErrInvalidMode)
	}

	routed := opts.Router != nil && opts.Router.Enabled()
	if opts.Handlers == nil && (mode == domain.ModeInternal || routed) {
		return nil, domain.ConfigError(op, "", domain.ErrMissingExecutor)
	}

	m := &Manager{
		catalog:  opts.Catalog,
		handlers: opts.Handlers,
		sessions: opts.Sessions,
		router:   opts.Router,
		enforce:  opts.Execution.EnforceAvailability,
		metrics:  metrics,
		logger:   logger.Named("calls"),
		now:      time.Now,
		mode:     mode,
	}
	if m.sessions == nil {
		m.sessions = session.NewRegistry(nil, logger)
	}

	if opts.Handlers != nil {
		internal, err := strategy.NewInternal(strategy.InternalOptions{
			Handlers:    opts.Handlers,
			EnableCache: opts.Execution.Internal.EnableCache,
			CacheTTL:    opts.Execution.Internal.CacheTTL,
			MaxRetries:  opts.Execution.Internal.MaxRetries,
			Cache:       opts.Cache,
			Metrics:     metrics,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		m.dispatcher.Internal = internal
		m.warnUnresolved(opts.Handlers)
	}

	external, err := strategy.NewExternal(strategy.ExternalOptions{
		WaitForResult: opts.Execution.External.WaitForResult,
		Timeout:       opts.Execution.External.Timeout,
		CallbackURL:   opts.Execution.External.CallbackURL,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	m.dispatcher.External = external
	return m, nil
}

func (m *Manager) warnUnresolved(handlers domain.HandlerRegistry) {
	for _, entry := range unresolved(m.catalog.Current(), handlers) {
		m.logger.Warn("tool has no registered handler; internal dispatch will fail",
			telemetry.ToolField(entry.Name),
			zap.String("handler", entry.HandlerName()),
		)
	}
}

// UnresolvedHandlers lists the tools of the active catalog whose handler
// reference has no registered handler.
func (m *Manager) UnresolvedHandlers() []string {
	var names []string
	for _, entry := range unresolved(m.catalog.Current(), m.handlers) {
		names = append(names, entry.Name)
	}
	return names
}

func unresolved(cat *catalog.Catalog, handlers domain.HandlerRegistry) []domain.ToolCatalogEntry {
	var out []domain.ToolCatalogEntry
	for _, entry := range cat.Entries() {
		if handlers == nil {
			out = append(out, entry)
			continue
		}
		if _, ok := handlers.Lookup(entry.HandlerName()); !ok {
			out = append(out, entry)
		}
	}
	return out
}

// Catalog returns the active catalog snapshot.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog.Current()
}

// Mode returns the execution mode used for calls that are not routed.
func (m *Manager) Mode() domain.ExecutionMode {
	m.modeMu.RLock()
	defer m.modeMu.RUnlock()
	return m.mode
}

// SetMode switches the execution mode for subsequent dispatches. In-flight
// calls keep the mode they were bound to.
func (m *Manager) SetMode(mode domain.ExecutionMode) error {
	const op = "calls.SetMode"
	if !mode.Valid() {
		return domain.E(domain.CodeInvalidArgument, op, fmt.Sprintf("execution mode %q", mode), domain.ErrInvalidMode)
	}
	if mode == domain.ModeInternal && m.dispatcher.Internal == nil {
		return domain.ConfigError(op, "", domain.ErrMissingExecutor)
	}
	m.modeMu.Lock()
	prev := m.mode
	m.mode = mode
	m.modeMu.Unlock()
	if prev != mode {
		m.logger.Info("execution mode changed",
			zap.String("from", string(prev)),
			telemetry.ModeField(string(mode)),
		)
	}
	return nil
}

// CreateCall allocates a pending call with a fresh id.
func (m *Manager) CreateCall(toolName string, args map[string]any, description, threadID string) *domain.ToolCall {
	now := m.now()
	return domain.NewToolCall(domain.ToolCallInfo{
		ID:          m.newCallID(now),
		ToolName:    toolName,
		Args:        args,
		Description: description,
		Timestamp:   now,
		ThreadID:    domain.NormalizeThreadID(threadID),
	})
}

func (m *Manager) newCallID(now time.Time) string {
	return fmt.Sprintf("call-%d-%d", now.UnixNano(), m.seq.Add(1))
}

// Dispatch routes call and hands it to the selected strategy. Failures are
// reported on the result, never as an error.
func (m *Manager) Dispatch(ctx context.Context, call *domain.ToolCall, entry domain.ToolCatalogEntry, sc domain.SessionContext) domain.ToolCallResult {
	mode := m.Mode()
	if m.router != nil {
		mode, _ = m.router.Decide(ctx, call.ToolName(), call.Args(), sc, mode)
	}
	call.Bind(mode, sc.SessionID)

	ec := domain.ExecutionContext{
		ExecutionID: call.ID(),
		ThreadID:    call.ThreadID(),
		UserID:      sc.UserID,
		SessionID:   sc.SessionID,
		RequestID:   telemetry.ResolveRequestID(ctx, sc.RequestID),
	}

	start := m.now()
	result := m.dispatcher.Execute(ctx, mode, call, entry, ec, m.settle)
	m.observe(ctx, result, m.now().Sub(start))
	return result
}

// Execute creates and dispatches one requested call. Unknown tools, and
// tools with unmet dependencies when availability is enforced, fail without
// reaching a strategy.
func (m *Manager) Execute(ctx context.Context, req domain.CallRequest, sc domain.SessionContext) domain.ToolCallResult {
	call := m.CreateCall(req.ToolName, req.Args, req.Description, sc.Thread())

	entry, ok := m.catalog.Current().Lookup(req.ToolName)
	if !ok {
		return m.reject(ctx, call, fmt.Sprintf("%v: %s", domain.ErrToolNotFound, req.ToolName))
	}

	if m.enforce && !entry.Unconstrained() {
		history, err := m.sessions.History(ctx, call.ThreadID())
		if err != nil {
			return m.reject(ctx, call, fmt.Sprintf("load execution history: %v", err))
		}
		if status := dependency.Resolve(entry, history); !status.Available {
			return m.reject(ctx, call, fmt.Sprintf("tool %s is unavailable: %s", entry.Name, status.Reason))
		}
	}
	return m.Dispatch(ctx, call, entry, sc)
}

func (m *Manager) reject(ctx context.Context, call *domain.ToolCall, reason string) domain.ToolCallResult {
	call.Fail(reason)
	result := call.Result()
	m.observe(ctx, result, 0)
	return result
}

// ExecuteBatch dispatches every request on its own goroutine and joins them.
// Results keep request order; Pending lists the thread's outstanding
// external calls afterwards.
func (m *Manager) ExecuteBatch(ctx context.Context, reqs []domain.CallRequest, sc domain.SessionContext) domain.BatchResult {
	ctx, meta := telemetry.EnsureRequestMeta(ctx, sc.RequestID)
	sc.RequestID = meta.RequestID

	results := make([]domain.ToolCallResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.CallRequest) {
			defer wg.Done()
			results[i] = m.Execute(ctx, req, sc)
		}(i, req)
	}
	wg.Wait()

	return domain.BatchResult{
		Results: results,
		Pending: m.ListPending(sc.Thread()),
	}
}

// CompleteExternal settles a pending external call. Unknown ids (timed out,
// cleared, already completed) are logged and ignored.
func (m *Manager) CompleteExternal(id string, result domain.ExternalResult) bool {
	if m.dispatcher.OnExternalResult(id, result) {
		return true
	}
	m.logger.Info("ignoring completion for unknown call",
		telemetry.EventField(telemetry.EventUnknownCompletion),
		telemetry.CallIDField(id),
		zap.Error(domain.ErrUnknownCall),
	)
	m.metrics.ObserveUnknownCompletion()
	return false
}

// ListPending returns outstanding external calls; an empty threadID lists
// every thread.
func (m *Manager) ListPending(threadID string) []domain.ToolCallInfo {
	return m.dispatcher.External.ListPending(threadID)
}

// PendingCall returns a snapshot of one outstanding external call.
func (m *Manager) PendingCall(id string) (domain.ToolCallInfo, bool) {
	return m.dispatcher.External.Lookup(id)
}

// ClearPending discards pending external calls without settling them.
func (m *Manager) ClearPending(threadID string) int {
	removed := m.dispatcher.External.Clear(threadID)
	if removed > 0 {
		m.logger.Info("pending calls cleared",
			telemetry.ThreadIDField(threadID),
			zap.Int("count", removed),
		)
	}
	return removed
}

// Availability resolves every catalog entry against the thread's history.
func (m *Manager) Availability(ctx context.Context, threadID string) ([]domain.AvailabilityStatus, error) {
	history, err := m.sessions.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return dependency.ResolveAll(m.catalog.Current().Entries(), history), nil
}

// OfferableTools lists the tools currently available in the thread.
func (m *Manager) OfferableTools(ctx context.Context, threadID string) ([]string, error) {
	history, err := m.sessions.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return dependency.Available(m.catalog.Current().Entries(), history), nil
}

// Report renders the availability report for the thread.
func (m *Manager) Report(ctx context.Context, threadID string, opts dependency.ReportOptions) (string, error) {
	history, err := m.sessions.History(ctx, threadID)
	if err != nil {
		return "", err
	}
	return dependency.Report(m.catalog.Current().Entries(), history, opts), nil
}

func (m *Manager) History(ctx context.Context, threadID string) ([]domain.ExecutionRecord, error) {
	return m.sessions.History(ctx, threadID)
}

func (m *Manager) ClearHistory(ctx context.Context, threadID string) error {
	return m.sessions.Clear(ctx, threadID)
}

func (m *Manager) Sessions() []domain.SessionInfo {
	return m.sessions.Sessions()
}

// Decisions returns the router's decision log, oldest first.
func (m *Manager) Decisions() []router.Decision {
	if m.router == nil {
		return nil
	}
	return m.router.Decisions()
}

func (m *Manager) PendingCount() int {
	return m.dispatcher.External.PendingCount()
}

// Close tears down the session registry.
func (m *Manager) Close() error {
	return m.sessions.Close()
}

// settle appends the execution record of a call that just became terminal.
func (m *Manager) settle(call *domain.ToolCall, metadata map[string]any) {
	info := call.Snapshot()
	outcome := domain.OutcomeSuccess
	if info.Status == domain.CallFailed {
		outcome = domain.OutcomeFailure
	}
	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]any, 2)
	}
	meta["mode"] = string(info.Mode)
	if info.Error != "" {
		meta["error"] = info.Error
	}

	record := domain.ExecutionRecord{
		ToolName:    info.ToolName,
		ExecutionID: info.ID,
		ThreadID:    info.ThreadID,
		SessionID:   info.SessionID,
		Timestamp:   info.UpdatedAt,
		Outcome:     outcome,
		Metadata:    meta,
	}
	// completions can arrive long after the dispatching request is gone
	if err := m.sessions.Append(context.Background(), record); err != nil {
		m.logger.Error("append execution record failed",
			telemetry.ToolField(info.ToolName),
			telemetry.CallIDField(info.ID),
			telemetry.ThreadIDField(info.ThreadID),
			zap.Error(err),
		)
	}
}

func (m *Manager) observe(ctx context.Context, result domain.ToolCallResult, duration time.Duration) {
	m.metrics.ObserveDispatch(domain.DispatchMetric{
		Tool:     m.metricTool(result.ToolName),
		Mode:     result.Mode,
		Status:   result.Status,
		Cached:   result.Cached,
		Duration: duration,
	})

	logger := telemetry.LoggerWithRequest(ctx, m.logger)
	fields := []zap.Field{
		telemetry.ToolField(result.ToolName),
		telemetry.CallIDField(result.CallID),
		telemetry.ModeField(string(result.Mode)),
		telemetry.StatusField(string(result.Status)),
		telemetry.DurationField(duration),
	}
	if result.Status == domain.CallFailed {
		logger.Warn("tool call failed", append(fields,
			telemetry.EventField(telemetry.EventDispatchFailure),
			zap.String("error", result.Error),
		)...)
		return
	}
	logger.Debug("tool call dispatched", append(fields, telemetry.EventField(telemetry.EventDispatch))...)
}

// metricTool keeps the tool label bounded by the catalog; names supplied by
// callers for tools that do not exist share one series.
func (m *Manager) metricTool(name string) string {
	if _, ok := m.catalog.Current().Lookup(name); ok {
		return name
	}
	return domain.UnknownToolLabel
}
