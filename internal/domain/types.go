package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// ExecutionMode selects who performs a tool call.
type ExecutionMode string

const (
	// ModeInternal runs the tool handler in-process and returns synchronously.
	ModeInternal ExecutionMode = "internal"
	// ModeExternal parks the call until an external actor reports a result.
	ModeExternal ExecutionMode = "external"
)

// Valid reports whether the mode is one of the known modes.
func (m ExecutionMode) Valid() bool {
	return m == ModeInternal || m == ModeExternal
}

// ParseExecutionMode normalizes a configured mode string.
func ParseExecutionMode(value string) (ExecutionMode, error) {
	mode := ExecutionMode(strings.ToLower(strings.TrimSpace(value)))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q (want internal or external)", ErrInvalidMode, value)
	}
	return mode, nil
}

// DependencyKind controls how the dependencies inside one group combine.
type DependencyKind string

const (
	// DependencySequence requires every dependency, satisfied in declared order.
	DependencySequence DependencyKind = "sequence"
	// DependencyAny requires at least one dependency.
	DependencyAny DependencyKind = "any"
	// DependencyAll requires every dependency in any order.
	DependencyAll DependencyKind = "all"
)

// Valid reports whether the kind is known.
func (k DependencyKind) Valid() bool {
	switch k {
	case DependencySequence, DependencyAny, DependencyAll:
		return true
	default:
		return false
	}
}

// Requirement marks how strictly a dependency is enforced.
type Requirement string

const (
	// RequirementRequired is the only accepted requirement today.
	RequirementRequired Requirement = "required"
	// RequirementOptional is reserved and rejected by catalog validation.
	RequirementOptional Requirement = "optional"
)

type Dependency struct {
	ToolName    string      `json:"toolName"`
	Requirement Requirement `json:"requirement"`
}

type DependencyGroup struct {
	Kind         DependencyKind `json:"kind"`
	Dependencies []Dependency   `json:"dependencies"`
}

// ToolNames returns the dependency tool names in declaration order.
func (g DependencyGroup) ToolNames() []string {
	names := make([]string, 0, len(g.Dependencies))
	for _, dep := range g.Dependencies {
		names = append(names, dep.ToolName)
	}
	return names
}

// String renders the group as kind(a, b) or sequence(a -> b).
func (g DependencyGroup) String() string {
	sep := ", "
	if g.Kind == DependencySequence {
		sep = " -> "
	}
	return fmt.Sprintf("%s(%s)", g.Kind, strings.Join(g.ToolNames(), sep))
}

// ToolCatalogEntry is the declarative description of one tool.
type ToolCatalogEntry struct {
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Handler          string             `json:"handler,omitempty"`
	InputSchema      *jsonschema.Schema `json:"inputSchema,omitempty"`
	DependencyGroups []DependencyGroup  `json:"dependencyGroups,omitempty"`
}

// HandlerName returns the handler reference, defaulting to the tool name.
func (e ToolCatalogEntry) HandlerName() string {
	if name := strings.TrimSpace(e.Handler); name != "" {
		return name
	}
	return e.Name
}

// Unconstrained reports whether the tool declares no dependency groups.
func (e ToolCatalogEntry) Unconstrained() bool {
	return len(e.DependencyGroups) == 0
}

type ExecutionOutcome string

const (
	OutcomeSuccess ExecutionOutcome = "success"
	OutcomeFailure ExecutionOutcome = "failure"
)

// ExecutionRecord is one immutable entry of a thread's execution history.
type ExecutionRecord struct {
	ToolName    string           `json:"toolName"`
	ExecutionID string           `json:"executionId"`
	ThreadID    string           `json:"threadId"`
	SessionID   string           `json:"sessionId,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Outcome     ExecutionOutcome `json:"outcome"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// AvailabilityStatus is derived per tool from the catalog and a history.
type AvailabilityStatus struct {
	ToolName  string `json:"toolName"`
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

// SessionContext is supplied by the conversation driver with each batch.
type SessionContext struct {
	ThreadID  string `json:"threadId"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Thread returns the thread id, falling back to DefaultThreadID.
func (s SessionContext) Thread() string {
	return NormalizeThreadID(s.ThreadID)
}

// NormalizeThreadID maps an empty thread id to DefaultThreadID.
func NormalizeThreadID(threadID string) string {
	if trimmed := strings.TrimSpace(threadID); trimmed != "" {
		return trimmed
	}
	return DefaultThreadID
}

// ExecutionContext is handed to tool handlers for internal execution.
type ExecutionContext struct {
	ExecutionID string
	ThreadID    string
	UserID      string
	SessionID   string
	RequestID   string
}

// ToolHandler executes a tool in-process.
type ToolHandler func(ctx context.Context, args map[string]any, ec ExecutionContext) (any, error)

// HandlerRegistry resolves catalog handler references.
type HandlerRegistry interface {
	Lookup(name string) (ToolHandler, bool)
}

type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallExecuting CallStatus = "executing"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s CallStatus) Terminal() bool {
	return s == CallCompleted || s == CallFailed
}

// ToolCallInfo is a point-in-time snapshot of a tool call.
type ToolCallInfo struct {
	ID          string         `json:"id"`
	ToolName    string         `json:"toolName"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	ThreadID    string         `json:"threadId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Mode        ExecutionMode  `json:"mode,omitempty"`
	Status      CallStatus     `json:"status"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ToolCallResult is what a strategy hands back to the driver for one call.
type ToolCallResult struct {
	CallID      string        `json:"callId"`
	ToolName    string        `json:"toolName"`
	Mode        ExecutionMode `json:"mode"`
	Status      CallStatus    `json:"status"`
	Success     bool          `json:"success"`
	Result      any           `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Cached      bool          `json:"cached,omitempty"`
	CallbackURL string        `json:"callbackUrl,omitempty"`
}

// ExternalResult is the payload an external actor reports for a parked call.
// A non-empty Error settles the call as failed.
type ExternalResult struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CallRequest is one tool call requested by the model.
type CallRequest struct {
	ToolName    string         `json:"toolName"`
	Args        map[string]any `json:"args,omitempty"`
	Description string         `json:"description,omitempty"`
}

// BatchResult holds per-request results in request order plus the pending
// external calls of the thread after the batch finished.
type BatchResult struct {
	Results []ToolCallResult `json:"results"`
	Pending []ToolCallInfo   `json:"pending"`
}

// SessionInfo is a read-only snapshot of a registered thread.
type SessionInfo struct {
	ThreadID   string    `json:"threadId"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
	Records    int       `json:"records"`
}
