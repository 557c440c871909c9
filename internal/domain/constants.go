package domain

import "time"

const (
	DefaultThreadID                   = "default"
	DefaultExecutionMode              = ModeInternal
	DefaultMaxRetries                 = 3
	DefaultCacheTTL                   = 5 * time.Minute
	DefaultCacheBackend               = "memory"
	DefaultRedisKeyPrefix             = "toolgate:result:"
	DefaultExternalTimeout            = 30 * time.Second
	DefaultExternalWaitForResult      = true
	DefaultDecisionLogSize            = 256
	DefaultHistoryBackend             = "memory"
	DefaultHistoryPath                = "toolgate.db"
	DefaultAdminListenAddress         = "127.0.0.1:8090"
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
)

const (
	// ExternalTimeoutMessage is the fixed failure reason for a timed-out wait.
	ExternalTimeoutMessage = "external execution timed out"
	// UnknownToolLabel replaces tool names outside the catalog in metric labels.
	UnknownToolLabel = "unknown"
)
