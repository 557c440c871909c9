package domain

import "time"

// Config is the normalized configuration consumed at construction time.
type Config struct {
	Execution     ExecutionConfig
	Routing       RoutingConfig
	History       HistoryConfig
	Admin         AdminConfig
	Observability ObservabilityConfig
	Tools         []ToolCatalogEntry
}

type ExecutionConfig struct {
	Mode                ExecutionMode
	EnforceAvailability bool
	Internal            InternalConfig
	External            ExternalConfig
}

type InternalConfig struct {
	EnableCache bool
	CacheTTL    time.Duration
	MaxRetries  int
	Cache       CacheConfig
}

type CacheConfig struct {
	Backend string
	Redis   RedisConfig
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ExternalConfig.CallbackURL is passed through untouched to the external side.
type ExternalConfig struct {
	WaitForResult bool
	Timeout       time.Duration
	CallbackURL   string
}

type RoutingConfig struct {
	Enabled         bool
	DefaultMode     ExecutionMode
	Rules           []RoutingRule
	DecisionLogSize int
}

// RoutingRule maps a tool name glob (path.Match syntax) to a mode.
type RoutingRule struct {
	Tool string
	Mode ExecutionMode
}

type HistoryConfig struct {
	Backend string
	Path    string
}

type AdminConfig struct {
	ListenAddress string
}

type ObservabilityConfig struct {
	ListenAddress string
}
