package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"toolgate/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

func newSettingsViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("execution.mode", string(domain.DefaultExecutionMode))
	v.SetDefault("execution.internal.maxRetries", domain.DefaultMaxRetries)
	v.SetDefault("execution.internal.cacheTtl", domain.DefaultCacheTTL)
	v.SetDefault("execution.internal.cache.backend", domain.DefaultCacheBackend)
	v.SetDefault("execution.internal.cache.redis.keyPrefix", domain.DefaultRedisKeyPrefix)
	v.SetDefault("execution.external.waitForResult", domain.DefaultExternalWaitForResult)
	v.SetDefault("execution.external.timeout", domain.DefaultExternalTimeout)
	v.SetDefault("routing.defaultMode", string(domain.DefaultExecutionMode))
	v.SetDefault("routing.decisionLogSize", domain.DefaultDecisionLogSize)
	v.SetDefault("history.backend", domain.DefaultHistoryBackend)
	v.SetDefault("history.path", domain.DefaultHistoryPath)
	v.SetDefault("admin.listenAddress", domain.DefaultAdminListenAddress)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
}

type rawSettings struct {
	Execution     rawExecutionConfig `mapstructure:"execution"`
	Routing       rawRoutingConfig   `mapstructure:"routing"`
	History       rawHistoryConfig   `mapstructure:"history"`
	Admin         rawListenConfig    `mapstructure:"admin"`
	Observability rawListenConfig    `mapstructure:"observability"`
}

type rawExecutionConfig struct {
	Mode                string            `mapstructure:"mode"`
	EnforceAvailability bool              `mapstructure:"enforceAvailability"`
	Internal            rawInternalConfig `mapstructure:"internal"`
	External            rawExternalConfig `mapstructure:"external"`
}

type rawInternalConfig struct {
	EnableCache bool           `mapstructure:"enableCache"`
	CacheTTL    time.Duration  `mapstructure:"cacheTtl"`
	MaxRetries  int            `mapstructure:"maxRetries"`
	Cache       rawCacheConfig `mapstructure:"cache"`
}

type rawCacheConfig struct {
	Backend string         `mapstructure:"backend"`
	Redis   rawRedisConfig `mapstructure:"redis"`
}

type rawRedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"keyPrefix"`
}

type rawExternalConfig struct {
	WaitForResult bool          `mapstructure:"waitForResult"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CallbackURL   string        `mapstructure:"callbackUrl"`
}

type rawRoutingConfig struct {
	Enabled         bool             `mapstructure:"enabled"`
	DefaultMode     string           `mapstructure:"defaultMode"`
	DecisionLogSize int              `mapstructure:"decisionLogSize"`
	Rules           []rawRoutingRule `mapstructure:"rules"`
}

type rawRoutingRule struct {
	Tool string `mapstructure:"tool"`
	Mode string `mapstructure:"mode"`
}

type rawHistoryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type rawListenConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Tools are decoded with yaml directly: viper lower-cases nested map keys,
// which would corrupt input schemas.
type rawToolsDocument struct {
	Tools []rawTool `yaml:"tools"`
}

type rawTool struct {
	Name         string               `yaml:"name"`
	Description  string               `yaml:"description"`
	Handler      string               `yaml:"handler"`
	InputSchema  map[string]any       `yaml:"inputSchema"`
	Dependencies []rawDependencyGroup `yaml:"dependencies"`
}

type rawDependencyGroup struct {
	Kind         string          `yaml:"kind"`
	Tools        []string        `yaml:"tools"`
	Dependencies []rawDependency `yaml:"dependencies"`
}

type rawDependency struct {
	Tool        string `yaml:"tool"`
	Requirement string `yaml:"requirement"`
}

// Load reads, expands and validates a configuration file.
func (l *Loader) Load(ctx context.Context, path string) (domain.Config, error) {
	if path == "" {
		return domain.Config{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := l.Parse(ctx, data)
	if err != nil {
		return domain.Config{}, err
	}
	l.logger.Debug("configuration loaded", zap.String("path", path), zap.Int("tools", len(cfg.Tools)))
	return cfg, nil
}

// LoadCatalog loads only the tool catalog from a configuration file.
func (l *Loader) LoadCatalog(ctx context.Context, path string) (*Catalog, error) {
	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return New(cfg.Tools)
}

// Parse decodes configuration bytes.
func (l *Loader) Parse(ctx context.Context, data []byte) (domain.Config, error) {
	expanded, missing, err := expandConfigEnv(data)
	if err != nil {
		return domain.Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config", zap.Strings("missing", missing))
	}

	v := newSettingsViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}
	var settings rawSettings
	if err := v.Unmarshal(&settings); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}

	var doc rawToolsDocument
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return domain.Config{}, fmt.Errorf("decode tools: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	var validationErrors []string
	cfg, settingsErrs := normalizeSettings(settings)
	validationErrors = append(validationErrors, settingsErrs...)

	tools, toolErrs := normalizeTools(doc.Tools)
	validationErrors = append(validationErrors, toolErrs...)
	if len(toolErrs) == 0 {
		validationErrors = append(validationErrors, Validate(tools)...)
	}

	if len(validationErrors) > 0 {
		return domain.Config{}, domain.E(domain.CodeInvalidArgument, "catalog.Parse", strings.Join(validationErrors, "; "), domain.ErrInvalidConfig)
	}
	cfg.Tools = tools
	return cfg, nil
}

func normalizeSettings(raw rawSettings) (domain.Config, []string) {
	var errs []string

	mode, err := domain.ParseExecutionMode(raw.Execution.Mode)
	if err != nil {
		errs = append(errs, "execution.mode must be internal or external")
	}

	internal := raw.Execution.Internal
	if internal.MaxRetries < 0 {
		errs = append(errs, "execution.internal.maxRetries must be >= 0")
	}
	if internal.EnableCache && internal.CacheTTL <= 0 {
		errs = append(errs, "execution.internal.cacheTtl must be > 0 when enableCache is true")
	}
	backend := strings.ToLower(strings.TrimSpace(internal.Cache.Backend))
	if backend == "" {
		backend = domain.DefaultCacheBackend
	}
	switch backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(internal.Cache.Redis.Addr) == "" {
			errs = append(errs, "execution.internal.cache.redis.addr is required for redis backend")
		}
	default:
		errs = append(errs, "execution.internal.cache.backend must be memory or redis")
	}

	external := raw.Execution.External
	if external.WaitForResult && external.Timeout <= 0 {
		errs = append(errs, "execution.external.timeout must be > 0 when waitForResult is true")
	}

	defaultMode, err := domain.ParseExecutionMode(raw.Routing.DefaultMode)
	if err != nil {
		errs = append(errs, "routing.defaultMode must be internal or external")
	}
	rules := make([]domain.RoutingRule, 0, len(raw.Routing.Rules))
	for i, rule := range raw.Routing.Rules {
		pattern := strings.TrimSpace(rule.Tool)
		if pattern == "" {
			errs = append(errs, fmt.Sprintf("routing.rules[%d]: tool is required", i))
			continue
		}
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Sprintf("routing.rules[%d]: invalid tool pattern %q", i, pattern))
			continue
		}
		ruleMode, err := domain.ParseExecutionMode(rule.Mode)
		if err != nil {
			errs = append(errs, fmt.Sprintf("routing.rules[%d]: mode must be internal or external", i))
			continue
		}
		rules = append(rules, domain.RoutingRule{Tool: pattern, Mode: ruleMode})
	}
	logSize := raw.Routing.DecisionLogSize
	if logSize < 0 {
		errs = append(errs, "routing.decisionLogSize must be >= 0")
	}

	historyBackend := strings.ToLower(strings.TrimSpace(raw.History.Backend))
	if historyBackend == "" {
		historyBackend = domain.DefaultHistoryBackend
	}
	switch historyBackend {
	case "memory":
	case "bolt":
		if strings.TrimSpace(raw.History.Path) == "" {
			errs = append(errs, "history.path is required for bolt backend")
		}
	default:
		errs = append(errs, "history.backend must be memory or bolt")
	}

	adminAddr := strings.TrimSpace(raw.Admin.ListenAddress)
	if adminAddr == "" {
		adminAddr = domain.DefaultAdminListenAddress
	}
	observabilityAddr := strings.TrimSpace(raw.Observability.ListenAddress)
	if observabilityAddr == "" {
		observabilityAddr = domain.DefaultObservabilityListenAddress
	}

	return domain.Config{
		Execution: domain.ExecutionConfig{
			Mode:                mode,
			EnforceAvailability: raw.Execution.EnforceAvailability,
			Internal: domain.InternalConfig{
				EnableCache: internal.EnableCache,
				CacheTTL:    internal.CacheTTL,
				MaxRetries:  internal.MaxRetries,
				Cache: domain.CacheConfig{
					Backend: backend,
					Redis: domain.RedisConfig{
						Addr:      strings.TrimSpace(internal.Cache.Redis.Addr),
						Password:  internal.Cache.Redis.Password,
						DB:        internal.Cache.Redis.DB,
						KeyPrefix: internal.Cache.Redis.KeyPrefix,
					},
				},
			},
			External: domain.ExternalConfig{
				WaitForResult: external.WaitForResult,
				Timeout:       external.Timeout,
				CallbackURL:   strings.TrimSpace(external.CallbackURL),
			},
		},
		Routing: domain.RoutingConfig{
			Enabled:         raw.Routing.Enabled,
			DefaultMode:     defaultMode,
			Rules:           rules,
			DecisionLogSize: logSize,
		},
		History: domain.HistoryConfig{
			Backend: historyBackend,
			Path:    strings.TrimSpace(raw.History.Path),
		},
		Admin:         domain.AdminConfig{ListenAddress: adminAddr},
		Observability: domain.ObservabilityConfig{ListenAddress: observabilityAddr},
	}, errs
}

func normalizeTools(raw []rawTool) ([]domain.ToolCatalogEntry, []string) {
	var errs []string
	entries := make([]domain.ToolCatalogEntry, 0, len(raw))
	for i, tool := range raw {
		entry := domain.ToolCatalogEntry{
			Name:        strings.TrimSpace(tool.Name),
			Description: strings.TrimSpace(tool.Description),
			Handler:     strings.TrimSpace(tool.Handler),
		}
		if len(tool.InputSchema) > 0 {
			schema, err := decodeSchema(tool.InputSchema)
			if err != nil {
				errs = append(errs, fmt.Sprintf("tools[%d]: inputSchema: %v", i, err))
			}
			entry.InputSchema = schema
		}
		for g, group := range tool.Dependencies {
			normalized, groupErrs := normalizeGroup(group, fmt.Sprintf("tools[%d].dependencies[%d]", i, g))
			errs = append(errs, groupErrs...)
			entry.DependencyGroups = append(entry.DependencyGroups, normalized)
		}
		entries = append(entries, entry)
	}
	return entries, errs
}

func normalizeGroup(raw rawDependencyGroup, prefix string) (domain.DependencyGroup, []string) {
	var errs []string
	group := domain.DependencyGroup{
		Kind: domain.DependencyKind(strings.ToLower(strings.TrimSpace(raw.Kind))),
	}
	if len(raw.Tools) > 0 && len(raw.Dependencies) > 0 {
		errs = append(errs, fmt.Sprintf("%s: use either tools or dependencies, not both", prefix))
	}
	for _, name := range raw.Tools {
		group.Dependencies = append(group.Dependencies, domain.Dependency{
			ToolName:    strings.TrimSpace(name),
			Requirement: domain.RequirementRequired,
		})
	}
	for _, dep := range raw.Dependencies {
		requirement := domain.Requirement(strings.ToLower(strings.TrimSpace(dep.Requirement)))
		if requirement == "" {
			requirement = domain.RequirementRequired
		}
		group.Dependencies = append(group.Dependencies, domain.Dependency{
			ToolName:    strings.TrimSpace(dep.Tool),
			Requirement: requirement,
		})
	}
	return group, errs
}

func decodeSchema(raw map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}
