// Package config provides configuration management for lmsbridge.
//
// Config file locations (priority order):
//  1. $LMSBRIDGE_CONFIG
//  2. ./lmsbridge.yaml
//  3. $XDG_CONFIG_HOME/lmsbridge/config.yaml
//  4. ~/.config/lmsbridge/config.yaml
//  5. /etc/lmsbridge/config.yaml
//
// LRS credentials may be left out of the file and supplied through
// $LMSBRIDGE_XAPI_AUTH and $LMSBRIDGE_XAPI_SECRET instead.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lmsbridge/internal/adapter"
	"lmsbridge/internal/discovery"
	"lmsbridge/internal/domain"
	"lmsbridge/internal/service"
)

const (
	// EnvXAPIAuth overrides xapi.auth
	EnvXAPIAuth = "LMSBRIDGE_XAPI_AUTH"
	// EnvXAPISecret overrides xapi.secret
	EnvXAPISecret = "LMSBRIDGE_XAPI_SECRET"

	defaultTimeout           = 8 * time.Second
	defaultNavigationTimeout = 30 * time.Second
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnv()
		return cfg, "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path. Keys missing from the
// file keep their default values.
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	req := domain.DefaultRequest()
	opts := service.DefaultCompletionOptions()
	return &Config{
		Version: 1,
		Discovery: DiscoveryConfig{
			MaxDepth:     discovery.DefaultMaxDepth,
			FollowOpener: true,
		},
		Completion: CompletionConfig{
			Status:        string(req.Status),
			Score:         req.Score,
			MinScore:      req.MinScore,
			MaxScore:      req.MaxScore,
			Fallback:      opts.Fallback,
			StopOnSuccess: opts.StopOnSuccess,
			Verify:        opts.Verify,
		},
		Adapters: DefaultAdapters(),
		Network:  NetworkConfig{Timeout: Duration(defaultTimeout)},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: Duration(defaultNavigationTimeout),
		},
		Database: DatabaseConfig{Path: "./lmsbridge.db"},
		Server:   ServerConfig{Addr: ":3000"},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Discovery.MaxDepth <= 0 {
		c.Discovery.MaxDepth = discovery.DefaultMaxDepth
	}
	if c.Completion.Status == "" {
		c.Completion.Status = string(domain.StatusCompleted)
	}
	if c.Network.Timeout <= 0 {
		c.Network.Timeout = Duration(defaultTimeout)
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = Duration(defaultNavigationTimeout)
	}
	if c.Database.Path == "" {
		c.Database.Path = "./lmsbridge.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvXAPIAuth); v != "" {
		c.XAPI.Auth = &v
	}
	if v := os.Getenv(EnvXAPISecret); v != "" {
		c.XAPI.Secret = &v
	}
}

// Validate rejects values no run could use
func (c *Config) Validate() error {
	if c.Completion.MaxScore < c.Completion.MinScore {
		return fmt.Errorf("completion: max_score %v is below min_score %v", c.Completion.MaxScore, c.Completion.MinScore)
	}
	if c.Discovery.MaxDepth > 64 {
		return fmt.Errorf("discovery: max_depth %d is unreasonably deep", c.Discovery.MaxDepth)
	}
	return nil
}

// Request returns the default completion request
func (c *Config) Request() domain.CompletionRequest {
	return domain.CompletionRequest{
		Status:                   domain.ParseStatus(c.Completion.Status),
		Score:                    c.Completion.Score,
		MinScore:                 c.Completion.MinScore,
		MaxScore:                 c.Completion.MaxScore,
		IncludeInteractionRecord: c.Completion.Interactions,
		TerminateSession:         c.Completion.Terminate,
	}
}

// CompletionOptions returns the default phase switches
func (c *Config) CompletionOptions() service.CompletionOptions {
	return service.CompletionOptions{
		Fallback:      c.Completion.Fallback,
		StopOnSuccess: c.Completion.StopOnSuccess,
		Verify:        c.Completion.Verify,
	}
}

// DiscoveryConfig returns the walk settings
func (c *Config) DiscoveryConfig() discovery.Config {
	return discovery.Config{
		MaxDepth:       c.Discovery.MaxDepth,
		FollowOpener:   c.Discovery.FollowOpener,
		ExtraScorm12:   c.Discovery.ExtraNames.Scorm12,
		ExtraScorm2004: c.Discovery.ExtraNames.Scorm2004,
		ExtraXAPI:      c.Discovery.ExtraNames.XAPI,
		ExtraCustom:    c.Discovery.ExtraNames.Custom,
	}
}

// XAPIConfig returns the LRS settings for the xAPI adapter
func (c *Config) XAPIConfig() adapter.XAPIConfig {
	return adapter.XAPIConfig{
		Endpoint:     c.XAPI.Endpoint,
		Auth:         deref(c.XAPI.Auth),
		Key:          c.XAPI.Key,
		Secret:       deref(c.XAPI.Secret),
		Actor:        c.XAPI.Actor,
		ActivityID:   c.XAPI.ActivityID,
		ActivityName: c.XAPI.ActivityName,
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Completion: %s (score %v/%v..%v), fallback=%v verify=%v\n",
		c.Completion.Status, c.Completion.Score, c.Completion.MinScore, c.Completion.MaxScore,
		c.Completion.Fallback, c.Completion.Verify)
	summary += fmt.Sprintf("Discovery depth: %d, network timeout: %s\n",
		c.Discovery.MaxDepth, c.Network.Timeout.Duration())
	enabled := c.Adapters.Enabled()
	summary += fmt.Sprintf("Enabled adapters (%d):", len(enabled))
	for _, kind := range enabled {
		summary += fmt.Sprintf(" %s", kind)
	}
	return summary
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
