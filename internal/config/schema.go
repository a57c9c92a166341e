package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Completion CompletionConfig `yaml:"completion"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
	Network    NetworkConfig    `yaml:"network"`
	XAPI       XAPIConfig       `yaml:"xapi"`
	Browser    BrowserConfig    `yaml:"browser"`
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
}

// DiscoveryConfig bounds the environment walk
type DiscoveryConfig struct {
	MaxDepth     int  `yaml:"max_depth"`
	FollowOpener bool `yaml:"follow_opener"`
	// Extra global names probed after the built-in ones
	ExtraNames ExtraNames `yaml:"extra_names,omitempty"`
}

// ExtraNames lists additional globals per protocol family
type ExtraNames struct {
	Scorm12   []string `yaml:"scorm12,omitempty"`
	Scorm2004 []string `yaml:"scorm2004,omitempty"`
	XAPI      []string `yaml:"xapi,omitempty"`
	Custom    []string `yaml:"custom,omitempty"`
}

// CompletionConfig is the default request and run options
type CompletionConfig struct {
	Status        string  `yaml:"status"`
	Score         float64 `yaml:"score"`
	MinScore      float64 `yaml:"min_score"`
	MaxScore      float64 `yaml:"max_score"`
	Fallback      bool    `yaml:"fallback"`
	StopOnSuccess bool    `yaml:"stop_on_success"`
	Verify        bool    `yaml:"verify"`
	Terminate     bool    `yaml:"terminate"`
	Interactions  bool    `yaml:"interactions"`
}

// NetworkConfig applies to HACP, LRS and cmi5 fetch requests
type NetworkConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// XAPIConfig holds LRS credentials and statement defaults
type XAPIConfig struct {
	Endpoint     string  `yaml:"endpoint,omitempty"`
	Auth         *string `yaml:"auth,omitempty"`
	Key          string  `yaml:"key,omitempty"`
	Secret       *string `yaml:"secret,omitempty"`
	Actor        string  `yaml:"actor,omitempty"`
	ActivityID   string  `yaml:"activity_id,omitempty"`
	ActivityName string  `yaml:"activity_name,omitempty"`
}

// BrowserConfig selects how live pages are reached
type BrowserConfig struct {
	// DebuggerURL connects to an already running browser when set
	DebuggerURL       string   `yaml:"debugger_url,omitempty"`
	Bin               string   `yaml:"bin,omitempty"`
	Headless          bool     `yaml:"headless"`
	NavigationTimeout Duration `yaml:"navigation_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// Retention prunes archived reports older than this while serving; 0 keeps all
	Retention Duration `yaml:"retention,omitempty"`
}

// ServerConfig holds HTTP settings for `lmsbridge serve`
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
