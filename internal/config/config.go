// Package config loads and validates the agentcored configuration file,
// per spec.md §6.4. The shape follows the teacher's internal/config
// package: one Config struct composed of per-area sub-structs, each
// yaml-tagged and owned by its own file.
package config

import "time"

// Config is the top-level agentcored configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	LLM     LLMConfig     `yaml:"llm"`
	Skills  SkillsConfig  `yaml:"skills"`
	Agent   AgentConfig   `yaml:"agent"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface (spec.md §6.1).
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORS       bool   `yaml:"cors"`
	AdminToken string `yaml:"admin_token"`
}

// GatewayConfig configures the WebSocket surface (spec.md §6.2).
type GatewayConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Bind                  string `yaml:"bind"`
	AuthToken             string `yaml:"auth_token"`
	MaxConnections        int    `yaml:"max_connections"`
	HeartbeatIntervalSecs int    `yaml:"heartbeat_interval_secs"`
}

// HeartbeatInterval returns the configured heartbeat cadence, defaulting
// to 30s when unset.
func (g GatewayConfig) HeartbeatInterval() time.Duration {
	if g.HeartbeatIntervalSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(g.HeartbeatIntervalSecs) * time.Second
}

// LLMConfig holds the default provider id and the full provider map.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes one configured LLM provider endpoint.
type ProviderConfig struct {
	Enabled        bool              `yaml:"enabled"`
	BaseURL        string            `yaml:"base_url"`
	Model          string            `yaml:"model"`
	Headers        map[string]string `yaml:"headers"`
	Auth           AuthConfig        `yaml:"auth"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// AuthConfig describes one provider's credential scheme. Type is one of
// "api_key", "bearer", "device_code", "none" (spec.md §6.4).
type AuthConfig struct {
	Type         string `yaml:"type"`
	HeaderName   string `yaml:"header_name"`
	Key          string `yaml:"key"`
	Token        string `yaml:"token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	DeviceAuthURL string `yaml:"device_auth_url"`
	Scopes       []string `yaml:"scopes"`
	CachePath    string `yaml:"cache_path"`
}

// SkillsConfig controls skill discovery and hot reload.
type SkillsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	AutoReload  bool     `yaml:"auto_reload"`
	Directories []string `yaml:"directories"`
}

// AgentConfig controls the agent loop's bounds (spec.md §4.4).
type AgentConfig struct {
	MaxRounds      int    `yaml:"max_rounds"`
	SystemPrompt   string `yaml:"system_prompt"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// ConcurrentRunPolicy is "cancel" (default) or "reject" — spec.md §5's
	// "new request while a run is in flight" knob.
	ConcurrentRunPolicy string `yaml:"concurrent_run_policy"`
}

// StorageConfig selects the session-store backend and its root path.
// Type is always "file" in this implementation (spec.md §4.7's
// append-only design); the field is kept so a future backend can be
// selected without a schema break.
type StorageConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// LoggingConfig controls the slog/lumberjack-style log sink.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	MaxSizeMB int   `yaml:"max_size_mb"`
	MaxFiles int    `yaml:"max_files"`
}
