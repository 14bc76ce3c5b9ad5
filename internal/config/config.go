// Package config handles fluux-agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Connection modes for the server block.
const (
	ModeComponent = "component"
	ModeClient    = "client"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from the command line) is checked first.
// Then: ./fluux-agent.yaml, ~/.config/fluux-agent/config.yaml,
// /etc/fluux-agent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"fluux-agent.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "fluux-agent", "config.yaml"))
	}

	paths = append(paths, "/etc/fluux-agent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all fluux-agent configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Memory    MemoryConfig    `yaml:"memory"`
	Rooms     []RoomConfig    `yaml:"rooms"`
	Skills    SkillsConfig    `yaml:"skills"`
	Keepalive KeepaliveConfig `yaml:"keepalive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig defines the XMPP server connection.
//
// Mode selects between the two mutually exclusive attachment styles:
// "component" (XEP-0114, requires Domain and Secret) and "client"
// (RFC 6120 C2S, requires JID and Password).
type ServerConfig struct {
	Mode string `yaml:"mode"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Component mode (XEP-0114)
	ComponentDomain string `yaml:"component_domain"`
	ComponentSecret string `yaml:"component_secret"`

	// Client mode (C2S)
	JID       string `yaml:"jid"`
	Password  string `yaml:"password"`
	Resource  string `yaml:"resource"`
	TLSVerify *bool  `yaml:"tls_verify"`
}

// LLMConfig defines the LLM backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, ollama
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
	Host      string `yaml:"host"` // ollama only; default http://localhost:11434
}

// AgentConfig defines the agent's identity and authorization policy.
type AgentConfig struct {
	Name string `yaml:"name"`

	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	// AllowedJIDs lists bare JIDs allowed to talk to the agent.
	// "*" allows anyone (the domain allowlist still applies).
	AllowedJIDs []string `yaml:"allowed_jids"`

	// AllowedDomains lists sender domains accepted by the agent.
	// Empty means only the agent's own domain; "*" allows all.
	AllowedDomains []string `yaml:"allowed_domains"`

	// PlainText flattens markdown in LLM replies to plain text
	// before sending, for XMPP clients without markdown rendering.
	PlainText bool `yaml:"plain_text"`
}

// MemoryConfig selects the conversation memory backend.
type MemoryConfig struct {
	Backend string `yaml:"backend"` // file (default), sqlite
	Path    string `yaml:"path"`
}

// RoomConfig defines a MUC room to join on connect (XEP-0045).
type RoomConfig struct {
	JID  string `yaml:"jid"`
	Nick string `yaml:"nick"`
}

// SkillsConfig enables builtin skills.
type SkillsConfig struct {
	WebSearch *WebSearchConfig `yaml:"web_search"`
	URLFetch  *URLFetchConfig  `yaml:"url_fetch"`
	Memory    *MemorySkill     `yaml:"memory"`
}

// WebSearchConfig configures the web_search skill.
type WebSearchConfig struct {
	Provider string `yaml:"provider"` // tavily, brave
	APIKey   string `yaml:"api_key"`
}

// URLFetchConfig configures the url_fetch skill.
type URLFetchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MemorySkill configures the memory (knowledge store) skill.
type MemorySkill struct {
	Enabled bool `yaml:"enabled"`
}

// KeepaliveConfig controls the whitespace keepalive ping.
type KeepaliveConfig struct {
	Enabled          *bool `yaml:"enabled"`
	PingIntervalSecs int   `yaml:"ping_interval_secs"`
	ReadTimeoutSecs  int   `yaml:"read_timeout_secs"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // text (default), json
}

// Load reads configuration from a YAML file, expanding ${ENV_VAR}
// references before unmarshaling so secrets can live in the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		if c.Server.Mode == ModeComponent {
			c.Server.Port = 5347
		} else {
			c.Server.Port = 5222
		}
	}
	if c.Server.Resource == "" {
		c.Server.Resource = "fluux-agent"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.Agent.Name == "" {
		c.Agent.Name = "fluux-agent"
	}
	if c.Memory.Backend == "" {
		c.Memory.Backend = "file"
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "./data/memory"
	}
	for i := range c.Rooms {
		if c.Rooms[i].Nick == "" {
			c.Rooms[i].Nick = c.Agent.Name
		}
	}
	if c.Keepalive.PingIntervalSecs == 0 {
		c.Keepalive.PingIntervalSecs = 60
	}
	if c.Keepalive.ReadTimeoutSecs == 0 {
		c.Keepalive.ReadTimeoutSecs = 2 * c.Keepalive.PingIntervalSecs
	}
}

// Validate checks that the mode-specific required fields are present.
func (c *Config) Validate() error {
	switch c.Server.Mode {
	case ModeComponent:
		if c.Server.ComponentDomain == "" || c.Server.ComponentSecret == "" {
			return fmt.Errorf("component mode requires server.component_domain and server.component_secret")
		}
	case ModeClient:
		if c.Server.JID == "" || c.Server.Password == "" {
			return fmt.Errorf("client mode requires server.jid and server.password")
		}
		if !strings.Contains(c.Server.JID, "@") {
			return fmt.Errorf("server.jid %q is not a valid bare JID", c.Server.JID)
		}
	default:
		return fmt.Errorf("server.mode must be %q or %q (got %q)", ModeComponent, ModeClient, c.Server.Mode)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	switch c.LLM.Provider {
	case "anthropic", "ollama":
	case "":
		return fmt.Errorf("llm.provider is required")
	default:
		return fmt.Errorf("unknown llm.provider %q (valid: anthropic, ollama)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// TLSVerifyEnabled reports whether TLS certificates are verified.
// Defaults to true; only client mode can disable it.
func (s *ServerConfig) TLSVerifyEnabled() bool {
	if s.Mode == ModeClient && s.TLSVerify != nil {
		return *s.TLSVerify
	}
	return true
}

// Domain returns the agent's own XMPP domain: the component domain in
// component mode, or the domain part of the JID in client mode.
func (s *ServerConfig) Domain() string {
	if s.Mode == ModeComponent {
		return s.ComponentDomain
	}
	if i := strings.Index(s.JID, "@"); i >= 0 {
		return s.JID[i+1:]
	}
	return s.JID
}

// ModeDescription returns a human-readable connection mode summary.
func (s *ServerConfig) ModeDescription() string {
	if s.Mode == ModeComponent {
		return fmt.Sprintf("component (%s)", s.ComponentDomain)
	}
	return fmt.Sprintf("C2S client (%s)", s.JID)
}

// KeepaliveEnabled reports whether the whitespace ping is active.
// Defaults to true.
func (k *KeepaliveConfig) KeepaliveEnabled() bool {
	if k.Enabled != nil {
		return *k.Enabled
	}
	return true
}

// FindRoom returns the configured room matching the given bare JID.
func (c *Config) FindRoom(roomJID string) *RoomConfig {
	for i := range c.Rooms {
		if c.Rooms[i].JID == roomJID {
			return &c.Rooms[i]
		}
	}
	return nil
}

// IsAllowed checks the per-JID allowlist. The JID may carry a resource;
// only the bare form is compared. "*" allows any sender.
func (c *Config) IsAllowed(jid string) bool {
	bare := bareJID(jid)
	for _, allowed := range c.Agent.AllowedJIDs {
		if allowed == bare || allowed == "*" {
			return true
		}
	}
	return false
}

// IsDomainAllowed checks the sender's domain against the domain
// allowlist. An empty list accepts only the agent's own domain;
// "*" accepts all domains.
func (c *Config) IsDomainAllowed(jid string) bool {
	bare := bareJID(jid)
	domain := bare
	if i := strings.Index(bare, "@"); i >= 0 {
		domain = bare[i+1:]
	}

	if len(c.Agent.AllowedDomains) == 0 {
		return domain == c.Server.Domain()
	}
	for _, d := range c.Agent.AllowedDomains {
		if d == "*" || d == domain {
			return true
		}
	}
	return false
}

// bareJID strips the /resource suffix. Kept local so config does not
// depend on the xmpp package.
func bareJID(jid string) string {
	if i := strings.Index(jid, "/"); i >= 0 {
		return jid[:i]
	}
	return jid
}
