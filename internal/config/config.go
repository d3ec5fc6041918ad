package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the main configuration structure for nanobot.
type Config struct {
	Workspace string          `yaml:"workspace"`
	DataDir   string          `yaml:"data_dir"`
	Agent     AgentConfig     `yaml:"agent"`
	LLM       LLMConfig       `yaml:"llm"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
	GitUpdate GitUpdateConfig `yaml:"git_update"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AgentConfig struct {
	Model         string              `yaml:"model"`
	MaxTokens     int                 `yaml:"max_tokens"`
	Temperature   float32             `yaml:"temperature"`
	MaxIterations int                 `yaml:"max_iterations"`
	Summarization SummarizationConfig `yaml:"summarization"`
}

type SummarizationConfig struct {
	Enabled       bool `yaml:"enabled"`
	ThresholdLow  int  `yaml:"threshold_low"`
	ThresholdHigh int  `yaml:"threshold_high"`
	TargetLength  int  `yaml:"target_length"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Timeout      time.Duration `yaml:"timeout"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	Slack    SlackConfig    `yaml:"slack"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
}

type TelegramConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BotToken     string   `yaml:"bot_token"`
	AllowedChats []string `yaml:"allowed_chats"`
}

type DiscordConfig struct {
	Enabled      bool     `yaml:"enabled"`
	BotToken     string   `yaml:"bot_token"`
	AllowedChats []string `yaml:"allowed_chats"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

type WhatsAppConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SessionPath string `yaml:"session_path"`
}

type ToolsConfig struct {
	ExecTimeout         time.Duration `yaml:"exec_timeout"`
	RestrictToWorkspace bool          `yaml:"restrict_to_workspace"`
	BraveAPIKey         string        `yaml:"brave_api_key"`
}

type MCPConfig struct {
	Servers     []MCPServerConfig `yaml:"servers"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
}

type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"`
	Enabled   bool              `yaml:"enabled"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       map[string]string `yaml:"env"`
	URL       string            `yaml:"url"`
	Timeout   time.Duration     `yaml:"timeout"`
}

type HealthCheckConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Interval             time.Duration `yaml:"interval"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `yaml:"reconnect_max_attempts"`
}

type GitUpdateConfig struct {
	Enabled bool            `yaml:"enabled"`
	Repos   []GitRepoConfig `yaml:"repos"`
}

type GitRepoConfig struct {
	Path           string   `yaml:"path"`
	Branch         string   `yaml:"branch"`
	Schedule       string   `yaml:"schedule"`
	Enabled        bool     `yaml:"enabled"`
	OnUpdate       []string `yaml:"on_update"`
	OnConflict     []string `yaml:"on_conflict"`
	NotifyOnChange bool     `yaml:"notify_on_change"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ApplyDefaults fills in zero values after decoding.
func (c *Config) ApplyDefaults() {
	if c.Workspace == "" {
		c.Workspace = filepath.Join(homeDir(), "nanobot")
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(homeDir(), ".nanobot")
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Agent.Temperature == 0 {
		c.Agent.Temperature = 0.7
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 20
	}
	if c.Agent.Summarization.ThresholdLow == 0 {
		c.Agent.Summarization.ThresholdLow = 3000
	}
	if c.Agent.Summarization.ThresholdHigh == 0 {
		c.Agent.Summarization.ThresholdHigh = 4000
	}
	if c.Agent.Summarization.TargetLength == 0 {
		c.Agent.Summarization.TargetLength = 300
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.Tools.ExecTimeout == 0 {
		c.Tools.ExecTimeout = 60 * time.Second
	}
	if c.Channels.WhatsApp.SessionPath == "" {
		c.Channels.WhatsApp.SessionPath = filepath.Join(c.DataDir, "whatsapp", "session.db")
	}
	if c.MCP.HealthCheck.Interval == 0 {
		c.MCP.HealthCheck.Interval = 30 * time.Second
	}
	if c.MCP.HealthCheck.ReconnectBaseDelay == 0 {
		c.MCP.HealthCheck.ReconnectBaseDelay = time.Second
	}
	if c.MCP.HealthCheck.ReconnectMaxDelay == 0 {
		c.MCP.HealthCheck.ReconnectMaxDelay = 5 * time.Minute
	}
	for i := range c.MCP.Servers {
		if c.MCP.Servers[i].Transport == "" {
			c.MCP.Servers[i].Transport = "stdio"
		}
		if c.MCP.Servers[i].Timeout == 0 {
			c.MCP.Servers[i].Timeout = 30 * time.Second
		}
	}
	for i := range c.GitUpdate.Repos {
		if c.GitUpdate.Repos[i].Branch == "" {
			c.GitUpdate.Repos[i].Branch = "main"
		}
		if c.GitUpdate.Repos[i].Schedule == "" {
			c.GitUpdate.Repos[i].Schedule = "0 * * * *"
		}
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate verifies cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok && len(c.LLM.Providers) > 0 {
			return fmt.Errorf("default_provider %q is not configured", c.LLM.DefaultProvider)
		}
	}
	seen := map[string]bool{}
	for _, srv := range c.MCP.Servers {
		if srv.Name == "" {
			return fmt.Errorf("mcp server name is required")
		}
		if seen[srv.Name] {
			return fmt.Errorf("duplicate mcp server name %q", srv.Name)
		}
		seen[srv.Name] = true
		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				return fmt.Errorf("mcp server %q: command is required for stdio transport", srv.Name)
			}
		case "sse":
			if srv.URL == "" {
				return fmt.Errorf("mcp server %q: url is required for sse transport", srv.Name)
			}
		default:
			return fmt.Errorf("mcp server %q: unknown transport %q", srv.Name, srv.Transport)
		}
	}
	for _, repo := range c.GitUpdate.Repos {
		if repo.Path == "" {
			return fmt.Errorf("git_update repo path is required")
		}
	}
	return nil
}

// Provider returns the configuration for the named provider, falling back
// to the default provider when name is empty.
func (c *Config) Provider(name string) (string, LLMProviderConfig) {
	if name == "" {
		name = c.LLM.DefaultProvider
	}
	return name, c.LLM.Providers[name]
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	return filepath.Join(homeDir(), ".nanobot", "config.yaml")
}
