package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "gpt-4o-mini"
	DefaultMaxTokens         = 4096
	DefaultTemperature       = 0.7
	DefaultMaxToolIterations = 10
	DefaultRequestTimeout    = 10
	DefaultMaxSearchResults  = 5
	DefaultMaxFileSize       = 10 * 1024 * 1024
	DefaultMemoryMaxEntries  = 100
	DefaultMemoryFile        = "memory.json"
	DefaultQRDir             = "qr_codes"
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Tools    ToolsConfig    `json:"tools"`
	Channels ChannelsConfig `json:"channels"`
}

type AgentConfig struct {
	Workspace         string  `json:"workspace"`
	Model             string  `json:"model"`
	MaxTokens         int     `json:"maxTokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"maxToolIterations"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// ToolsConfig carries everything the tool adapters need injected: the sandbox
// root comes from AgentConfig.Workspace, the rest lives here so tests can
// redirect limits and output locations without touching the environment.
type ToolsConfig struct {
	RequestTimeout   int    `json:"requestTimeout"` // seconds, per external HTTP request
	MaxSearchResults int    `json:"maxSearchResults"`
	MaxFileSize      int64  `json:"maxFileSize"` // bytes
	MemoryFile       string `json:"memoryFile"`  // relative to workspace
	MemoryMaxEntries int    `json:"memoryMaxEntries"`
	QRDir            string `json:"qrDir"` // relative to workspace
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace:         filepath.Join(home, ".multitool", "workspace"),
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			Temperature:       DefaultTemperature,
			MaxToolIterations: DefaultMaxToolIterations,
		},
		Provider: ProviderConfig{},
		Tools: ToolsConfig{
			RequestTimeout:   DefaultRequestTimeout,
			MaxSearchResults: DefaultMaxSearchResults,
			MaxFileSize:      DefaultMaxFileSize,
			MemoryFile:       DefaultMemoryFile,
			MemoryMaxEntries: DefaultMemoryMaxEntries,
			QRDir:            DefaultQRDir,
		},
		Channels: ChannelsConfig{},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".multitool")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("MULTITOOL_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("MULTITOOL_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("MULTITOOL_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if ws := os.Getenv("MULTITOOL_WORKSPACE"); ws != "" {
		cfg.Agent.Workspace = ws
	}
	if token := os.Getenv("MULTITOOL_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if timeout := os.Getenv("MULTITOOL_REQUEST_TIMEOUT"); timeout != "" {
		if parsed, err := strconv.Atoi(timeout); err == nil && parsed > 0 {
			cfg.Tools.RequestTimeout = parsed
		}
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Tools.RequestTimeout <= 0 {
		cfg.Tools.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Tools.MaxSearchResults <= 0 {
		cfg.Tools.MaxSearchResults = DefaultMaxSearchResults
	}
	if cfg.Tools.MaxFileSize <= 0 {
		cfg.Tools.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.Tools.MemoryFile == "" {
		cfg.Tools.MemoryFile = DefaultMemoryFile
	}
	if cfg.Tools.MemoryMaxEntries <= 0 {
		cfg.Tools.MemoryMaxEntries = DefaultMemoryMaxEntries
	}
	if cfg.Tools.QRDir == "" {
		cfg.Tools.QRDir = DefaultQRDir
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
