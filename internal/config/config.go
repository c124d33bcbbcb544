package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultGatewayPort = 18790
	defaultAuditLimit  = 25
)

// Config root configuration
type Config struct {
	Sandbox SandboxConfig `mapstructure:"sandbox" json:"sandbox"`
	Policy  PolicyConfig  `mapstructure:"policy" json:"policy"`
	Audit   AuditConfig   `mapstructure:"audit" json:"audit"`
	Gateway GatewayConfig `mapstructure:"gateway" json:"gateway"`
	Log     LogConfig     `mapstructure:"log" json:"log"`
	Notify  NotifyConfig  `mapstructure:"notify" json:"notify"`
	State   StateConfig   `mapstructure:"state" json:"state"`
}

// SandboxConfig sandbox settings
type SandboxConfig struct {
	Root string `mapstructure:"root" json:"root"`
}

// PolicyConfig policy table settings. An empty File uses the built-in policy.
type PolicyConfig struct {
	File  string `mapstructure:"file" json:"file"`
	Watch bool   `mapstructure:"watch" json:"watch"`
}

// AuditConfig audit log settings. File is an optional JSONL mirror.
type AuditConfig struct {
	File         string `mapstructure:"file" json:"file"`
	DefaultLimit int    `mapstructure:"default_limit" json:"default_limit"`
}

// GatewayConfig server settings
type GatewayConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Token string `mapstructure:"token" json:"token"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file"`
}

// NotifyConfig pending-approval notification settings
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram" json:"telegram"`
}

// TelegramConfig telegram bot settings
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Token   string `mapstructure:"token" json:"token"`
	ChatID  string `mapstructure:"chat_id" json:"chat_id"`
}

// StateConfig runtime state settings. An empty Dir keeps metrics in memory.
type StateConfig struct {
	Dir string `mapstructure:"dir" json:"dir"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Root: filepath.Join(ConfigDir(), "sandbox"),
		},
		Audit: AuditConfig{
			DefaultLimit: defaultAuditLimit,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: defaultGatewayPort,
		},
		Log: LogConfig{
			Level: "info",
		},
		State: StateConfig{
			Dir: filepath.Join(ConfigDir(), "state"),
		},
	}
}

// ConfigDir returns the gatekeeper config directory
func ConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".gatekeeper")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from the default path, creating it with defaults when missing.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from configPath, creating it with defaults when missing.
// GATEKEEPER_<SECTION>_<KEY> environment variables override file values.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveTo(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("GATEKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to the default path
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo saves config to configPath
func SaveTo(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Sandbox.Root) == "" {
		c.Sandbox.Root = filepath.Join(ConfigDir(), "sandbox")
	}

	if c.Audit.DefaultLimit < 0 {
		return fmt.Errorf("audit.default_limit must not be negative, got %d", c.Audit.DefaultLimit)
	}
	if c.Audit.DefaultLimit == 0 {
		c.Audit.DefaultLimit = defaultAuditLimit
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if strings.TrimSpace(c.Gateway.Host) == "" {
		c.Gateway.Host = "127.0.0.1"
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	if c.Policy.Watch && strings.TrimSpace(c.Policy.File) == "" {
		return fmt.Errorf("policy.watch requires policy.file")
	}

	tg := c.Notify.Telegram
	if tg.Enabled && (strings.TrimSpace(tg.Token) == "" || strings.TrimSpace(tg.ChatID) == "") {
		return fmt.Errorf("notify.telegram requires token and chat_id when enabled")
	}

	return nil
}

// SandboxRoot returns the expanded sandbox root.
func (c *Config) SandboxRoot() string {
	return ExpandHome(c.Sandbox.Root)
}

// PolicyFile returns the expanded policy file path, or "" for the built-in policy.
func (c *Config) PolicyFile() string {
	return ExpandHome(c.Policy.File)
}

// AuditFile returns the expanded audit mirror path, or "" when disabled.
func (c *Config) AuditFile() string {
	return ExpandHome(c.Audit.File)
}

// StateDir returns the expanded state directory, or "" when disabled.
func (c *Config) StateDir() string {
	return ExpandHome(c.State.Dir)
}

// GatewayAddr returns host:port for the HTTP gateway.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	rest := strings.TrimPrefix(path[1:], string(filepath.Separator))
	rest = strings.TrimPrefix(rest, "/")
	return filepath.Join(homeDir, rest)
}
