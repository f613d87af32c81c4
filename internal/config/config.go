// Package config loads tool configuration from a YAML file with
// RECEIPT_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nhle/receipt-index/internal/credential"
)

// IMAPConfig holds the mailbox connection settings.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Folder   string `mapstructure:"folder" yaml:"folder"`
}

// LLMConfig holds the extraction model settings.
type LLMConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// Config is the top-level tool configuration.
type Config struct {
	IMAP      IMAPConfig `mapstructure:"imap" yaml:"imap"`
	StoreRoot string     `mapstructure:"store_root" yaml:"store_root"`
	DBPath    string     `mapstructure:"db_path" yaml:"db_path"`
	LLM       LLMConfig  `mapstructure:"llm" yaml:"llm"`
	LogLevel  string     `mapstructure:"log_level" yaml:"log_level"`
}

// DefaultPath returns the default configuration file location,
// ~/.config/receipt-index/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "receipt-index", "config.yaml")
}

// Load reads configuration from the given YAML file. Missing files are
// not an error; defaults and environment variables still apply.
// Secrets absent from both file and environment fall back to the
// system keyring.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Explicit defaults so behavior never depends on ambient state.
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.folder", "INBOX")
	v.SetDefault("store_root", "./data/receipts")
	v.SetDefault("db_path", "./data/receipts.db")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("RECEIPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.IMAP.Password == "" {
		if pw, err := credential.Get(credential.KeyIMAPPassword); err == nil {
			cfg.IMAP.Password = pw
		}
	}
	if cfg.LLM.APIKey == "" {
		if key, err := credential.Get(credential.KeyAnthropicAPIKey); err == nil {
			cfg.LLM.APIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Resolve the store root so a working-directory change mid-run
	// cannot move the store.
	abs, err := filepath.Abs(cfg.StoreRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving store root %s: %w", cfg.StoreRoot, err)
	}
	cfg.StoreRoot = abs

	return cfg, nil
}

// validate checks that every required setting is present.
func (c *Config) validate() error {
	var missing []string
	if c.IMAP.Host == "" {
		missing = append(missing, "imap.host")
	}
	if c.IMAP.Username == "" {
		missing = append(missing, "imap.username")
	}
	if c.IMAP.Password == "" {
		missing = append(missing, "imap.password")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf(
			"required settings not configured: %s", strings.Join(missing, ", "),
		)
	}
	return nil
}
