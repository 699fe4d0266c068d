// Package config loads application settings from an optional YAML file and
// NULALABS_-prefixed environment variables, with sane defaults for local use.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Model   ModelConfig   `mapstructure:"model"`
	Context ContextConfig `mapstructure:"context"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Plans   PlansConfig   `mapstructure:"plans"`
	MCP     MCPConfig     `mapstructure:"mcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type ModelConfig struct {
	Provider  string `mapstructure:"provider"`
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type ContextConfig struct {
	SummarizationTrigger int    `mapstructure:"summarization_trigger"`
	KeepRecent           int    `mapstructure:"keep_recent"`
	TemplatesFile        string `mapstructure:"templates_file"`
}

type CacheConfig struct {
	MaxEntries int           `mapstructure:"max_entries"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type PlansConfig struct {
	Dir     string `mapstructure:"dir"`
	Enabled bool   `mapstructure:"enabled"`
}

type MCPConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

// Load reads configuration. path may be empty; environment variables such as
// NULALABS_MODEL_API_KEY override file values either way.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NULALABS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("model.provider", "anthropic")
	v.SetDefault("model.name", "claude-sonnet-4-20250514")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("context.templates_file", "")
	v.SetDefault("context.summarization_trigger", 30000)
	v.SetDefault("context.keep_recent", 5)
	v.SetDefault("cache.max_entries", 50)
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("plans.dir", "./data/plans")
	v.SetDefault("plans.enabled", true)
	v.SetDefault("mcp.config_file", "")
}
