package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Lark     LarkConfig     `mapstructure:"lark" yaml:"lark"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	// Mode selects the MCP transport: "stdio" or "sse"
	Mode string `mapstructure:"mode" yaml:"mode"`
	// MCPAddress is the listen address for SSE mode (e.g. ":8081")
	MCPAddress string `mapstructure:"mcp_address" yaml:"mcp_address"`
	// APIAddress is the listen address for the HTTP tool wrapper
	APIAddress string `mapstructure:"api_address" yaml:"api_address"`
}

// LarkConfig defines the upstream Lark/Feishu Project connection.
// Either AccessToken (static) or PluginID+PluginSecret (refreshable) must be
// set; a static token always wins when both are present.
type LarkConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	PluginID     string `mapstructure:"plugin_id" yaml:"plugin_id"`
	PluginSecret string `mapstructure:"plugin_secret" yaml:"-"`
	UserKey      string `mapstructure:"user_key" yaml:"user_key"`
	AccessToken  string `mapstructure:"access_token" yaml:"-"`

	// DefaultProject is the project name or key used when a tool call does
	// not name one. DefaultWorkItemType is the work item type used for task
	// operations unless overridden per call.
	DefaultProject      string `mapstructure:"default_project" yaml:"default_project"`
	DefaultWorkItemType string `mapstructure:"default_work_item_type" yaml:"default_work_item_type"`
}

type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffSeconds int     `mapstructure:"max_backoff_seconds" yaml:"max_backoff_seconds"`
	BackoffMultiple   float64 `mapstructure:"backoff_multiple" yaml:"backoff_multiple"`
}

// ResolverConfig sets the cache window for each metadata tier, in seconds.
type ResolverConfig struct {
	ProjectTTLSeconds int `mapstructure:"project_ttl_seconds" yaml:"project_ttl_seconds"`
	TypeTTLSeconds    int `mapstructure:"type_ttl_seconds" yaml:"type_ttl_seconds"`
	FieldTTLSeconds   int `mapstructure:"field_ttl_seconds" yaml:"field_ttl_seconds"`
	UserTTLSeconds    int `mapstructure:"user_ttl_seconds" yaml:"user_ttl_seconds"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Format     string `mapstructure:"format" yaml:"format"` // "json" or "text"
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
}

func Load() (*Config, error) {
	// A .env file is the usual way to carry plugin credentials during
	// development; a missing file is fine.
	_ = gotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("LARK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Env-only operation is supported; only a malformed file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.mode", "stdio")
	viper.SetDefault("server.mcp_address", ":8081")
	viper.SetDefault("server.api_address", ":8080")
	viper.SetDefault("lark.base_url", "https://project.feishu.cn")
	viper.SetDefault("lark.default_work_item_type", "问题管理")
	viper.SetDefault("http.timeout_seconds", 30)
	viper.SetDefault("http.max_attempts", 3)
	viper.SetDefault("http.initial_backoff_ms", 1000)
	viper.SetDefault("http.max_backoff_seconds", 10)
	viper.SetDefault("http.backoff_multiple", 2.0)
	viper.SetDefault("resolver.project_ttl_seconds", 3600)
	viper.SetDefault("resolver.type_ttl_seconds", 1800)
	viper.SetDefault("resolver.field_ttl_seconds", 1800)
	viper.SetDefault("resolver.user_ttl_seconds", 1800)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output_file", "./logs/lark-agent.log")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
}

// Validate checks that a usable credential source is configured.
func (c *Config) Validate() error {
	if c.Lark.BaseURL == "" {
		return fmt.Errorf("lark.base_url is required")
	}
	if c.Lark.AccessToken == "" && (c.Lark.PluginID == "" || c.Lark.PluginSecret == "") {
		return fmt.Errorf("either lark.access_token or lark.plugin_id and lark.plugin_secret must be set")
	}
	if c.Server.Mode != "stdio" && c.Server.Mode != "sse" {
		return fmt.Errorf("server.mode must be \"stdio\" or \"sse\", got %q", c.Server.Mode)
	}
	return nil
}

// Redacted renders the configuration as YAML with secret fields omitted,
// suitable for startup debug logging.
func (c *Config) Redacted() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	return string(out)
}
