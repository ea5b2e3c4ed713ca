package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for CSVPilot
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Retention RetentionConfig `mapstructure:"retention"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AdminConfig holds API authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// AssistantConfig holds remote assistant API configuration
type AssistantConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

// RetentionConfig holds session and artifact lifecycle configuration
type RetentionConfig struct {
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	FileTTL       time.Duration `mapstructure:"file_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LimitsConfig holds request size limits
type LimitsConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds the run-history database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("CSVPILOT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("admin.api_key", "")

	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", "gpt-4o")
	v.SetDefault("assistant.timeout", 30*time.Second)
	v.SetDefault("assistant.poll_interval", 2*time.Second)
	v.SetDefault("assistant.poll_timeout", 5*time.Minute)

	v.SetDefault("retention.session_ttl", 2*time.Hour)
	v.SetDefault("retention.file_ttl", 24*time.Hour)
	v.SetDefault("retention.sweep_interval", 10*time.Minute)

	v.SetDefault("limits.max_upload_bytes", int64(50*1024*1024))

	v.SetDefault("database.path", "./data/csvpilot.db")
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
