// Package config provides configuration management for the application.
// It supports YAML configuration files with environment variable overrides.
package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/database"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// Default configuration values
const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultAIModel          = "gpt-4o"
	defaultAIMaxTokens      = 4096
	defaultAITimeoutSeconds = 180
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Git       GitConfig        `yaml:"git"`
	AI        AIConfig         `yaml:"ai"`
	Review    ReviewConfig     `yaml:"review"`
	Logging   logger.Config    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`

	// WebhookSecret validates inbound webhook deliveries; empty disables the check
	WebhookSecret string `yaml:"webhook_secret"`

	// AdminKey protects the reliability admin endpoints; empty disables them
	AdminKey string `yaml:"admin_key"`

	// RateLimitPerMinute bounds webhook deliveries per client per minute
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Path is the SQLite database file location
	Path string `yaml:"path"`
}

// GitConfig holds the git platform connection settings
type GitConfig struct {
	// BaseURL is the organization URL, e.g. https://dev.azure.com/acme
	BaseURL string `yaml:"base_url"`
	Project string `yaml:"project"`
	// Token authenticates as a PAT
	Token string `yaml:"token"`
}

// AIConfig holds the AI provider settings
type AIConfig struct {
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the provider endpoint, e.g. for a gateway
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Family forces standard or reasoning request shaping; empty auto-detects
	Family         string `yaml:"family"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ReviewConfig holds review pipeline configuration
type ReviewConfig struct {
	// MaxConcurrent bounds parallel diff fetches and AI calls per review
	MaxConcurrent int `yaml:"max_concurrent"`

	// CacheTTLDays is the response-cache lifetime
	CacheTTLDays int `yaml:"cache_ttl_days"`

	// DryRun reviews without posting any comments
	DryRun bool `yaml:"dry_run"`

	// BreakerFailureThreshold is the consecutive-failure count that opens a
	// circuit; BreakerOpenSeconds is how long it stays open
	BreakerFailureThreshold int `yaml:"breaker_failure_threshold"`
	BreakerOpenSeconds      int `yaml:"breaker_open_seconds"`

	// TimerMaxRetries is how many times a failed scheduled harvest is
	// retried; TimerRetryDelaySeconds is the wait between attempts
	TimerMaxRetries        int `yaml:"timer_max_retries"`
	TimerRetryDelaySeconds int `yaml:"timer_retry_delay_seconds"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               defaultHost,
			Port:               defaultPort,
			Debug:              false,
			RateLimitPerMinute: consts.RateLimitRequestsPerMin,
		},
		Database: DatabaseConfig{
			Path: database.DefaultDBPath,
		},
		Git: GitConfig{},
		AI: AIConfig{
			Model:          defaultAIModel,
			MaxTokens:      defaultAIMaxTokens,
			TimeoutSeconds: defaultAITimeoutSeconds,
		},
		Review: ReviewConfig{
			MaxConcurrent:           consts.MaxConcurrentReviews,
			CacheTTLDays:            consts.CacheTTLDays,
			BreakerFailureThreshold: consts.BreakerFailureThreshold,
			BreakerOpenSeconds:      int(consts.BreakerOpenTimeout.Seconds()),
			TimerMaxRetries:         consts.TimerMaxRetries,
			TimerRetryDelaySeconds:  int(consts.TimerRetryDelay.Seconds()),
		},
		Logging: logger.Config{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   false,
		},
		Telemetry: telemetry.Config{
			Enabled:     false,
			ServiceName: consts.ServiceName,
			Prometheus: telemetry.PrometheusConfig{
				Enabled: false,
				Port:    9090,
			},
		},
	}
}

// Load loads configuration from a YAML file with environment variable expansion
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable
// values. Only the braced form is matched so literal dollar signs in tokens
// survive. ${VAR:-default} falls back when the variable is unset.
func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]

		if value := os.Getenv(varName); value != "" {
			return value
		}
		if len(parts) > 1 {
			return parts[1]
		}
		return ""
	})
}

// Address returns the server address string
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
