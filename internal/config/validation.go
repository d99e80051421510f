// Package config provides configuration management for the application.
// This file contains validation functions for configuration values.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/pullwise/pullwise/pkg/errors"
)

// MinWebhookSecretLength is the minimum accepted webhook secret length
const MinWebhookSecretLength = 16

// Validate checks the configuration for startup-blocking problems and
// returns a config-invalid error listing every failure.
func (c *Config) Validate() error {
	var failures []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		failures = append(failures, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute <= 0 {
		failures = append(failures, "server.rate_limit_per_minute must be positive")
	}
	if c.Server.WebhookSecret != "" && len(c.Server.WebhookSecret) < MinWebhookSecretLength {
		failures = append(failures, fmt.Sprintf(
			"server.webhook_secret shorter than %d characters", MinWebhookSecretLength))
	}

	if c.Database.Path == "" {
		failures = append(failures, "database.path is empty")
	}

	if c.Git.BaseURL == "" {
		failures = append(failures, "git.base_url is required")
	} else if u, err := url.Parse(c.Git.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		failures = append(failures, fmt.Sprintf("git.base_url is not an http(s) URL: %q", c.Git.BaseURL))
	}
	if c.Git.Project == "" {
		failures = append(failures, "git.project is required")
	}
	if c.Git.Token == "" {
		failures = append(failures, "git.token is required")
	}

	if c.AI.APIKey == "" {
		failures = append(failures, "ai.api_key is required")
	}
	if c.AI.Model == "" {
		failures = append(failures, "ai.model is required")
	}
	switch c.AI.Family {
	case "", "standard", "reasoning":
	default:
		failures = append(failures, fmt.Sprintf("ai.family must be standard or reasoning: %q", c.AI.Family))
	}
	if c.AI.MaxTokens < 0 {
		failures = append(failures, "ai.max_tokens must not be negative")
	}
	if c.AI.TimeoutSeconds < 0 {
		failures = append(failures, "ai.timeout_seconds must not be negative")
	}

	if c.Review.MaxConcurrent <= 0 {
		failures = append(failures, "review.max_concurrent must be positive")
	}
	if c.Review.CacheTTLDays <= 0 {
		failures = append(failures, "review.cache_ttl_days must be positive")
	}
	if c.Review.BreakerFailureThreshold <= 0 {
		failures = append(failures, "review.breaker_failure_threshold must be positive")
	}
	if c.Review.BreakerOpenSeconds <= 0 {
		failures = append(failures, "review.breaker_open_seconds must be positive")
	}
	if c.Review.TimerMaxRetries < 0 {
		failures = append(failures, "review.timer_max_retries must not be negative")
	}
	if c.Review.TimerRetryDelaySeconds < 0 {
		failures = append(failures, "review.timer_retry_delay_seconds must not be negative")
	}

	if len(failures) > 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			"invalid configuration: "+strings.Join(failures, "; "))
	}
	return nil
}
