// Package consts defines cross-module constants used throughout the application.
package consts

import (
	"sync"
	"time"
)

// ServiceName is the application service name
const ServiceName = "pullwise"

// Project information constants
const (
	// ProjectName is the display name of the project
	ProjectName = "Pullwise"

	// ProjectURL is the GitHub repository URL
	ProjectURL = "https://github.com/pullwise/pullwise"
)

// Build information - set via ldflags during build or programmatically
var (
	// Version is the application version
	Version = "dev"

	// BuildTime is the build timestamp
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Review pipeline limits
const (
	// MaxConcurrentReviews bounds outbound diff fetches and AI calls
	MaxConcurrentReviews = 5

	// MaxIssuesPerReview caps the aggregated issue list for one PR
	MaxIssuesPerReview = 50

	// MaxAggregatedTokens caps token totals across aggregated results
	MaxAggregatedTokens = 9_999_999

	// MaxAggregatedCost caps the estimated cost in USD across aggregated results
	MaxAggregatedCost = 9999.99

	// MaxCommentLength caps the summary comment body
	MaxCommentLength = 65_000
)

// Strategy selection thresholds
const (
	// SinglePassMaxFiles and SinglePassMaxTokens bound the single-prompt tier
	SinglePassMaxFiles  = 5
	SinglePassMaxTokens = 10_000

	// ChunkedMaxFiles and ChunkedMaxTokens bound the grouped tier
	ChunkedMaxFiles  = 15
	ChunkedMaxTokens = 40_000

	// TokensPerLineEstimate converts changed-line counts to a token estimate
	TokensPerLineEstimate = 6

	// MaxTokensPerFile and MaxLinesPerFile cap per-file estimates
	MaxTokensPerFile = 1_000_000
	MaxLinesPerFile  = 100_000
)

// Diff parsing limits
const (
	// MaxDiffLines caps total parsed lines per diff blob
	MaxDiffLines = 100_000

	// MaxHunkLines caps lines per hunk; excess is truncated with a warning
	MaxHunkLines = 10_000
)

// Text field limits used by validation and prompt sanitization
const (
	MaxPathLength      = 2000
	MaxPromptPathLen   = 1000
	MaxTitleLength     = 500
	MaxMessageLength   = 5000
	MaxIssueTypeLength = 100
	MaxBranchRefLength = 500
	MaxPromptLength    = 1_000_000

	// MaxLearningSectionLength caps the learning-context text in prompts
	MaxLearningSectionLength = 10_000

	// LogFieldMaxLength truncates user text fields before logging
	LogFieldMaxLength = 100

	// MaxLoggedErrors caps individual schema-error logs per AI response
	MaxLoggedErrors = 10

	// MaxResultSummaryLength caps the stored idempotency result summary
	MaxResultSummaryLength = 1000
)

// File-type registry limits
const (
	// DefaultTokenEstimate is the per-file token hint for unknown categories
	DefaultTokenEstimate = 350

	// FileCategoryCacheSize bounds the LRU classification cache
	FileCategoryCacheSize = 1000
)

// Feedback learning parameters
const (
	// FeedbackMinSamples is the minimum evidence before learning injection
	FeedbackMinSamples = 5

	// MaxExamplesPerIssueType caps few-shot examples per issue type
	MaxExamplesPerIssueType = 3

	// MaxTotalExamplesInPrompt caps total few-shot examples in one prompt
	MaxTotalExamplesInPrompt = 10

	// MaxRejectionPatterns caps rejection patterns per prompt
	MaxRejectionPatterns = 5

	// MinRejectionsForPattern is the rejection count required for a pattern
	MinRejectionsForPattern = 3

	// MinExampleQualityRate is the acceptance rate required for examples
	MinExampleQualityRate = 0.8

	// MaxExampleSnippetLength caps sanitized code snippets in examples
	MaxExampleSnippetLength = 500

	// MaxExampleSuggestionLength caps suggestion text in examples
	MaxExampleSuggestionLength = 300

	// MaxExampleAcceptCount caps the recorded acceptance count
	MaxExampleAcceptCount = 10_000
)

// Timeouts
const (
	// HandlerTimeout bounds one complete PR review
	HandlerTimeout = 480 * time.Second

	// AIRequestTimeout bounds a single LLM call
	AIRequestTimeout = 180 * time.Second

	// CacheWriteTimeout is the outer budget for best-effort cache updates
	CacheWriteTimeout = 5 * time.Second

	// BreakerLockTimeout bounds breaker lock acquisition
	BreakerLockTimeout = 30 * time.Second
)

// TTLs for persisted reliability records
const (
	// IdempotencyTTL is the dedup window for webhook deliveries
	IdempotencyTTL = 48 * time.Hour

	// CacheTTLDays is the default response-cache lifetime in days
	CacheTTLDays = 3
)

// Circuit breaker defaults
const (
	BreakerFailureThreshold = 5
	BreakerOpenTimeout      = 60 * time.Second
)

// Rate limiting defaults
const (
	RateLimitWindowSeconds   = 60
	RateLimitRequestsPerMin  = 100
	RateLimitMaxClients      = 1000
	CacheMaxWritesPerMinute  = 100
)

// LLM retry policy
const (
	RetryMinWait     = 2 * time.Second
	RetryMaxWait     = 60 * time.Second
	MaxRetryAttempts = 3
)

// Scheduled-task retry policy: a failed timer run is retried this many
// times, waiting TimerRetryDelay between attempts
const (
	TimerMaxRetries = 3
	TimerRetryDelay = 60 * time.Second
)

// Breaker service names for outbound dependencies
const (
	ServiceOpenAI      = "openai"
	ServiceGitPlatform = "git_platform"
)

// Server runtime information
var (
	startedAt   time.Time
	startedOnce sync.Once
)

// SetStartedAt records the server start time (can only be called once)
func SetStartedAt(t time.Time) {
	startedOnce.Do(func() {
		startedAt = t
	})
}

// GetStartedAt returns the server start time
func GetStartedAt() time.Time {
	return startedAt
}

// GetUptime returns the duration since server started
func GetUptime() time.Duration {
	if startedAt.IsZero() {
		return 0
	}
	return time.Since(startedAt)
}
