// Package llm submits review prompts to the model provider and returns
// validated issue lists with token and cost accounting.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
)

// ModelFamily selects the request shape for a model
type ModelFamily string

const (
	// FamilyStandard models accept a deterministic temperature and a JSON
	// response-format flag
	FamilyStandard ModelFamily = "standard"
	// FamilyReasoning models reject temperature overrides and response
	// formats; JSON is demanded in the system prompt and extracted from
	// freeform output
	FamilyReasoning ModelFamily = "reasoning"
)

// reasoningPrefixes classify models when the config does not say
var reasoningPrefixes = []string{"gpt-5", "o1", "o3", "o4"}

// Config holds the provider connection settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Family overrides prefix-based detection when set
	Family    ModelFamily
	MaxTokens int
	// Timeout bounds a single request; defaults to AIRequestTimeout
	Timeout time.Duration
}

// Client is the authenticated LLM client, one per process
type Client struct {
	api       *openai.Client
	model     string
	family    ModelFamily
	maxTokens int
	timeout   time.Duration
}

// NewClient creates the provider client
func NewClient(cfg Config) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	family := cfg.Family
	if family == "" {
		family = detectFamily(cfg.Model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = consts.AIRequestTimeout
	}

	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		family:    family,
		maxTokens: cfg.MaxTokens,
		timeout:   timeout,
	}
}

// Model returns the configured model identifier
func (c *Client) Model() string {
	return c.model
}

// TemperaturePolicy names the request shape for cache-key derivation
func (c *Client) TemperaturePolicy() string {
	if c.family == FamilyReasoning {
		return "none"
	}
	return "deterministic"
}

// Review submits one prompt and returns the parsed result. Transient
// failures retry with jittered exponential backoff; the overall call is
// bounded by the request timeout.
func (c *Client) Review(ctx context.Context, prompt string) (*model.ReviewResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, pkgerrors.ErrValidation("prompt is empty")
	}
	if len(prompt) > consts.MaxPromptLength {
		return nil, pkgerrors.ErrValidation(
			fmt.Sprintf("prompt length %d exceeds cap %d", len(prompt), consts.MaxPromptLength))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = consts.RetryMinWait
	bo.MaxInterval = consts.RetryMaxWait

	start := time.Now()
	resp, err := backoff.Retry(ctx, func() (openai.ChatCompletionResponse, error) {
		resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(prompt))
		if err != nil {
			if isTransient(err) {
				logger.Warn("Transient model error, will retry", zap.Error(err))
				return openai.ChatCompletionResponse{}, err
			}
			return openai.ChatCompletionResponse{}, backoff.Permanent(err)
		}
		return resp, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(consts.MaxRetryAttempts))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, pkgerrors.New(pkgerrors.ErrCodeAITimeout, "model request timed out")
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeAITransient, "model request failed", err)
	}

	if len(resp.Choices) == 0 {
		return nil, pkgerrors.New(pkgerrors.ErrCodeAIIntegrity, "model returned no choices")
	}

	result, err := ParseReviewResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	result.TokensUsed = resp.Usage.TotalTokens
	result.EstimatedCostUSD = estimateCost(c.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	result.Recount()

	logger.Debug("Model call completed",
		zap.String("model", c.model),
		zap.Int("tokens", result.TokensUsed),
		zap.Float64("duration_seconds", time.Since(start).Seconds()),
		zap.Int("issues", len(result.Issues)))
	return result, nil
}

// buildRequest applies the model-family rules
func (c *Client) buildRequest(prompt string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	if c.family == FamilyReasoning {
		// No temperature, no response format; the JSON demand rides in a
		// strengthened system message.
		req.Messages = append([]openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleSystem,
			Content: "Respond with exactly one JSON object and nothing else. " +
				"No prose, no markdown fences, no explanations outside the JSON.",
		}}, req.Messages...)
		if c.maxTokens > 0 {
			req.MaxCompletionTokens = c.maxTokens
		}
		return req
	}

	// A literal 0 is dropped by the request's omitempty tag, leaving the
	// provider default in effect; the smallest non-zero float survives
	// serialization and still means deterministic.
	req.Temperature = math.SmallestNonzeroFloat32
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}
	return req
}

// detectFamily falls back to model-name prefixes
func detectFamily(modelID string) ModelFamily {
	lower := strings.ToLower(modelID)
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return FamilyReasoning
		}
	}
	return FamilyStandard
}

// isTransient reports whether an error is worth retrying
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Network-level failures arrive as plain errors
	return true
}

// pricing is USD per 1k tokens (prompt, completion)
type pricing struct {
	prompt     float64
	completion float64
}

// pricingTable is checked in order; longer prefixes come first
var pricingTable = []struct {
	prefix string
	rates  pricing
}{
	{"gpt-4o-mini", pricing{0.00015, 0.0006}},
	{"gpt-4o", pricing{0.0025, 0.01}},
	{"gpt-4.1", pricing{0.002, 0.008}},
	{"gpt-5", pricing{0.00125, 0.01}},
	{"o4-mini", pricing{0.0011, 0.0044}},
	{"o3", pricing{0.002, 0.008}},
}

var defaultPricing = pricing{0.0025, 0.01}

func estimateCost(modelID string, promptTokens, completionTokens int) float64 {
	p := defaultPricing
	lower := strings.ToLower(modelID)
	for _, entry := range pricingTable {
		if strings.HasPrefix(lower, entry.prefix) {
			p = entry.rates
			break
		}
	}
	cost := float64(promptTokens)/1000*p.prompt + float64(completionTokens)/1000*p.completion
	if cost > consts.MaxAggregatedCost {
		cost = consts.MaxAggregatedCost
	}
	return cost
}
