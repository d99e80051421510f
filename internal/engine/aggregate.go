package engine

import (
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// Aggregate merges partial results from multiple AI calls into one review.
// Nil partials are skipped with a log, issues are deduplicated by their
// (path, line, type) key keeping the first occurrence, the issue list is
// capped, and token/cost totals are clamped before derived fields are
// recomputed.
func Aggregate(partials []*model.ReviewResult) *model.ReviewResult {
	out := &model.ReviewResult{}
	seen := make(map[string]bool)
	skipped, duplicates := 0, 0

	for _, p := range partials {
		if p == nil {
			skipped++
			continue
		}

		for i := range p.Issues {
			key := p.Issues[i].DedupKey()
			if seen[key] {
				duplicates++
				continue
			}
			seen[key] = true
			out.Issues = append(out.Issues, p.Issues[i])
		}

		out.TokensUsed += p.TokensUsed
		out.EstimatedCostUSD += p.EstimatedCostUSD
		out.FileErrors = append(out.FileErrors, p.FileErrors...)
	}

	if out.TokensUsed > consts.MaxAggregatedTokens {
		logger.Warn("Aggregated token total saturated, clamping",
			zap.Int("tokens", out.TokensUsed),
			zap.Int("cap", consts.MaxAggregatedTokens))
		out.TokensUsed = consts.MaxAggregatedTokens
	}
	if out.EstimatedCostUSD > consts.MaxAggregatedCost {
		logger.Warn("Aggregated cost total saturated, clamping",
			zap.Float64("cost_usd", out.EstimatedCostUSD),
			zap.Float64("cap", consts.MaxAggregatedCost))
		out.EstimatedCostUSD = consts.MaxAggregatedCost
	}

	if skipped > 0 {
		logger.Warn("Aggregation skipped missing partial results", zap.Int("skipped", skipped))
	}
	if len(out.Issues) > consts.MaxIssuesPerReview {
		logger.Warn("Aggregated issues exceed cap, truncating",
			zap.Int("count", len(out.Issues)),
			zap.Int("cap", consts.MaxIssuesPerReview))
		out.Issues = out.Issues[:consts.MaxIssuesPerReview]
	}
	if duplicates > 0 {
		logger.Debug("Aggregation dropped duplicate issues", zap.Int("duplicates", duplicates))
	}

	out.Recount()
	return out
}
