package model

import (
	"fmt"

	"github.com/pullwise/pullwise/consts"
)

// SeverityCounts summarizes issues by severity, including info
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Total returns the sum over all severities
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Info
}

// Get returns the count for a severity
func (c SeverityCounts) Get(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	default:
		return c.Info
	}
}

// ReviewResult aggregates the findings of one AI call or one whole PR.
// Derived fields (counts, recommendation) are recomputed on every aggregation.
type ReviewResult struct {
	Issues           []ReviewIssue  `json:"issues"`
	TokensUsed       int            `json:"tokens_used"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	Counts           SeverityCounts `json:"counts"`
	Recommendation   Recommendation `json:"recommendation"`

	// Strategy records how the review was executed (set by the orchestrator)
	Strategy Strategy `json:"strategy,omitempty"`

	// FileErrors lists per-file failures surfaced in the summary comment
	FileErrors []string `json:"file_errors,omitempty"`
}

// Validate checks ReviewResult invariants
func (r *ReviewResult) Validate() error {
	if len(r.Issues) > consts.MaxIssuesPerReview {
		return fmt.Errorf("issue count %d exceeds cap %d", len(r.Issues), consts.MaxIssuesPerReview)
	}
	if r.TokensUsed < 0 || r.TokensUsed > consts.MaxAggregatedTokens {
		return fmt.Errorf("tokens_used out of range: %d", r.TokensUsed)
	}
	if r.EstimatedCostUSD < 0 || r.EstimatedCostUSD > consts.MaxAggregatedCost {
		return fmt.Errorf("estimated_cost_usd out of range: %f", r.EstimatedCostUSD)
	}
	for i := range r.Issues {
		if err := r.Issues[i].Validate(); err != nil {
			return fmt.Errorf("issue %d: %w", i, err)
		}
	}
	return nil
}

// Recount recomputes severity counts and the recommendation from the issue
// list. Any critical or high issue requests changes; any medium comments;
// otherwise approve.
func (r *ReviewResult) Recount() {
	counts := SeverityCounts{}
	for i := range r.Issues {
		switch r.Issues[i].Severity {
		case SeverityCritical:
			counts.Critical++
		case SeverityHigh:
			counts.High++
		case SeverityMedium:
			counts.Medium++
		case SeverityLow:
			counts.Low++
		default:
			counts.Info++
		}
	}
	r.Counts = counts

	switch {
	case counts.Critical > 0 || counts.High > 0:
		r.Recommendation = RecommendRequestChanges
	case counts.Medium > 0:
		r.Recommendation = RecommendComment
	default:
		r.Recommendation = RecommendApprove
	}
}

// HasBlockingIssues reports whether the result contains critical or high issues
func (r *ReviewResult) HasBlockingIssues() bool {
	return r.Counts.Critical > 0 || r.Counts.High > 0
}
