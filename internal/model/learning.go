package model

import (
	"fmt"

	"github.com/pullwise/pullwise/consts"
)

// FeedbackExample is an accepted finding used as a few-shot example in prompts
type FeedbackExample struct {
	IssueType   string   `json:"issue_type"`
	CodeSnippet string   `json:"code_snippet"`
	Suggestion  string   `json:"suggestion"`
	FilePath    string   `json:"file_path"`
	Severity    Severity `json:"severity"`
	AcceptCount int      `json:"accept_count"`
}

// Validate checks FeedbackExample invariants
func (e *FeedbackExample) Validate() error {
	if e.IssueType == "" {
		return fmt.Errorf("issue type is empty")
	}
	if len(e.CodeSnippet) > consts.MaxExampleSnippetLength {
		return fmt.Errorf("code snippet exceeds %d characters", consts.MaxExampleSnippetLength)
	}
	if len(e.Suggestion) > consts.MaxExampleSuggestionLength {
		return fmt.Errorf("suggestion exceeds %d characters", consts.MaxExampleSuggestionLength)
	}
	if e.AcceptCount < 0 || e.AcceptCount > consts.MaxExampleAcceptCount {
		return fmt.Errorf("accept count out of range: %d", e.AcceptCount)
	}
	return nil
}

// RejectionPattern summarizes an issue type the team consistently rejects
type RejectionPattern struct {
	IssueType      string   `json:"issue_type"`
	Reason         string   `json:"reason"`
	RejectionCount int      `json:"rejection_count"`
	SampleContexts []string `json:"sample_contexts,omitempty"`
}

// Validate checks RejectionPattern invariants
func (p *RejectionPattern) Validate() error {
	if p.IssueType == "" {
		return fmt.Errorf("issue type is empty")
	}
	if p.RejectionCount < consts.MinRejectionsForPattern {
		return fmt.Errorf("rejection count %d below pattern threshold %d",
			p.RejectionCount, consts.MinRejectionsForPattern)
	}
	return nil
}

// LearningStats aggregates per-repository feedback statistics
type LearningStats struct {
	TotalFeedback int     `json:"total_feedback"`
	Accepted      int     `json:"accepted"`
	Rejected      int     `json:"rejected"`
	Ignored       int     `json:"ignored"`
	AcceptRate    float64 `json:"accept_rate"`
}

// LearningContext bundles the statistics, few-shot examples, and rejection
// patterns for one repository, injected into prompts by the builder.
type LearningContext struct {
	Repository        string             `json:"repository"`
	Stats             LearningStats      `json:"stats"`
	Examples          []FeedbackExample  `json:"examples,omitempty"`
	RejectionPatterns []RejectionPattern `json:"rejection_patterns,omitempty"`
}

// HasSufficientData reports whether there is enough evidence to inject the
// context into a prompt.
func (c *LearningContext) HasSufficientData() bool {
	return c != nil && c.Stats.TotalFeedback >= consts.FeedbackMinSamples
}

// Validate enforces the structural caps on a learning context
func (c *LearningContext) Validate() error {
	if len(c.Examples) > consts.MaxTotalExamplesInPrompt {
		return fmt.Errorf("examples exceed %d", consts.MaxTotalExamplesInPrompt)
	}
	if len(c.RejectionPatterns) > consts.MaxRejectionPatterns {
		return fmt.Errorf("rejection patterns exceed %d", consts.MaxRejectionPatterns)
	}
	perType := make(map[string]int)
	for i := range c.Examples {
		if err := c.Examples[i].Validate(); err != nil {
			return fmt.Errorf("example %d: %w", i, err)
		}
		perType[c.Examples[i].IssueType]++
		if perType[c.Examples[i].IssueType] > consts.MaxExamplesPerIssueType {
			return fmt.Errorf("more than %d examples for issue type %q",
				consts.MaxExamplesPerIssueType, c.Examples[i].IssueType)
		}
	}
	for i := range c.RejectionPatterns {
		if err := c.RejectionPatterns[i].Validate(); err != nil {
			return fmt.Errorf("rejection pattern %d: %w", i, err)
		}
	}
	return nil
}
