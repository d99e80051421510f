package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pullwise/pullwise/consts"
)

// tripleNewline matches runs of three or more consecutive newlines
var tripleNewline = regexp.MustCompile(`\n{3,}`)

// SuggestedFix is an optional machine-applicable suggestion for an issue
type SuggestedFix struct {
	Description string `json:"description,omitempty"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// ReviewIssue is a single finding produced by an AI review call.
// Line 0 means file-level; positive lines anchor inline comments.
type ReviewIssue struct {
	Severity     Severity      `json:"severity"`
	IssueType    string        `json:"issue_type"`
	FilePath     string        `json:"file_path"`
	LineNumber   int           `json:"line_number"`
	Message      string        `json:"message"`
	SuggestedFix *SuggestedFix `json:"suggested_fix,omitempty"`
	AgentKind    string        `json:"agent_kind,omitempty"`
}

// Validate checks ReviewIssue invariants and normalizes text fields in place
func (i *ReviewIssue) Validate() error {
	if _, err := ParseSeverity(string(i.Severity)); err != nil {
		return err
	}
	if i.IssueType == "" {
		return fmt.Errorf("issue_type is empty")
	}
	if len(i.IssueType) > consts.MaxIssueTypeLength {
		return fmt.Errorf("issue_type exceeds %d characters", consts.MaxIssueTypeLength)
	}
	if err := ValidateFilePath(i.FilePath); err != nil {
		return fmt.Errorf("issue file path: %w", err)
	}
	if i.LineNumber < 0 {
		return fmt.Errorf("line_number is negative: %d", i.LineNumber)
	}
	if i.Message == "" {
		return fmt.Errorf("message is empty")
	}
	if strings.ContainsRune(i.Message, 0) {
		return fmt.Errorf("message contains null byte")
	}
	if len(i.Message) > consts.MaxMessageLength {
		i.Message = i.Message[:consts.MaxMessageLength]
	}
	i.Message = tripleNewline.ReplaceAllString(i.Message, "\n\n")
	return nil
}

// DedupKey identifies an issue for per-review deduplication
func (i *ReviewIssue) DedupKey() string {
	return fmt.Sprintf("%s:%d:%s", i.FilePath, i.LineNumber, i.IssueType)
}

// PostInline reports whether the issue qualifies for an inline comment:
// severity critical or high, and a positive line anchor.
func (i *ReviewIssue) PostInline() bool {
	return (i.Severity == SeverityCritical || i.Severity == SeverityHigh) && i.LineNumber > 0
}
