// Package output renders review results into PR comments and posts them.
package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
)

// severityOrder lists severities from most to least blocking
var severityOrder = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityInfo,
}

// maxListedIssues bounds the top-issues section of the summary
const maxListedIssues = 15

// BuildSummary renders the markdown summary comment for a completed review.
// The result is always within MaxCommentLength.
func BuildSummary(result *model.ReviewResult) string {
	var sb strings.Builder
	sb.WriteString("## Pullwise Review\n\n")

	if len(result.Issues) == 0 {
		sb.WriteString("No issues found.\n")
	} else {
		writeSeverityTable(&sb, result.Counts)
		writeTopIssues(&sb, result.Issues)
	}

	switch result.Recommendation {
	case model.RecommendRequestChanges:
		sb.WriteString("\n**Recommendation:** request changes\n")
	case model.RecommendComment:
		sb.WriteString("\n**Recommendation:** review comments\n")
	default:
		sb.WriteString("\n**Recommendation:** approve\n")
	}

	if len(result.FileErrors) > 0 {
		sb.WriteString("\n### Files not reviewed\n")
		for _, fe := range result.FileErrors {
			fmt.Fprintf(&sb, "- %s\n", fe)
		}
	}

	if result.Strategy != "" {
		fmt.Fprintf(&sb, "\n<sub>strategy: %s | tokens: %d</sub>\n",
			result.Strategy, result.TokensUsed)
	}

	out := sb.String()
	if len(out) > consts.MaxCommentLength {
		const marker = "\n\n_(truncated)_"
		out = out[:consts.MaxCommentLength-len(marker)] + marker
	}
	return out
}

func writeSeverityTable(sb *strings.Builder, counts model.SeverityCounts) {
	sb.WriteString("| Severity | Count |\n|---|---|\n")
	for _, sev := range severityOrder {
		if n := counts.Get(sev); n > 0 {
			fmt.Fprintf(sb, "| %s | %d |\n", sev, n)
		}
	}
	fmt.Fprintf(sb, "| **total** | **%d** |\n\n", counts.Total())
}

func writeTopIssues(sb *strings.Builder, issues []model.ReviewIssue) {
	sorted := make([]model.ReviewIssue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() < sorted[j].Severity.Rank()
	})

	sb.WriteString("### Findings\n")
	for i, issue := range sorted {
		if i >= maxListedIssues {
			fmt.Fprintf(sb, "- and %d more in the full result\n", len(sorted)-maxListedIssues)
			break
		}
		anchor := issue.FilePath
		if issue.LineNumber > 0 {
			anchor = fmt.Sprintf("%s:%d", issue.FilePath, issue.LineNumber)
		}
		fmt.Fprintf(sb, "- **%s** `%s` %s: %s\n", issue.Severity, issue.IssueType, anchor, issue.Message)
	}
}

// BuildInlineComment renders the body of one inline comment
func BuildInlineComment(issue *model.ReviewIssue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**[%s] %s**\n\n%s\n", issue.Severity, issue.IssueType, issue.Message)

	if fix := issue.SuggestedFix; fix != nil {
		if fix.Description != "" {
			fmt.Fprintf(&sb, "\n**Suggested fix:** %s\n", fix.Description)
		}
		if fix.Before != "" && fix.After != "" {
			fmt.Fprintf(&sb, "\nBefore:\n```\n%s\n```\nAfter:\n```\n%s\n```\n", fix.Before, fix.After)
		}
		if fix.Explanation != "" {
			fmt.Fprintf(&sb, "\n%s\n", fix.Explanation)
		}
	}

	out := sb.String()
	if len(out) > consts.MaxCommentLength {
		out = out[:consts.MaxCommentLength]
	}
	return out
}
