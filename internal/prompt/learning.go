package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// renderLearningSection turns repository feedback into prompt text. Contexts
// without enough evidence, or failing structural validation, are dropped and
// the prompt is built without them.
func renderLearningSection(lc *model.LearningContext) string {
	if !lc.HasSufficientData() {
		return ""
	}
	if err := lc.Validate(); err != nil {
		logger.Warn("dropping invalid learning context",
			zap.String(logger.FieldRepository, lc.Repository),
			zap.Error(err))
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Feedback from this repository's developers on past reviews:\n")
	fmt.Fprintf(&sb, "Accepted %d of %d findings (%.0f%%).\n",
		lc.Stats.Accepted, lc.Stats.TotalFeedback, lc.Stats.AcceptRate*100)

	if len(lc.Examples) > 0 {
		sb.WriteString("\nFindings this team acted on (use as calibration):\n")
		for _, ex := range lc.Examples {
			fmt.Fprintf(&sb, "- [%s] %s", ex.Severity,
				SanitizeField(ex.IssueType, consts.MaxIssueTypeLength))
			if ex.Suggestion != "" {
				fmt.Fprintf(&sb, ": %s",
					SanitizeField(ex.Suggestion, consts.MaxExampleSuggestionLength))
			}
			sb.WriteString("\n")
			if ex.CodeSnippet != "" {
				fmt.Fprintf(&sb, "  Context: %s\n",
					SanitizeField(ex.CodeSnippet, consts.MaxExampleSnippetLength))
			}
		}
	}

	if len(lc.RejectionPatterns) > 0 {
		sb.WriteString("\nFinding types this team consistently rejects (avoid unless clearly warranted):\n")
		for _, p := range lc.RejectionPatterns {
			fmt.Fprintf(&sb, "- %s (rejected %d times)",
				SanitizeField(p.IssueType, consts.MaxIssueTypeLength), p.RejectionCount)
			if p.Reason != "" {
				fmt.Fprintf(&sb, ": %s", SanitizeField(p.Reason, consts.MaxMessageLength))
			}
			sb.WriteString("\n")
		}
	}

	out := sb.String()
	if len(out) > consts.MaxLearningSectionLength {
		out = out[:consts.MaxLearningSectionLength]
	}
	return out
}
