package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/diff"
	"github.com/pullwise/pullwise/internal/filetype"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// SystemPrompt is the reviewer instruction shared by every call
const SystemPrompt = `You are a senior code reviewer. Examine the provided changes and report
concrete, actionable findings. Respond with a single JSON object of the form:
{"issues": [{"severity": "critical|high|medium|low|info", "issue_type": "short_token",
"file_path": "path", "line_number": 0, "message": "finding",
"suggested_fix": {"description": "", "before": "", "after": "", "explanation": ""}}]}
Use line_number 0 for file-level findings. Report nothing speculative.`

// FileSummary is the per-file digest fed to the cross-file prompt
type FileSummary struct {
	Path     string
	Category filetype.Category
	Issues   []model.ReviewIssue
}

// BuildSinglePass builds one prompt covering every file. Calling it with an
// empty file list is a programming error.
func BuildSinglePass(files []model.FileChange, lc *model.LearningContext) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("single-pass prompt requires at least one file")
	}
	return assemble(files, lc, "Review every changed file below as one unit.")
}

// BuildGroup builds one prompt for a category bucket. An empty bucket
// returns an empty string and the caller skips the call.
func BuildGroup(category filetype.Category, files []model.FileChange, lc *model.LearningContext) string {
	if len(files) == 0 {
		logger.Warn("group prompt requested with no files",
			zap.String("category", string(category)))
		return ""
	}
	header := fmt.Sprintf("Review the following %s changes as one group.", category)
	p, err := assemble(files, lc, header)
	if err != nil {
		logger.Warn("group prompt build failed", zap.Error(err))
		return ""
	}
	return p
}

// BuildCrossFile builds the second-stage prompt over per-file summaries that
// contained blocking findings. An empty summary list returns an empty string.
func BuildCrossFile(summaries []FileSummary) string {
	if len(summaries) == 0 {
		logger.Warn("cross-file prompt requested with no summaries")
		return ""
	}

	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\nThe files below already carry serious per-file findings. ")
	sb.WriteString("Look only for cross-file problems: inconsistent contracts, broken callers, ")
	sb.WriteString("shared-state hazards, or security issues that span files.\n\n")

	for _, s := range summaries {
		fmt.Fprintf(&sb, "## %s (%s)\n", SanitizeField(s.Path, consts.MaxPromptPathLen), s.Category)
		for _, issue := range s.Issues {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n",
				issue.Severity,
				SanitizeField(issue.IssueType, consts.MaxIssueTypeLength),
				SanitizeField(issue.Message, consts.MaxMessageLength))
		}
		sb.WriteString("\n")
	}

	out := sb.String()
	if len(out) > consts.MaxPromptLength {
		out = out[:consts.MaxPromptLength]
	}
	return out
}

// assemble renders instructions, guidance, learning context, and diffs
func assemble(files []model.FileChange, lc *model.LearningContext, header string) (string, error) {
	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(header)
	sb.WriteString("\n\n")

	categories := make([]filetype.Category, 0, len(files))
	for i := range files {
		categories = append(categories, filetype.Category(files[i].Category))
	}
	if guidance := filetype.FormatBestPracticesForPrompt(categories, 5); guidance != "" {
		sb.WriteString("Guidance for the file types in this change:\n")
		sb.WriteString(guidance)
		sb.WriteString("\n\n")
	}

	if section := renderLearningSection(lc); section != "" {
		sb.WriteString(section)
		sb.WriteString("\n\n")
	}

	for i := range files {
		fc := &files[i]
		path := SanitizeField(fc.Path, consts.MaxPromptPathLen)
		fmt.Fprintf(&sb, "## File: %s (%s, %s)\n", path, fc.Kind, fc.Category)
		body := SanitizeField(diff.Render(*fc), 0)
		sb.WriteString("~~~diff\n")
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("~~~\n\n")
	}

	out := strings.TrimRight(sb.String(), "\n")
	if len(out) > consts.MaxPromptLength {
		return "", fmt.Errorf("prompt length %d exceeds cap %d", len(out), consts.MaxPromptLength)
	}
	return out, nil
}
