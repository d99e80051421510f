package llm

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
)

// rawIssue mirrors the JSON shape the model is asked to produce
type rawIssue struct {
	Severity     string              `json:"severity"`
	IssueType    string              `json:"issue_type"`
	FilePath     string              `json:"file_path"`
	LineNumber   int                 `json:"line_number"`
	Message      string              `json:"message"`
	SuggestedFix *model.SuggestedFix `json:"suggested_fix,omitempty"`
}

type rawResponse struct {
	Issues []rawIssue `json:"issues"`
}

// ParseReviewResponse extracts and validates the issues JSON from model
// output. Reasoning models wrap the object in prose or code fences; the
// first well-formed JSON object wins. Issues failing validation are dropped
// individually, with error logs capped.
func ParseReviewResponse(content string) (*model.ReviewResult, error) {
	payload := extractJSONObject(content)
	if payload == "" {
		return nil, pkgerrors.New(pkgerrors.ErrCodeAIIntegrity, "no JSON object in model response")
	}

	var raw rawResponse
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeAIIntegrity, "model response does not parse", err)
	}

	result := &model.ReviewResult{}
	dropped, logged := 0, 0
	for i := range raw.Issues {
		issue := model.ReviewIssue{
			Severity:     model.Severity(strings.ToLower(raw.Issues[i].Severity)),
			IssueType:    raw.Issues[i].IssueType,
			FilePath:     raw.Issues[i].FilePath,
			LineNumber:   raw.Issues[i].LineNumber,
			Message:      raw.Issues[i].Message,
			SuggestedFix: raw.Issues[i].SuggestedFix,
		}
		if err := issue.Validate(); err != nil {
			dropped++
			if logged < consts.MaxLoggedErrors {
				logger.Warn("Dropping invalid model issue", zap.Int("index", i), zap.Error(err))
				logged++
			}
			continue
		}
		if len(result.Issues) < consts.MaxIssuesPerReview {
			result.Issues = append(result.Issues, issue)
		}
	}
	if dropped > 0 {
		logger.Warn("Model issues failed validation",
			zap.Int("dropped", dropped), zap.Int("kept", len(result.Issues)))
	}

	result.Recount()
	return result, nil
}

// extractJSONObject returns the first balanced top-level JSON object,
// tolerating code fences and surrounding prose.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)

	// Strip a markdown fence if the whole payload is fenced
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
