package output

import (
	"context"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// ThreadCreator is the slice of the platform client the poster needs
type ThreadCreator interface {
	CreateThread(ctx context.Context, repositoryID string, prID int, content string) (*git.Thread, error)
	CreateInlineThread(ctx context.Context, repositoryID string, prID int, filePath string, line int, content string) (*git.Thread, error)
}

// Poster publishes review results to the PR: one summary thread, plus
// inline threads for blocking line-anchored findings.
type Poster struct {
	client ThreadCreator
	dryRun bool
}

// NewPoster creates a poster. With dryRun set, nothing is published.
func NewPoster(client ThreadCreator, dryRun bool) *Poster {
	return &Poster{client: client, dryRun: dryRun}
}

// Post publishes the summary and inline comments. The summary failing is an
// error; individual inline failures log and continue.
func (p *Poster) Post(ctx context.Context, event *model.PREvent, result *model.ReviewResult) error {
	if p.dryRun {
		logger.Info("Dry run, skipping comment posting",
			zap.Int(logger.FieldPRID, event.PRID),
			zap.String(logger.FieldRepository, event.RepositoryName))
		return nil
	}

	summary := BuildSummary(result)
	if _, err := p.client.CreateThread(ctx, event.RepositoryID, event.PRID, summary); err != nil {
		return err
	}

	posted, failed := 0, 0
	for i := range result.Issues {
		issue := &result.Issues[i]
		if !issue.PostInline() {
			continue
		}
		body := BuildInlineComment(issue)
		if _, err := p.client.CreateInlineThread(ctx, event.RepositoryID, event.PRID,
			issue.FilePath, issue.LineNumber, body); err != nil {
			failed++
			logger.Warn("Inline comment failed",
				zap.Int(logger.FieldPRID, event.PRID),
				zap.String("path", logger.TruncateField(issue.FilePath)),
				zap.Int("line", issue.LineNumber),
				zap.Error(err))
			continue
		}
		posted++
	}

	logger.Info("Review comments posted",
		zap.Int(logger.FieldPRID, event.PRID),
		zap.String(logger.FieldRepository, event.RepositoryName),
		zap.Int("inline_posted", posted),
		zap.Int("inline_failed", failed))
	return nil
}
