// Package feedback turns developer reactions on past review comments into
// per-repository learning context for future prompts.
package feedback

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/store"
	"github.com/pullwise/pullwise/pkg/idgen"
	"github.com/pullwise/pullwise/pkg/logger"
)

// ThreadLister is the slice of the platform client the harvester needs
type ThreadLister interface {
	ListThreads(ctx context.Context, repositoryID string, prID int) ([]git.Thread, error)
}

// inlineHeader matches the first line of comments this service posts inline
var inlineHeader = regexp.MustCompile(`^\*\*\[(critical|high|medium|low|info)\] ([\w\-]+)\*\*`)

// harvestWindow is how far back the harvester looks on each run
const harvestWindow = 24 * time.Hour

// Harvester walks recent review history, fetches the PR threads, and
// persists one feedback record per reviewed comment.
type Harvester struct {
	store  store.Store
	client ThreadLister
}

// NewHarvester creates a harvester
func NewHarvester(s store.Store, client ThreadLister) *Harvester {
	return &Harvester{store: s, client: client}
}

// CollectRecentFeedback processes reviews from the last 24 hours and
// returns the number of feedback entries written. Per-PR and per-thread
// failures log and continue.
func (h *Harvester) CollectRecentFeedback(ctx context.Context) (int, error) {
	since := model.ISOTime(time.Now().Add(-harvestWindow))
	rows, err := h.store.History().ListSince(since)
	if err != nil {
		return 0, err
	}

	written := 0
	touched := make(map[string]bool)
	for i := range rows {
		n := h.harvestPR(ctx, &rows[i])
		written += n
		if n > 0 {
			touched[rows[i].Repository] = true
		}
	}

	logger.Info("Feedback harvest completed",
		zap.Int("reviews_scanned", len(rows)),
		zap.Int("entries_written", written),
		zap.Int("repositories", len(touched)))
	return written, nil
}

func (h *Harvester) harvestPR(ctx context.Context, row *model.ReviewHistory) int {
	threads, err := h.client.ListThreads(ctx, row.RepositoryID, row.PRID)
	if err != nil {
		logger.Warn("Thread fetch failed, skipping PR",
			zap.String(logger.FieldRepository, row.Repository),
			zap.Int(logger.FieldPRID, row.PRID),
			zap.Error(err))
		return 0
	}

	written := 0
	for i := range threads {
		rec, ok := h.recordFromThread(row, &threads[i])
		if !ok {
			continue
		}
		if err := h.store.Feedback().Upsert(rec); err != nil {
			logger.Warn("Feedback upsert failed, skipping entry",
				zap.String(logger.FieldRepository, row.Repository),
				zap.Int("thread_id", rec.ThreadID),
				zap.Error(err))
			continue
		}
		written++
	}
	return written
}

// recordFromThread converts one of our inline threads into a feedback
// record. Threads this service did not create are ignored.
func (h *Harvester) recordFromThread(row *model.ReviewHistory, thread *git.Thread) (*model.FeedbackRecord, bool) {
	if thread.ID <= 0 || len(thread.Comments) == 0 {
		return nil, false
	}
	first := &thread.Comments[0]
	m := inlineHeader.FindStringSubmatch(first.Content)
	if m == nil {
		return nil, false
	}

	kind := classifyThread(thread)
	rec := &model.FeedbackRecord{
		Repository: row.Repository,
		FeedbackID: idgen.NewFeedbackID(row.PRID, thread.ID, first.ID),
		PRID:       row.PRID,
		ThreadID:   thread.ID,
		CommentID:  first.ID,
		IssueType:  m[2],
		Severity:   model.Severity(m[1]),
		Kind:       kind,
		Author:     resolveAuthor(thread),
		OccurredAt: time.Now().UTC(),
		Suggestion: first.Content,
	}
	if thread.ThreadContext != nil {
		rec.FilePath = thread.ThreadContext.FilePath
	}
	if err := rec.Validate(); err != nil {
		logger.Warn("Invalid feedback record, skipping",
			zap.Int("thread_id", thread.ID), zap.Error(err))
		return nil, false
	}
	return rec, true
}

// classifyThread maps the thread state onto a feedback kind. Explicit
// status wins; reactions on the review comment break ties; everything else
// counts as ignored.
func classifyThread(thread *git.Thread) model.FeedbackKind {
	switch thread.Status {
	case "fixed", "resolved", "closed":
		return model.FeedbackAccepted
	case "wontFix", "byDesign":
		return model.FeedbackRejected
	}
	if len(thread.Comments) > 0 && len(thread.Comments[0].UsersLiked) > 0 {
		return model.FeedbackAccepted
	}
	return model.FeedbackIgnored
}

// resolveAuthor picks the first human reply's author, falling back to the
// thread's resolver being unknown.
func resolveAuthor(thread *git.Thread) string {
	for i := 1; i < len(thread.Comments); i++ {
		if thread.Comments[i].Author.UniqueName != "" {
			return thread.Comments[i].Author.UniqueName
		}
	}
	return ""
}
