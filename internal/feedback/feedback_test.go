package feedback

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/store"
)

type fakeThreadLister struct {
	threads map[string][]git.Thread
	errs    map[string]error
	calls   int
}

func (f *fakeThreadLister) ListThreads(_ context.Context, repositoryID string, prID int) ([]git.Thread, error) {
	f.calls++
	key := fmt.Sprintf("%s/%d", repositoryID, prID)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.threads[key], nil
}

func inlineThread(id int, status, severity, issueType string, liked int) git.Thread {
	t := git.Thread{
		ID:     id,
		Status: status,
		Comments: []git.Comment{{
			ID:      id * 10,
			Content: fmt.Sprintf("**[%s] %s**\n\nfinding body", severity, issueType),
			Author:  git.Identity{UniqueName: "pullwise@service"},
		}},
		ThreadContext: &git.ThreadContext{FilePath: "/app/db.py"},
	}
	for i := 0; i < liked; i++ {
		t.Comments[0].UsersLiked = append(t.Comments[0].UsersLiked, git.Identity{UniqueName: fmt.Sprintf("dev%d@corp", i)})
	}
	return t
}

func seedHistory(t *testing.T, s store.Store, repo, repoID string, prID int, reviewedAt time.Time) {
	t.Helper()
	require.NoError(t, s.History().Upsert(&model.ReviewHistory{
		Repository:   repo,
		RepositoryID: repoID,
		PRID:         prID,
		ReviewedAt:   model.ISOTime(reviewedAt),
	}))
}

func TestHarvester_CollectRecentFeedback(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	seedHistory(t, s, "repoA", "repo-1", 42, time.Now())

	lister := &fakeThreadLister{threads: map[string][]git.Thread{
		"repo-1/42": {
			inlineThread(1, "fixed", "critical", "sql_injection", 0),
			inlineThread(2, "wontFix", "medium", "style", 0),
			inlineThread(3, "active", "high", "secrets", 2),
			inlineThread(4, "active", "low", "naming", 0),
			// not one of ours, no header
			{ID: 5, Status: "active", Comments: []git.Comment{{ID: 50, Content: "lgtm"}}},
		},
	}}

	h := NewHarvester(s, lister)
	n, err := h.CollectRecentFeedback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	counts, err := s.Feedback().CountByRepository("repoA")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[model.FeedbackAccepted]) // fixed + liked
	assert.Equal(t, int64(1), counts[model.FeedbackRejected])
	assert.Equal(t, int64(1), counts[model.FeedbackIgnored])
}

func TestHarvester_RerunUpsertsInsteadOfDuplicating(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	seedHistory(t, s, "repoA", "repo-1", 42, time.Now())
	lister := &fakeThreadLister{threads: map[string][]git.Thread{
		"repo-1/42": {inlineThread(1, "active", "high", "secrets", 0)},
	}}
	h := NewHarvester(s, lister)

	_, err := h.CollectRecentFeedback(context.Background())
	require.NoError(t, err)

	// the developer resolves the thread; a later run flips the kind in place
	lister.threads["repo-1/42"] = []git.Thread{inlineThread(1, "fixed", "high", "secrets", 0)}
	_, err = h.CollectRecentFeedback(context.Background())
	require.NoError(t, err)

	recs, err := s.Feedback().ListByRepository("repoA", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.FeedbackAccepted, recs[0].Kind)
}

func TestHarvester_SkipsOldReviewsAndFailedPRs(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	seedHistory(t, s, "repoA", "repo-1", 1, time.Now().Add(-48*time.Hour))
	seedHistory(t, s, "repoA", "repo-1", 2, time.Now())
	seedHistory(t, s, "repoA", "repo-1", 3, time.Now())

	lister := &fakeThreadLister{
		threads: map[string][]git.Thread{
			"repo-1/1": {inlineThread(1, "fixed", "high", "old", 0)},
			"repo-1/3": {inlineThread(2, "fixed", "high", "fresh", 0)},
		},
		errs: map[string]error{"repo-1/2": errors.New("platform down")},
	}

	h := NewHarvester(s, lister)
	n, err := h.CollectRecentFeedback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// the stale PR was never fetched
	assert.Equal(t, 2, lister.calls)
}

// flakyHistory fails ListSince a fixed number of times before recovering
type flakyHistory struct {
	store.HistoryStore
	failures int
	calls    int
}

func (f *flakyHistory) ListSince(isoTime string) ([]model.ReviewHistory, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("database is locked")
	}
	return f.HistoryStore.ListSince(isoTime)
}

type flakyStore struct {
	store.Store
	history *flakyHistory
}

func (f *flakyStore) History() store.HistoryStore { return f.history }

func TestService_RunRetriesTransientFailures(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	seedHistory(t, s, "repoA", "repo-1", 42, time.Now())
	lister := &fakeThreadLister{threads: map[string][]git.Thread{
		"repo-1/42": {inlineThread(1, "fixed", "high", "secrets", 0)},
	}}

	fh := &flakyHistory{HistoryStore: s.History(), failures: 2}
	svc := NewService(NewHarvester(&flakyStore{Store: s, history: fh}, lister))
	svc.SetRetryPolicy(3, time.Millisecond)

	svc.RunOnce()

	// two failed attempts, then the third succeeds and harvests the thread
	assert.Equal(t, 3, fh.calls)
	counts, err := s.Feedback().CountByRepository("repoA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.FeedbackAccepted])
}

func TestService_RunGivesUpAfterMaxRetries(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	fh := &flakyHistory{HistoryStore: s.History(), failures: 100}
	svc := NewService(NewHarvester(&flakyStore{Store: s, history: fh}, &fakeThreadLister{}))
	svc.SetRetryPolicy(2, time.Millisecond)

	svc.RunOnce()

	// the initial attempt plus two retries, then the run gives up
	assert.Equal(t, 3, fh.calls)
}

func TestClassifyThread(t *testing.T) {
	tests := []struct {
		status string
		liked  int
		want   model.FeedbackKind
	}{
		{"fixed", 0, model.FeedbackAccepted},
		{"resolved", 0, model.FeedbackAccepted},
		{"closed", 0, model.FeedbackAccepted},
		{"wontFix", 3, model.FeedbackRejected}, // explicit status beats likes
		{"byDesign", 0, model.FeedbackRejected},
		{"active", 1, model.FeedbackAccepted},
		{"active", 0, model.FeedbackIgnored},
		{"", 0, model.FeedbackIgnored},
	}
	for _, tt := range tests {
		th := inlineThread(1, tt.status, "high", "secrets", tt.liked)
		assert.Equal(t, tt.want, classifyThread(&th), "status=%q liked=%d", tt.status, tt.liked)
	}
}

func seedFeedback(t *testing.T, s store.Store, issueType string, kind model.FeedbackKind, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Feedback().Upsert(&model.FeedbackRecord{
			Repository: "repoA",
			FeedbackID: fmt.Sprintf("%s-%s-%d", issueType, kind, i),
			PRID:       1,
			ThreadID:   i + 1,
			IssueType:  issueType,
			Severity:   model.SeverityHigh,
			Kind:       kind,
			OccurredAt: time.Now().Add(-time.Duration(i) * time.Hour),
			Suggestion: "use parameterized queries",
		}))
	}
}

func TestBuildLearningContext(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	// sql_injection: 5 accepted, 0 rejected -> example source
	seedFeedback(t, s, "sql_injection", model.FeedbackAccepted, 5)
	// style: 1 accepted, 4 rejected -> below quality bar, rejection pattern
	seedFeedback(t, s, "style", model.FeedbackAccepted, 1)
	seedFeedback(t, s, "style", model.FeedbackRejected, 4)
	// naming: 2 rejected -> below the pattern threshold
	seedFeedback(t, s, "naming", model.FeedbackRejected, 2)

	lc, err := BuildLearningContext(s, "repoA")
	require.NoError(t, err)
	require.NoError(t, lc.Validate())

	assert.True(t, lc.HasSufficientData())
	assert.Equal(t, 12, lc.Stats.TotalFeedback)
	assert.InDelta(t, 0.5, lc.Stats.AcceptRate, 1e-9)

	require.NotEmpty(t, lc.Examples)
	for _, ex := range lc.Examples {
		assert.Equal(t, "sql_injection", ex.IssueType)
	}
	assert.LessOrEqual(t, len(lc.Examples), consts.MaxExamplesPerIssueType)

	require.Len(t, lc.RejectionPatterns, 1)
	assert.Equal(t, "style", lc.RejectionPatterns[0].IssueType)
	assert.Equal(t, 4, lc.RejectionPatterns[0].RejectionCount)
}

func TestBuildLearningContext_EmptyRepository(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	lc, err := BuildLearningContext(s, "empty")
	require.NoError(t, err)
	assert.False(t, lc.HasSufficientData())
	assert.Empty(t, lc.Examples)
}

func TestBuildLearningContext_CapsTotalExamples(t *testing.T) {
	s, cleanup := store.SetupTestDB(t)
	defer cleanup()

	for i := 0; i < consts.MaxTotalExamplesInPrompt; i++ {
		seedFeedback(t, s, fmt.Sprintf("type_%02d", i), model.FeedbackAccepted, 4)
	}

	lc, err := BuildLearningContext(s, "repoA")
	require.NoError(t, err)
	assert.Len(t, lc.Examples, consts.MaxTotalExamplesInPrompt)
	require.NoError(t, lc.Validate())
}
