package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/git"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
)

func changeOf(path string, lines int) model.FileChange {
	section := model.ChangedSection{BaseStart: 1, TargetStart: 1, TargetCount: lines}
	for i := 0; i < lines; i++ {
		section.Lines = append(section.Lines, model.DiffLine{Kind: model.LineAdd, Text: fmt.Sprintf("line %d", i)})
	}
	return model.FileChange{
		Path:     path,
		Kind:     model.ChangeKindEdit,
		Category: "python",
		Sections: []model.ChangedSection{section},
	}
}

func TestSelectStrategy_Tiers(t *testing.T) {
	small := []model.FileChange{changeOf("a.py", 10), changeOf("b.py", 10)}
	s, _ := SelectStrategy(small)
	assert.Equal(t, model.StrategySinglePass, s)

	// six files exceed the single-pass file bound regardless of size
	var medium []model.FileChange
	for i := 0; i < 6; i++ {
		medium = append(medium, changeOf(fmt.Sprintf("f%d.py", i), 5))
	}
	s, _ = SelectStrategy(medium)
	assert.Equal(t, model.StrategyChunked, s)

	// sixteen files exceed the chunked file bound
	var large []model.FileChange
	for i := 0; i < 16; i++ {
		large = append(large, changeOf(fmt.Sprintf("f%d.py", i), 5))
	}
	s, _ = SelectStrategy(large)
	assert.Equal(t, model.StrategyHierarchical, s)

	// a small file count with a huge token estimate escalates too
	huge := []model.FileChange{changeOf("a.py", 20000)}
	s, total := SelectStrategy(huge)
	assert.Equal(t, model.StrategyHierarchical, s)
	assert.Greater(t, total, consts.ChunkedMaxTokens)
}

func TestSelectStrategy_Monotone(t *testing.T) {
	rank := map[model.Strategy]int{
		model.StrategySinglePass:   0,
		model.StrategyChunked:      1,
		model.StrategyHierarchical: 2,
	}
	var files []model.FileChange
	prev := 0
	for i := 0; i < 20; i++ {
		files = append(files, changeOf(fmt.Sprintf("f%02d.py", i), 50))
		s, _ := SelectStrategy(files)
		require.GreaterOrEqual(t, rank[s], prev, "strategy regressed at %d files", i+1)
		prev = rank[s]
	}
}

func TestGroupByCategory_Deterministic(t *testing.T) {
	files := []model.FileChange{
		changeOf("z.py", 1),
		changeOf("a.go", 1),
		changeOf("b.py", 1),
	}
	files[1].Category = "go"

	groups := GroupByCategory(files)
	require.Len(t, groups, 2)
	assert.Equal(t, "go", string(groups[0].Category))
	assert.Equal(t, "python", string(groups[1].Category))
	assert.Equal(t, "b.py", groups[1].Files[0].Path)
	assert.Equal(t, "z.py", groups[1].Files[1].Path)
}

func issueOf(path string, line int, issueType string, sev model.Severity) model.ReviewIssue {
	return model.ReviewIssue{
		Severity: sev, IssueType: issueType, FilePath: path,
		LineNumber: line, Message: "m",
	}
}

func TestAggregate_DedupAndCaps(t *testing.T) {
	a := &model.ReviewResult{
		Issues:     []model.ReviewIssue{issueOf("f.py", 3, "sql_injection", model.SeverityCritical)},
		TokensUsed: 100, EstimatedCostUSD: 0.5,
	}
	b := &model.ReviewResult{
		Issues: []model.ReviewIssue{
			issueOf("f.py", 3, "sql_injection", model.SeverityHigh), // duplicate key, first wins
			issueOf("g.py", 0, "style", model.SeverityLow),
		},
		TokensUsed: 200, EstimatedCostUSD: 0.25,
	}

	out := Aggregate([]*model.ReviewResult{a, nil, b})
	require.Len(t, out.Issues, 2)
	assert.Equal(t, model.SeverityCritical, out.Issues[0].Severity)
	assert.Equal(t, 300, out.TokensUsed)
	assert.InDelta(t, 0.75, out.EstimatedCostUSD, 1e-9)
	assert.Equal(t, model.RecommendRequestChanges, out.Recommendation)
}

func TestAggregate_SingleResultIsStable(t *testing.T) {
	r := &model.ReviewResult{
		Issues:     []model.ReviewIssue{issueOf("f.py", 1, "t", model.SeverityMedium)},
		TokensUsed: 42, EstimatedCostUSD: 0.1,
	}
	r.Recount()
	out := Aggregate([]*model.ReviewResult{r})
	assert.Equal(t, r.Issues, out.Issues)
	assert.Equal(t, r.TokensUsed, out.TokensUsed)
	assert.Equal(t, r.Recommendation, out.Recommendation)
}

func TestAggregate_IssueCapAndClamps(t *testing.T) {
	var partials []*model.ReviewResult
	for i := 0; i < 4; i++ {
		r := &model.ReviewResult{TokensUsed: consts.MaxAggregatedTokens, EstimatedCostUSD: consts.MaxAggregatedCost}
		for j := 0; j < 20; j++ {
			r.Issues = append(r.Issues, issueOf(fmt.Sprintf("f%d.py", i), j+1, "t", model.SeverityLow))
		}
		partials = append(partials, r)
	}
	out := Aggregate(partials)
	assert.Len(t, out.Issues, consts.MaxIssuesPerReview)
	assert.Equal(t, consts.MaxAggregatedTokens, out.TokensUsed)
	assert.InDelta(t, consts.MaxAggregatedCost, out.EstimatedCostUSD, 1e-9)
	require.NoError(t, out.Validate())
}

type fakeGit struct {
	mu      sync.Mutex
	paths   []string
	diffErr map[string]error
}

func (f *fakeGit) GetPullRequest(_ context.Context, _ string, prID int) (*git.PullRequest, error) {
	return &git.PullRequest{
		PullRequestID:         prID,
		LastMergeSourceCommit: git.CommitRef{CommitID: "abc123"},
		LastMergeTargetCommit: git.CommitRef{CommitID: "def456"},
	}, nil
}

func (f *fakeGit) ListIterationChanges(context.Context, string, int) ([]git.IterationChange, error) {
	var out []git.IterationChange
	for _, p := range f.paths {
		ch := git.IterationChange{ChangeType: "edit"}
		ch.Item.Path = p
		out = append(out, ch)
	}
	return out, nil
}

func (f *fakeGit) GetDiff(_ context.Context, _ string, path string, _, _ git.Version, kind model.ChangeKind) (*model.FileChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.diffErr[path]; err != nil {
		return nil, err
	}
	fc := changeOf(path, 5)
	fc.Category = ""
	return &fc, nil
}

type fakeReviewer struct {
	mu     sync.Mutex
	calls  int
	issues []model.ReviewIssue
	err    error
}

func (f *fakeReviewer) Review(_ context.Context, prompt string) (*model.ReviewResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r := &model.ReviewResult{Issues: f.issues, TokensUsed: 100, EstimatedCostUSD: 0.01}
	r.Recount()
	return r, nil
}

func (f *fakeReviewer) Model() string             { return "gpt-4o" }
func (f *fakeReviewer) TemperaturePolicy() string { return "deterministic" }

func (f *fakeReviewer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu      sync.Mutex
	results []*model.ReviewResult
	err     error
}

func (f *fakePublisher) Post(_ context.Context, _ *model.PREvent, result *model.ReviewResult) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.results = append(f.results, result)
	f.mu.Unlock()
	return nil
}

func newTestEngine(t *testing.T, g GitClient, r Reviewer, p Publisher) (*Engine, store.Store, func()) {
	t.Helper()
	s, cleanup := store.SetupTestDB(t)
	e := NewEngine(Config{
		Store:     s,
		Git:       g,
		Reviewer:  r,
		Publisher: p,
		Cache:     reliability.NewResponseCache(s.Cache(), 0),
		Dedup:     reliability.NewDeduplicator(s.Idempotency()),
		Breakers:  reliability.NewBreakerManager(0, 0),
	})
	return e, s, cleanup
}

func eventOf(prID int, commit string) *model.PREvent {
	return &model.PREvent{
		EventType:      model.EventTypeCreated,
		PRID:           prID,
		RepositoryID:   "repo-1",
		RepositoryName: "repoA",
		Title:          "add feature",
		SourceBranch:   "refs/heads/feature",
		TargetBranch:   "refs/heads/main",
		SourceCommit:   commit,
	}
}

func TestHandlePREvent_SinglePass(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py", "/app/b.py"}}
	r := &fakeReviewer{issues: []model.ReviewIssue{issueOf("app/a.py", 3, "sql_injection", model.SeverityCritical)}}
	p := &fakePublisher{}
	e, s, cleanup := newTestEngine(t, g, r, p)
	defer cleanup()

	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(7, "aaa111")))

	assert.Equal(t, 1, r.callCount())
	require.Len(t, p.results, 1)
	assert.Equal(t, model.StrategySinglePass, p.results[0].Strategy)
	assert.Equal(t, model.RecommendRequestChanges, p.results[0].Recommendation)

	h, err := s.History().Get("repoA", 7)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, 2, h.FilesReviewed)
	assert.Equal(t, []string{"python"}, []string(h.FileCategories))
	assert.Equal(t, string(model.StrategySinglePass), h.StrategyUsed)
}

func TestHandlePREvent_DuplicateCoalesces(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py"}}
	r := &fakeReviewer{}
	e, _, cleanup := newTestEngine(t, g, r, &fakePublisher{})
	defer cleanup()

	ev := eventOf(7, "aaa111")
	require.NoError(t, e.HandlePREvent(context.Background(), ev))

	// a second delivery for the same commit, even with a different event
	// type, is a duplicate
	ev2 := eventOf(7, "aaa111")
	ev2.EventType = model.EventTypeUpdated
	err := e.HandlePREvent(context.Background(), ev2)
	appErr, ok := pkgerrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, pkgerrors.ErrCodeDuplicateEvent, appErr.Code)
	assert.Equal(t, 1, r.callCount())

	dup, err := e.CheckDuplicate(ev2)
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, model.IdempotencyCompleted, dup.Status)
	assert.Contains(t, dup.ResultSummary, "recommendation=")

	// a new commit on the same PR is fresh work
	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(7, "bbb222")))
}

func TestHandlePREvent_CacheServesRepeatPrompt(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py"}}
	r := &fakeReviewer{}
	e, _, cleanup := newTestEngine(t, g, r, &fakePublisher{})
	defer cleanup()

	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(7, "aaa111")))
	// different commit, identical diff content: the prompt hashes the same
	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(7, "bbb222")))
	assert.Equal(t, 1, r.callCount())
}

func TestHandlePREvent_ReviewerFailureMarksFailed(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py"}}
	r := &fakeReviewer{err: errors.New("model exploded")}
	e, s, cleanup := newTestEngine(t, g, r, &fakePublisher{})
	defer cleanup()

	err := e.HandlePREvent(context.Background(), eventOf(7, "aaa111"))
	require.Error(t, err)

	dedup := reliability.NewDeduplicator(s.Idempotency())
	fp := dedup.Fingerprint(eventOf(7, "aaa111"))
	rec, gerr := s.Idempotency().GetByFingerprint(fp)
	require.NoError(t, gerr)
	require.NotNil(t, rec)
	assert.Equal(t, model.IdempotencyFailed, rec.Status)

	// a failed review does not block the duplicate check
	dup, cerr := e.CheckDuplicate(eventOf(7, "aaa111"))
	require.NoError(t, cerr)
	assert.Nil(t, dup)
}

func TestHandlePREvent_FailedReviewRetriesOnRedelivery(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py"}}
	r := &fakeReviewer{err: errors.New("model exploded")}
	e, s, cleanup := newTestEngine(t, g, r, &fakePublisher{})
	defer cleanup()

	ev := eventOf(7, "aaa111")
	require.Error(t, e.HandlePREvent(context.Background(), ev))

	// the platform redelivers the same webhook; the retry reclaims the
	// failed record and completes
	r.mu.Lock()
	r.err = nil
	r.mu.Unlock()
	require.NoError(t, e.HandlePREvent(context.Background(), ev))
	assert.Equal(t, 2, r.callCount())

	dedup := reliability.NewDeduplicator(s.Idempotency())
	rec, err := dedup.Check(dedup.Fingerprint(ev))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.IdempotencyCompleted, rec.Status)
}

func TestHandlePREvent_DiffFailuresBecomeFileErrors(t *testing.T) {
	g := &fakeGit{
		paths:   []string{"/app/a.py", "/app/broken.py"},
		diffErr: map[string]error{"/app/broken.py": errors.New("404")},
	}
	p := &fakePublisher{}
	e, _, cleanup := newTestEngine(t, g, &fakeReviewer{}, p)
	defer cleanup()

	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(7, "aaa111")))
	require.Len(t, p.results, 1)
	require.Len(t, p.results[0].FileErrors, 1)
	assert.Contains(t, p.results[0].FileErrors[0], "broken.py")
}

func TestHandlePREvent_Hierarchical(t *testing.T) {
	var paths []string
	for i := 0; i < consts.ChunkedMaxFiles+1; i++ {
		paths = append(paths, fmt.Sprintf("/app/f%02d.py", i))
	}
	g := &fakeGit{paths: paths}
	r := &fakeReviewer{issues: []model.ReviewIssue{issueOf("app/f00.py", 2, "secrets", model.SeverityHigh)}}
	p := &fakePublisher{}
	e, _, cleanup := newTestEngine(t, g, r, p)
	defer cleanup()

	require.NoError(t, e.HandlePREvent(context.Background(), eventOf(9, "ccc333")))
	require.Len(t, p.results, 1)
	assert.Equal(t, model.StrategyHierarchical, p.results[0].Strategy)
	// one call per file plus the cross-file pass
	assert.Equal(t, len(paths)+1, r.callCount())
}

func TestMapChangeKind(t *testing.T) {
	assert.Equal(t, model.ChangeKindAdd, mapChangeKind("add"))
	assert.Equal(t, model.ChangeKindEdit, mapChangeKind("edit"))
	assert.Equal(t, model.ChangeKindDelete, mapChangeKind("delete"))
	assert.Equal(t, model.ChangeKindRename, mapChangeKind("edit, rename"))
}

func TestHandlePREvent_Timeout(t *testing.T) {
	g := &fakeGit{paths: []string{"/app/a.py"}}
	e, _, cleanup := newTestEngine(t, g, &fakeReviewer{}, &fakePublisher{})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	err := e.HandlePREvent(ctx, eventOf(7, "aaa111"))
	assert.Error(t, err)
}
