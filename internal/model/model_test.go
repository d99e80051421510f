package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() PREvent {
	return PREvent{
		EventType:      EventTypeCreated,
		PRID:           42,
		ProjectID:      "proj-1",
		ProjectName:    "Project One",
		RepositoryID:   "repo-1",
		RepositoryName: "repoA",
		Title:          "Add feature",
		AuthorEmail:    "dev@example.com",
		SourceBranch:   "refs/heads/feature/add-thing",
		TargetBranch:   "refs/heads/main",
		SourceCommit:   "abc123",
	}
}

func TestPREvent_Validate(t *testing.T) {
	e := validEvent()
	assert.NoError(t, e.Validate())
}

func TestPREvent_Validate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PREvent)
	}{
		{"empty title", func(e *PREvent) { e.Title = "   " }},
		{"oversized title", func(e *PREvent) { e.Title = strings.Repeat("x", 501) }},
		{"zero pr id", func(e *PREvent) { e.PRID = 0 }},
		{"negative pr id", func(e *PREvent) { e.PRID = -3 }},
		{"huge pr id", func(e *PREvent) { e.PRID = MaxPRID + 1 }},
		{"bad event type", func(e *PREvent) { e.EventType = "merged" }},
		{"non-hex commit", func(e *PREvent) { e.SourceCommit = "not-hex!" }},
		{"empty commit", func(e *PREvent) { e.SourceCommit = "" }},
		{"null byte in repo name", func(e *PREvent) { e.RepositoryName = "repo\x00A" }},
		{"bad source branch", func(e *PREvent) { e.SourceBranch = "refs/heads/a..b" }},
		{"bad target branch", func(e *PREvent) { e.TargetBranch = "main" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestValidateBranchRef(t *testing.T) {
	valid := []string{
		"refs/heads/main",
		"refs/heads/feature/my-branch",
		"refs/tags/v1.2.3",
		"refs/heads/fix.dotted",
	}
	for _, ref := range valid {
		assert.NoError(t, ValidateBranchRef(ref), ref)
	}

	invalid := []string{
		"",
		"main",
		"refs/heads/",
		"refs/heads/a..b",
		"refs/heads//double",
		"refs/heads/trailing/",
		"refs/remotes/origin/main",
		"refs/heads/with space",
		"refs/heads/ctl\x01char",
	}
	for _, ref := range invalid {
		assert.Error(t, ValidateBranchRef(ref), ref)
	}
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("src/app/main.py"))
	assert.NoError(t, ValidateFilePath("a/b.c"))

	assert.Error(t, ValidateFilePath(""))
	assert.Error(t, ValidateFilePath("a/../b"))
	assert.Error(t, ValidateFilePath("..\\windows\\style"))
	assert.Error(t, ValidateFilePath("nul\x00byte"))
	assert.Error(t, ValidateFilePath(strings.Repeat("a", 2001)))
}

func TestReviewIssue_Validate(t *testing.T) {
	issue := ReviewIssue{
		Severity:   SeverityHigh,
		IssueType:  "sql_injection",
		FilePath:   "app/main.py",
		LineNumber: 42,
		Message:    "Unsanitized input reaches the query.",
	}
	require.NoError(t, issue.Validate())

	// Newline collapsing
	issue.Message = "a\n\n\n\n\nb"
	require.NoError(t, issue.Validate())
	assert.Equal(t, "a\n\nb", issue.Message)

	// Oversized message is truncated, not rejected
	issue.Message = strings.Repeat("m", 6000)
	require.NoError(t, issue.Validate())
	assert.Len(t, issue.Message, 5000)

	bad := issue
	bad.Severity = "urgent"
	assert.Error(t, bad.Validate())

	bad = issue
	bad.LineNumber = -1
	assert.Error(t, bad.Validate())

	bad = issue
	bad.FilePath = "../escape"
	assert.Error(t, bad.Validate())
}

func TestReviewIssue_PostInline(t *testing.T) {
	tests := []struct {
		severity Severity
		line     int
		want     bool
	}{
		{SeverityCritical, 10, true},
		{SeverityHigh, 1, true},
		{SeverityCritical, 0, false}, // file-level, summary only
		{SeverityMedium, 10, false},
		{SeverityLow, 10, false},
		{SeverityInfo, 10, false},
	}
	for _, tt := range tests {
		issue := ReviewIssue{Severity: tt.severity, LineNumber: tt.line}
		assert.Equal(t, tt.want, issue.PostInline(), "%s line %d", tt.severity, tt.line)
	}
}

func TestReviewResult_Recount(t *testing.T) {
	r := ReviewResult{Issues: []ReviewIssue{
		{Severity: SeverityCritical},
		{Severity: SeverityMedium},
		{Severity: SeverityMedium},
		{Severity: SeverityInfo},
	}}
	r.Recount()

	assert.Equal(t, 1, r.Counts.Critical)
	assert.Equal(t, 2, r.Counts.Medium)
	assert.Equal(t, 1, r.Counts.Info)
	assert.Equal(t, 4, r.Counts.Total())
	assert.Equal(t, RecommendRequestChanges, r.Recommendation)

	r = ReviewResult{Issues: []ReviewIssue{{Severity: SeverityMedium}}}
	r.Recount()
	assert.Equal(t, RecommendComment, r.Recommendation)

	r = ReviewResult{Issues: []ReviewIssue{{Severity: SeverityLow}, {Severity: SeverityInfo}}}
	r.Recount()
	assert.Equal(t, RecommendApprove, r.Recommendation)

	r = ReviewResult{}
	r.Recount()
	assert.Equal(t, RecommendApprove, r.Recommendation)
}

func TestIdempotencyStatus_CanTransition(t *testing.T) {
	assert.True(t, IdempotencyPending.CanTransition(IdempotencyCompleted))
	assert.True(t, IdempotencyPending.CanTransition(IdempotencyFailed))
	assert.False(t, IdempotencyCompleted.CanTransition(IdempotencyFailed))
	assert.False(t, IdempotencyFailed.CanTransition(IdempotencyCompleted))
	assert.False(t, IdempotencyPending.CanTransition(IdempotencyPending))
}

func TestIdempotencyRecord_Validate(t *testing.T) {
	rec := IdempotencyRecord{
		Partition:    "2026-08-26",
		Fingerprint:  "abc",
		PRID:         42,
		Repository:   "repoA",
		SourceCommit: "abc123",
		Status:       IdempotencyPending,
		ExpiresAt:    time.Now().Add(48 * time.Hour),
	}
	assert.NoError(t, rec.Validate())

	bad := rec
	bad.Partition = "26-08-2026"
	assert.Error(t, bad.Validate())

	bad = rec
	bad.Status = "done"
	assert.Error(t, bad.Validate())

	bad = rec
	bad.ResultSummary = strings.Repeat("s", 1001)
	assert.Error(t, bad.Validate())
}

func TestCacheEntry_Validate(t *testing.T) {
	entry := CacheEntry{
		Repository:  "repoA",
		ContentHash: "deadbeef",
		ReviewJSON:  `{"issues":[],"tokens_used":100,"estimated_cost_usd":0.01,"counts":{},"recommendation":"approve"}`,
		ExpiresAt:   time.Now().Add(72 * time.Hour),
	}
	assert.NoError(t, entry.Validate())

	bad := entry
	bad.ReviewJSON = "{not json"
	assert.Error(t, bad.Validate())

	bad = entry
	bad.ReviewJSON = `{"tokens_used":-5}`
	assert.Error(t, bad.Validate())
}

func TestFeedbackRecord_Validate(t *testing.T) {
	rec := FeedbackRecord{
		Repository: "repoA",
		FeedbackID: "fb1",
		PRID:       42,
		ThreadID:   7,
		IssueType:  "sql_injection",
		Severity:   SeverityHigh,
		Kind:       FeedbackAccepted,
		OccurredAt: time.Now().UTC(),
	}
	assert.NoError(t, rec.Validate())

	bad := rec
	bad.ThreadID = 0
	assert.Error(t, bad.Validate())

	bad = rec
	bad.Kind = "maybe"
	assert.Error(t, bad.Validate())

	bad = rec
	bad.Severity = "urgent"
	assert.Error(t, bad.Validate())
}

func TestLearningContext(t *testing.T) {
	ctx := &LearningContext{Repository: "repoA"}
	assert.False(t, ctx.HasSufficientData())

	ctx.Stats.TotalFeedback = 5
	assert.True(t, ctx.HasSufficientData())

	var nilCtx *LearningContext
	assert.False(t, nilCtx.HasSufficientData())

	// Per-type example cap
	ctx.Examples = []FeedbackExample{
		{IssueType: "t", AcceptCount: 1},
		{IssueType: "t", AcceptCount: 1},
		{IssueType: "t", AcceptCount: 1},
		{IssueType: "t", AcceptCount: 1},
	}
	assert.Error(t, ctx.Validate())

	ctx.Examples = ctx.Examples[:3]
	assert.NoError(t, ctx.Validate())
}

func TestStringArrayRoundTrip(t *testing.T) {
	arr := StringArray{"python", "terraform"}
	v, err := arr.Value()
	require.NoError(t, err)

	var got StringArray
	require.NoError(t, got.Scan(v))
	assert.Equal(t, arr, got)

	var empty StringArray
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
