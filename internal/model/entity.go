package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/pullwise/pullwise/consts"
)

// StringArray is a custom type for storing string arrays in SQLite
type StringArray []string

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(s)
	return string(data), err
}

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	}
	return json.Unmarshal(bytes, s)
}

// datePartitionPattern matches YYYY-MM-DD idempotency partitions
var datePartitionPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IdempotencyRecord is one webhook-delivery dedup row.
// Partition is the delivery date (YYYY-MM-DD), row key is the request
// fingerprint; rows expire 48 hours after creation.
type IdempotencyRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Partition     string            `gorm:"column:partition_date;size:10;not null;index;uniqueIndex:idx_idem_part_fp,priority:1" json:"partition"`
	Fingerprint   string            `gorm:"size:64;not null;uniqueIndex:idx_idem_part_fp,priority:2" json:"fingerprint"`
	PRID          int               `gorm:"not null" json:"pr_id"`
	Repository    string            `gorm:"size:255;not null" json:"repository"`
	SourceCommit  string            `gorm:"size:64;not null" json:"source_commit"`
	Status        IdempotencyStatus `gorm:"size:20;not null;default:pending" json:"status"`
	ResultSummary string            `gorm:"size:1000" json:"result_summary,omitempty"`
	ExpiresAt     time.Time         `gorm:"index" json:"expires_at"`
}

// Validate checks IdempotencyRecord invariants
func (r *IdempotencyRecord) Validate() error {
	if !datePartitionPattern.MatchString(r.Partition) {
		return fmt.Errorf("invalid idempotency partition: %q", r.Partition)
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("fingerprint is empty")
	}
	if len(r.ResultSummary) > consts.MaxResultSummaryLength {
		return fmt.Errorf("result summary exceeds %d characters", consts.MaxResultSummaryLength)
	}
	switch r.Status {
	case IdempotencyPending, IdempotencyCompleted, IdempotencyFailed:
	default:
		return fmt.Errorf("invalid idempotency status: %q", r.Status)
	}
	return nil
}

// Expired reports whether the record is past its TTL at the given time
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// CacheEntry is one cached AI review, content-addressed by the hash of the
// prompt-relevant inputs. Rows expire three days after creation.
type CacheEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Repository  string    `gorm:"size:255;not null;index;uniqueIndex:idx_cache_repo_hash,priority:1" json:"repository"`
	ContentHash string    `gorm:"size:64;not null;uniqueIndex:idx_cache_repo_hash,priority:2" json:"content_hash"`
	ReviewJSON  string    `gorm:"type:text;not null" json:"review_json"`
	FilePath    string    `gorm:"size:2000" json:"file_path,omitempty"`
	TokensUsed  int       `gorm:"default:0" json:"tokens_used"`
	CostUSD     float64   `gorm:"default:0" json:"cost_usd"`
	HitCount    int       `gorm:"default:0" json:"hit_count"`
	LastHitAt   time.Time `json:"last_hit_at"`
	ExpiresAt   time.Time `gorm:"index" json:"expires_at"`
}

// Validate checks CacheEntry invariants, including that the stored JSON
// parses back to a valid ReviewResult.
func (e *CacheEntry) Validate() error {
	if e.Repository == "" {
		return fmt.Errorf("repository is empty")
	}
	if e.ContentHash == "" {
		return fmt.Errorf("content hash is empty")
	}
	if e.FilePath != "" {
		if err := ValidateFilePath(e.FilePath); err != nil {
			return err
		}
	}
	var result ReviewResult
	if err := json.Unmarshal([]byte(e.ReviewJSON), &result); err != nil {
		return fmt.Errorf("review JSON does not parse: %w", err)
	}
	if err := result.Validate(); err != nil {
		return fmt.Errorf("cached review is invalid: %w", err)
	}
	return nil
}

// Expired reports whether the entry is past its TTL at the given time
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// FeedbackRecord is one developer reaction on one review comment,
// partitioned by repository with a deterministic feedback id as row key.
type FeedbackRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Repository   string       `gorm:"size:255;not null;index;uniqueIndex:idx_fb_repo_id,priority:1" json:"repository"`
	FeedbackID   string       `gorm:"size:64;not null;uniqueIndex:idx_fb_repo_id,priority:2" json:"feedback_id"`
	PRID         int          `gorm:"not null" json:"pr_id"`
	ThreadID     int          `gorm:"not null" json:"thread_id"`
	CommentID    int          `json:"comment_id"`
	IssueType    string       `gorm:"size:100" json:"issue_type"`
	Severity     Severity     `gorm:"size:20" json:"severity"`
	Kind         FeedbackKind `gorm:"size:20;not null;index" json:"kind"`
	Author       string       `gorm:"size:255" json:"author"`
	OccurredAt   time.Time    `json:"occurred_at"`
	Suggestion   string       `gorm:"type:text" json:"suggestion,omitempty"`
	CodeSnippet  string       `gorm:"type:text" json:"code_snippet,omitempty"`
	FilePath     string       `gorm:"size:2000" json:"file_path,omitempty"`
}

// Validate checks FeedbackRecord invariants
func (f *FeedbackRecord) Validate() error {
	if f.Repository == "" {
		return fmt.Errorf("repository is empty")
	}
	if f.FeedbackID == "" {
		return fmt.Errorf("feedback id is empty")
	}
	if f.ThreadID <= 0 {
		return fmt.Errorf("thread id must be positive: %d", f.ThreadID)
	}
	if f.Severity != "" {
		if _, err := ParseSeverity(string(f.Severity)); err != nil {
			return err
		}
	}
	if _, err := ParseFeedbackKind(string(f.Kind)); err != nil {
		return err
	}
	if len(f.IssueType) > consts.MaxIssueTypeLength {
		return fmt.Errorf("issue type exceeds %d characters", consts.MaxIssueTypeLength)
	}
	return nil
}

// ReviewHistory is one completed review, partitioned by repository with the
// PR id as row key.
type ReviewHistory struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Repository      string      `gorm:"size:255;not null;index;uniqueIndex:idx_hist_repo_pr,priority:1" json:"repository"`
	PRID            int         `gorm:"not null;uniqueIndex:idx_hist_repo_pr,priority:2" json:"pr_id"`
	RepositoryID    string      `gorm:"size:255" json:"repository_id"`
	AuthorEmail     string      `gorm:"size:255" json:"author_email"`
	FilesReviewed   int         `gorm:"default:0" json:"files_reviewed"`
	FileCategories  StringArray `gorm:"type:json" json:"file_categories"`
	IssuesFound     int         `gorm:"default:0" json:"issues_found"`
	CriticalCount   int         `gorm:"default:0" json:"critical_count"`
	HighCount       int         `gorm:"default:0" json:"high_count"`
	MediumCount     int         `gorm:"default:0" json:"medium_count"`
	LowCount        int         `gorm:"default:0" json:"low_count"`
	InfoCount       int         `gorm:"default:0" json:"info_count"`
	IssuesFixed     int         `gorm:"default:0" json:"issues_fixed"`
	IssuesIgnored   int         `gorm:"default:0" json:"issues_ignored"`
	Recommendation  string      `gorm:"size:50" json:"recommendation"`
	DurationSeconds float64     `gorm:"default:0" json:"duration_seconds"`
	TokensUsed      int         `gorm:"default:0" json:"tokens_used"`
	StrategyUsed    string      `gorm:"size:50" json:"strategy_used"`

	// ReviewedAt is stored as an ISO-8601 string so range queries can compare
	// lexicographically without type-specific query syntax.
	ReviewedAt string `gorm:"size:40;index" json:"reviewed_at"`
}

// MaxFileCategories bounds the JSON array column
const MaxFileCategories = 1000

// Validate checks ReviewHistory invariants
func (h *ReviewHistory) Validate() error {
	if h.Repository == "" {
		return fmt.Errorf("repository is empty")
	}
	if h.PRID <= 0 {
		return fmt.Errorf("pr id must be positive: %d", h.PRID)
	}
	if len(h.FileCategories) > MaxFileCategories {
		return fmt.Errorf("file categories exceed %d items", MaxFileCategories)
	}
	for _, n := range []int{
		h.FilesReviewed, h.IssuesFound, h.CriticalCount, h.HighCount,
		h.MediumCount, h.LowCount, h.InfoCount, h.IssuesFixed, h.IssuesIgnored, h.TokensUsed,
	} {
		if n < 0 {
			return fmt.Errorf("negative count in review history")
		}
	}
	if h.TokensUsed > consts.MaxAggregatedTokens {
		return fmt.Errorf("tokens_used exceeds cap: %d", h.TokensUsed)
	}
	return nil
}

// ISOTime formats a time for the ReviewedAt column
func ISOTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// AllModels returns all models for auto-migration
func AllModels() []interface{} {
	return []interface{}{
		&IdempotencyRecord{},
		&CacheEntry{},
		&FeedbackRecord{},
		&ReviewHistory{},
	}
}
