package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pullwise/pullwise/consts"
)

// branchRefPattern matches fully-qualified branch and tag refs
var branchRefPattern = regexp.MustCompile(`^refs/(heads|tags)/[\w\-./]+$`)

// MaxPRID bounds PR identifiers to a sane range
const MaxPRID = 1_000_000_000

// PREvent is a single webhook occurrence. It is created on webhook intake,
// validated once, and immutable thereafter.
type PREvent struct {
	EventType      EventType `json:"event_type"`
	PRID           int       `json:"pr_id"`
	ProjectID      string    `json:"project_id"`
	ProjectName    string    `json:"project_name"`
	RepositoryID   string    `json:"repository_id"`
	RepositoryName string    `json:"repository_name"`
	Title          string    `json:"title"`
	AuthorEmail    string    `json:"author_email"`
	SourceBranch   string    `json:"source_branch"`
	TargetBranch   string    `json:"target_branch"`
	SourceCommit   string    `json:"source_commit"`
}

// Validate checks all PREvent invariants. It is called once at webhook intake;
// a validated event never changes.
func (e *PREvent) Validate() error {
	if _, err := ParseEventType(string(e.EventType)); err != nil {
		return err
	}
	if e.PRID <= 0 || e.PRID > MaxPRID {
		return fmt.Errorf("pr_id out of range: %d", e.PRID)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("title is empty")
	}
	if len(e.Title) > consts.MaxTitleLength {
		return fmt.Errorf("title exceeds %d characters", consts.MaxTitleLength)
	}
	for name, v := range map[string]string{
		"project_id":      e.ProjectID,
		"project_name":    e.ProjectName,
		"repository_id":   e.RepositoryID,
		"repository_name": e.RepositoryName,
		"author_email":    e.AuthorEmail,
		"source_commit":   e.SourceCommit,
	} {
		if err := checkBoundedText(name, v, consts.MaxTitleLength); err != nil {
			return err
		}
	}
	if e.RepositoryName == "" {
		return fmt.Errorf("repository_name is empty")
	}
	if e.SourceCommit == "" {
		return fmt.Errorf("source_commit is empty")
	}
	if !isHexString(e.SourceCommit) {
		return fmt.Errorf("source_commit is not a hex string: %q", e.SourceCommit)
	}
	if err := ValidateBranchRef(e.SourceBranch); err != nil {
		return fmt.Errorf("source branch: %w", err)
	}
	if err := ValidateBranchRef(e.TargetBranch); err != nil {
		return fmt.Errorf("target branch: %w", err)
	}
	return nil
}

// ValidateBranchRef rejects refs with traversal sequences, double slashes,
// trailing slashes, control characters, or a shape outside refs/(heads|tags)/.
func ValidateBranchRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("branch ref is empty")
	}
	if len(ref) > consts.MaxBranchRefLength {
		return fmt.Errorf("branch ref exceeds %d characters", consts.MaxBranchRefLength)
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("branch ref contains '..': %q", ref)
	}
	if strings.Contains(ref, "//") {
		return fmt.Errorf("branch ref contains '//': %q", ref)
	}
	if strings.HasSuffix(ref, "/") {
		return fmt.Errorf("branch ref has trailing slash: %q", ref)
	}
	for _, r := range ref {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("branch ref contains control character")
		}
	}
	if !branchRefPattern.MatchString(ref) {
		return fmt.Errorf("branch ref does not match refs/(heads|tags)/...: %q", ref)
	}
	return nil
}

// ValidateFilePath rejects paths with null bytes, traversal segments, or
// excessive length. The check is platform independent: both '/' and '\'
// separators are considered.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path is empty")
	}
	if len(path) > consts.MaxPathLength {
		return fmt.Errorf("file path exceeds %d characters", consts.MaxPathLength)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("file path contains null byte")
	}
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return fmt.Errorf("file path contains traversal segment: %q", path)
		}
	}
	return nil
}

// checkBoundedText rejects over-long strings and null bytes
func checkBoundedText(name, v string, max int) error {
	if len(v) > max {
		return fmt.Errorf("%s exceeds %d characters", name, max)
	}
	if strings.ContainsRune(v, 0) {
		return fmt.Errorf("%s contains null byte", name)
	}
	return nil
}

func isHexString(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return len(s) > 0
}
