// Package diff turns unified-diff text into per-file changed sections.
// A strict parser runs first; on structural rejection a lenient line-oriented
// fallback takes over so one malformed file never aborts a review.
package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// hunkHeaderPattern matches "@@ -a,b +c,d @@" with optional counts
var hunkHeaderPattern = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// gitHeaderPattern captures the two paths on a "diff --git" line
var gitHeaderPattern = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)

// ParseError reports a structural rejection by the strict parser
type ParseError struct {
	Line   int
	Reason string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("unidiff parse error at line %d: %s", e.Line, e.Reason)
}

// Parse converts unified-diff text into FileChanges. The strict parser is
// attempted first; on a ParseError the lenient fallback reparses the blob.
func Parse(text string) ([]model.FileChange, error) {
	text = normalize(text)
	if text == "" {
		return nil, nil
	}

	changes, err := parseStrict(text)
	if err == nil {
		return changes, nil
	}

	logger.Warn("unidiff_parse_failed_using_fallback", zap.Error(err))
	return parseLenient(text), nil
}

// normalize converts CRLF to LF
func normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// parseStrict parses the diff and verifies hunk line counts against headers
func parseStrict(text string) ([]model.FileChange, error) {
	lines := strings.Split(text, "\n")
	if len(lines) > consts.MaxDiffLines {
		return nil, &ParseError{Line: consts.MaxDiffLines, Reason: "diff exceeds line cap"}
	}

	var changes []model.FileChange
	var current *model.FileChange

	flush := func() {
		if current != nil {
			changes = append(changes, *current)
			current = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff --git "), strings.HasPrefix(line, "--- "):
			// File header block: scan forward to the "+++" line
			flush()
			fc, next, err := parseFileHeader(lines, i)
			if err != nil {
				return nil, err
			}
			current = fc
			i = next

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				return nil, &ParseError{Line: i + 1, Reason: "hunk before file header"}
			}
			section, consumed, err := parseHunkStrict(lines, i)
			if err != nil {
				return nil, err
			}
			current.Sections = append(current.Sections, *section)
			i += consumed

		case line == "" && i == len(lines)-1:
			// trailing newline

		case current == nil && strings.TrimSpace(line) == "":

		case current != nil:
			// index lines, mode lines, "\ No newline at end of file"

		default:
			return nil, &ParseError{Line: i + 1, Reason: "unexpected content before any file header"}
		}
	}
	flush()
	return changes, nil
}

// parseFileHeader reads the ---/+++ pair (and optional diff --git prefix)
// starting at index i. Returns the new FileChange and the index of the last
// consumed line.
func parseFileHeader(lines []string, i int) (*model.FileChange, int, error) {
	// Skip the "diff --git" and any index/mode lines until "---". The scan
	// stops at the next "diff --git" line: a block with no hunks (binary
	// change, pure rename) ends there and gets its own entry.
	j := i
	for j < len(lines) && !strings.HasPrefix(lines[j], "--- ") {
		if j > i && strings.HasPrefix(lines[j], "diff --git ") {
			return parseBareHeader(lines, i, j-1)
		}
		if strings.HasPrefix(lines[j], "@@") {
			return nil, 0, &ParseError{Line: j + 1, Reason: "hunk header before file names"}
		}
		j++
	}
	if j >= len(lines) {
		return parseBareHeader(lines, i, len(lines)-1)
	}
	if j+1 >= len(lines) || !strings.HasPrefix(lines[j+1], "+++ ") {
		return nil, 0, &ParseError{Line: j + 1, Reason: "missing +++ line after ---"}
	}

	oldName := cleanDiffPath(strings.TrimPrefix(lines[j], "--- "))
	newName := cleanDiffPath(strings.TrimPrefix(lines[j+1], "+++ "))

	fc := &model.FileChange{}
	switch {
	case oldName == "" && newName == "":
		return nil, 0, &ParseError{Line: j + 1, Reason: "both file names empty"}
	case oldName == "":
		fc.Path = newName
		fc.Kind = model.ChangeKindAdd
	case newName == "":
		fc.Path = oldName
		fc.Kind = model.ChangeKindDelete
	case oldName != newName:
		fc.Path = newName
		fc.OldPath = oldName
		fc.Kind = model.ChangeKindRename
	default:
		fc.Path = newName
		fc.Kind = model.ChangeKindEdit
	}

	if err := model.ValidateFilePath(fc.Path); err != nil {
		return nil, 0, &ParseError{Line: j + 1, Reason: err.Error()}
	}
	return fc, j + 1, nil
}

// parseBareHeader reads a file block that carries no ---/+++ pair, as git
// emits for binary changes and pure renames. Paths come from the
// "diff --git" line; marker lines inside the block decide the change kind.
func parseBareHeader(lines []string, i, last int) (*model.FileChange, int, error) {
	m := gitHeaderPattern.FindStringSubmatch(lines[i])
	if m == nil {
		return nil, 0, &ParseError{Line: i + 1, Reason: "file block has no --- line"}
	}

	fc := &model.FileChange{Path: m[2], Kind: model.ChangeKindEdit}
	for k := i + 1; k <= last; k++ {
		switch {
		case strings.HasPrefix(lines[k], "new file"):
			fc.Kind = model.ChangeKindAdd
		case strings.HasPrefix(lines[k], "deleted file"):
			fc.Kind = model.ChangeKindDelete
			fc.Path = m[1]
		}
	}
	if m[1] != m[2] {
		fc.OldPath = m[1]
		fc.Path = m[2]
		fc.Kind = model.ChangeKindRename
	}

	if err := model.ValidateFilePath(fc.Path); err != nil {
		return nil, 0, &ParseError{Line: i + 1, Reason: err.Error()}
	}
	return fc, last, nil
}

// cleanDiffPath strips a/ b/ prefixes and "/dev/null". A path beginning with
// '/' (as the platform API returns) is stripped of its leading slash before
// any absolute-path rejection happens.
func cleanDiffPath(name string) string {
	name = strings.TrimSpace(name)
	// drop timestamp suffix after a tab
	if idx := strings.IndexByte(name, '\t'); idx >= 0 {
		name = name[:idx]
	}
	if name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return strings.TrimPrefix(name, "/")
}

// parseHunkStrict parses one hunk starting at lines[i] and verifies the body
// against the header counts. Returns the section and consumed line count
// beyond the header.
func parseHunkStrict(lines []string, i int) (*model.ChangedSection, int, error) {
	m := hunkHeaderPattern.FindStringSubmatch(lines[i])
	if m == nil {
		return nil, 0, &ParseError{Line: i + 1, Reason: "malformed hunk header"}
	}

	section := &model.ChangedSection{
		BaseStart:   atoiDefault(m[1], 0),
		BaseCount:   atoiDefault(m[2], 1),
		TargetStart: atoiDefault(m[3], 0),
		TargetCount: atoiDefault(m[4], 1),
	}

	baseSeen, targetSeen := 0, 0
	consumed := 0
	for j := i + 1; j < len(lines); j++ {
		line := lines[j]
		if strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "diff --git ") || strings.HasPrefix(line, "--- ") {
			break
		}
		if strings.HasPrefix(line, "\\") {
			// "\ No newline at end of file"
			consumed++
			continue
		}
		if line == "" && j == len(lines)-1 {
			break
		}
		var kind model.LineKind
		switch {
		case strings.HasPrefix(line, "+"):
			kind = model.LineAdd
			targetSeen++
		case strings.HasPrefix(line, "-"):
			kind = model.LineRemove
			baseSeen++
		case strings.HasPrefix(line, " "), line == "":
			kind = model.LineContext
			baseSeen++
			targetSeen++
		default:
			return nil, 0, &ParseError{Line: j + 1, Reason: "unclassifiable hunk line"}
		}
		text := line
		if len(text) > 0 {
			text = text[1:]
		}
		if len(section.Lines) < consts.MaxHunkLines {
			section.Lines = append(section.Lines, model.DiffLine{Kind: kind, Text: text})
		} else if !section.Truncated {
			section.Truncated = true
			logger.Warn("hunk_truncated", zap.Int("cap", consts.MaxHunkLines))
		}
		consumed++
		if baseSeen >= section.BaseCount && targetSeen >= section.TargetCount {
			break
		}
	}

	if baseSeen != section.BaseCount || targetSeen != section.TargetCount {
		return nil, 0, &ParseError{
			Line: i + 1,
			Reason: fmt.Sprintf("hunk count mismatch: header -%d/+%d, body -%d/+%d",
				section.BaseCount, section.TargetCount, baseSeen, targetSeen),
		}
	}
	return section, consumed, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
