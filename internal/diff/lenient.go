package diff

import (
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/pkg/logger"
)

// parseLenient reparses the blob line by line. It never returns an error:
// unclassifiable lines become context, files with invalid paths are logged
// and skipped, and the global line cap truncates the tail of the diff.
func parseLenient(text string) []model.FileChange {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > consts.MaxDiffLines {
		logger.Warn("diff_truncated",
			zap.Int("lines", len(lines)),
			zap.Int("cap", consts.MaxDiffLines))
		lines = lines[:consts.MaxDiffLines]
	}

	var changes []model.FileChange
	var current *model.FileChange
	var section *model.ChangedSection
	var pendingOld string
	var sawHeader bool

	closeSection := func() {
		if section != nil && current != nil {
			current.Sections = append(current.Sections, *section)
		}
		section = nil
	}
	closeFile := func() {
		closeSection()
		if current == nil {
			return
		}
		if err := model.ValidateFilePath(current.Path); err != nil {
			logger.Warn("skipping file with invalid path",
				zap.String("path", logger.TruncateField(current.Path)),
				zap.Error(err))
		} else {
			changes = append(changes, *current)
		}
		current = nil
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			closeFile()
			sawHeader = false
			pendingOld = ""

		case strings.HasPrefix(line, "--- "):
			if sawHeader {
				closeFile()
			}
			pendingOld = cleanDiffPath(strings.TrimPrefix(line, "--- "))
			sawHeader = false

		case strings.HasPrefix(line, "+++ "):
			closeFile()
			newName := cleanDiffPath(strings.TrimPrefix(line, "+++ "))
			current = classifyFile(pendingOld, newName)
			pendingOld = ""
			sawHeader = true

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				continue
			}
			closeSection()
			section = lenientHunkHeader(line)

		case strings.HasPrefix(line, "\\"):
			// "\ No newline at end of file"

		default:
			if section == nil {
				continue
			}
			appendLenientLine(section, line)
		}
	}
	closeFile()
	return changes
}

// classifyFile derives the change kind from the old/new names, tolerating
// a missing old name.
func classifyFile(oldName, newName string) *model.FileChange {
	fc := &model.FileChange{}
	switch {
	case newName == "" && oldName == "":
		fc.Path = "unknown"
		fc.Kind = model.ChangeKindEdit
	case newName == "":
		fc.Path = oldName
		fc.Kind = model.ChangeKindDelete
	case oldName == "":
		fc.Path = newName
		fc.Kind = model.ChangeKindAdd
	case oldName != newName:
		fc.Path = newName
		fc.OldPath = oldName
		fc.Kind = model.ChangeKindRename
	default:
		fc.Path = newName
		fc.Kind = model.ChangeKindEdit
	}
	return fc
}

// lenientHunkHeader parses what it can from a hunk header, defaulting the
// positions to zero when the header is mangled.
func lenientHunkHeader(line string) *model.ChangedSection {
	if m := hunkHeaderPattern.FindStringSubmatch(line); m != nil {
		return &model.ChangedSection{
			BaseStart:   atoiDefault(m[1], 0),
			BaseCount:   atoiDefault(m[2], 1),
			TargetStart: atoiDefault(m[3], 0),
			TargetCount: atoiDefault(m[4], 1),
		}
	}
	return &model.ChangedSection{}
}

// appendLenientLine classifies a body line by its first byte and appends it,
// honoring the per-hunk cap. Anything unrecognized counts as context.
func appendLenientLine(section *model.ChangedSection, line string) {
	var kind model.LineKind
	switch {
	case strings.HasPrefix(line, "+"):
		kind = model.LineAdd
	case strings.HasPrefix(line, "-"):
		kind = model.LineRemove
	default:
		kind = model.LineContext
	}
	text := line
	if kind != model.LineContext || strings.HasPrefix(line, " ") {
		if len(text) > 0 {
			text = text[1:]
		}
	}
	if len(section.Lines) >= consts.MaxHunkLines {
		section.Truncated = true
		return
	}
	section.Lines = append(section.Lines, model.DiffLine{Kind: kind, Text: text})
}
