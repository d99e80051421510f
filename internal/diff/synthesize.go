package diff

import (
	"fmt"
	"strings"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
)

// hunkContext is the number of unchanged lines kept around each edit
const hunkContext = 3

// Synthesize builds a FileChange from raw file contents when the platform
// returns no diff text. Adds become all-plus hunks, deletes all-minus, and
// edits are diffed line by line.
func Synthesize(path string, kind model.ChangeKind, before, after string) model.FileChange {
	fc := model.FileChange{Path: path, Kind: kind}

	switch kind {
	case model.ChangeKindAdd:
		lines := capLines(splitLines(after))
		section := model.ChangedSection{TargetStart: 1, TargetCount: len(lines)}
		for _, l := range lines {
			section.Lines = append(section.Lines, model.DiffLine{Kind: model.LineAdd, Text: l})
		}
		section.Truncated = len(splitLines(after)) > len(lines)
		fc.Sections = []model.ChangedSection{section}

	case model.ChangeKindDelete:
		lines := capLines(splitLines(before))
		section := model.ChangedSection{BaseStart: 1, BaseCount: len(lines)}
		for _, l := range lines {
			section.Lines = append(section.Lines, model.DiffLine{Kind: model.LineRemove, Text: l})
		}
		section.Truncated = len(splitLines(before)) > len(lines)
		fc.Sections = []model.ChangedSection{section}

	default:
		fc.Sections = diffLines(splitLines(before), splitLines(after))
	}

	fc.RawDiff = renderUnified(fc)
	return fc
}

func splitLines(s string) []string {
	s = normalize(s)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func capLines(lines []string) []string {
	if len(lines) > consts.MaxHunkLines {
		return lines[:consts.MaxHunkLines]
	}
	return lines
}

// editOp is one step of the line-level edit script
type editOp struct {
	kind model.LineKind
	text string
}

// diffLines computes an LCS edit script and groups it into hunks with
// hunkContext lines of surrounding context.
func diffLines(a, b []string) []model.ChangedSection {
	ops := editScript(a, b)

	var sections []model.ChangedSection
	i := 0
	aLine, bLine := 1, 1
	for i < len(ops) {
		if ops[i].kind == model.LineContext {
			aLine++
			bLine++
			i++
			continue
		}

		// Walk back to include leading context. Those lines were already
		// consumed by the context skip above, so rewind the counters too;
		// the emission loop below counts every op exactly once.
		start := i
		lead := 0
		for start > 0 && lead < hunkContext && ops[start-1].kind == model.LineContext {
			start--
			lead++
		}
		aLine -= lead
		bLine -= lead

		section := model.ChangedSection{
			BaseStart:   aLine,
			TargetStart: bLine,
		}

		// Consume ops until a run of more than 2*hunkContext context lines
		j := start
		ctxRun := 0
		end := start
		for j < len(ops) {
			if ops[j].kind == model.LineContext {
				ctxRun++
				if ctxRun > 2*hunkContext {
					break
				}
			} else {
				ctxRun = 0
				end = j
			}
			j++
		}
		// Trim trailing context down to hunkContext
		stop := end + 1 + hunkContext
		if stop > j {
			stop = j
		}

		for k := start; k < stop; k++ {
			op := ops[k]
			if len(section.Lines) < consts.MaxHunkLines {
				section.Lines = append(section.Lines, model.DiffLine{Kind: op.kind, Text: op.text})
			} else {
				section.Truncated = true
			}
			switch op.kind {
			case model.LineAdd:
				section.TargetCount++
				bLine++
			case model.LineRemove:
				section.BaseCount++
				aLine++
			default:
				section.BaseCount++
				section.TargetCount++
				aLine++
				bLine++
			}
		}
		sections = append(sections, section)
		i = stop
	}
	return sections
}

// editScript computes the LCS table and emits remove/add/context ops
func editScript(a, b []string) []editOp {
	n, m := len(a), len(b)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []editOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{model.LineContext, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, editOp{model.LineRemove, a[i]})
			i++
		default:
			ops = append(ops, editOp{model.LineAdd, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{model.LineRemove, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{model.LineAdd, b[j]})
	}
	return ops
}

// Render serializes a FileChange into unified-diff text for prompt
// inclusion, preferring the raw text when the platform provided one.
func Render(fc model.FileChange) string {
	if fc.RawDiff != "" {
		return fc.RawDiff
	}
	return renderUnified(fc)
}

// renderUnified serializes a FileChange back into unified-diff text for
// inclusion in prompts.
func renderUnified(fc model.FileChange) string {
	var sb strings.Builder
	oldName := fc.Path
	if fc.OldPath != "" {
		oldName = fc.OldPath
	}
	switch fc.Kind {
	case model.ChangeKindAdd:
		sb.WriteString("--- /dev/null\n")
		fmt.Fprintf(&sb, "+++ b/%s\n", fc.Path)
	case model.ChangeKindDelete:
		fmt.Fprintf(&sb, "--- a/%s\n", fc.Path)
		sb.WriteString("+++ /dev/null\n")
	default:
		fmt.Fprintf(&sb, "--- a/%s\n", oldName)
		fmt.Fprintf(&sb, "+++ b/%s\n", fc.Path)
	}
	for _, s := range fc.Sections {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", s.BaseStart, s.BaseCount, s.TargetStart, s.TargetCount)
		for _, l := range s.Lines {
			switch l.Kind {
			case model.LineAdd:
				sb.WriteString("+")
			case model.LineRemove:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(l.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
