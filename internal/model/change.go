package model

import "fmt"

// LineKind classifies one line within a changed section
type LineKind string

const (
	LineContext LineKind = "context"
	LineAdd     LineKind = "add"
	LineRemove  LineKind = "remove"
)

// DiffLine is one line of a changed section
type DiffLine struct {
	Kind LineKind `json:"kind"`
	Text string   `json:"text"`
}

// ChangedSection is a contiguous diff hunk with context lines.
// Lines beyond MaxHunkLines are truncated by the parser with a warning.
type ChangedSection struct {
	// BaseStart/BaseCount describe the hunk range on the base side
	BaseStart int `json:"base_start"`
	BaseCount int `json:"base_count"`

	// TargetStart/TargetCount describe the hunk range on the target side
	TargetStart int `json:"target_start"`
	TargetCount int `json:"target_count"`

	Lines []DiffLine `json:"lines"`

	// Truncated is set when the parser dropped lines beyond the hunk cap
	Truncated bool `json:"truncated,omitempty"`
}

// ChangedLineCount returns the number of added plus removed lines
func (s *ChangedSection) ChangedLineCount() int {
	n := 0
	for _, l := range s.Lines {
		if l.Kind == LineAdd || l.Kind == LineRemove {
			n++
		}
	}
	return n
}

// FileChange is a single changed file derived per request; never persisted.
type FileChange struct {
	Path     string           `json:"path"`
	Kind     ChangeKind       `json:"kind"`
	Category string           `json:"category,omitempty"`
	Sections []ChangedSection `json:"sections"`
	RawDiff  string           `json:"raw_diff,omitempty"`

	// OldPath is set for renames
	OldPath string `json:"old_path,omitempty"`
}

// Validate checks FileChange invariants
func (f *FileChange) Validate() error {
	if err := ValidateFilePath(f.Path); err != nil {
		return err
	}
	if _, err := ParseChangeKind(string(f.Kind)); err != nil {
		return err
	}
	if f.Kind != ChangeKindDelete && len(f.Sections) == 0 {
		return fmt.Errorf("file %s has no changed sections", f.Path)
	}
	return nil
}

// ChangedLineCount sums changed lines across all sections
func (f *FileChange) ChangedLineCount() int {
	n := 0
	for i := range f.Sections {
		n += f.Sections[i].ChangedLineCount()
	}
	return n
}
