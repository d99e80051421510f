package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullwise/pullwise/internal/model"
)

const simpleEdit = `diff --git a/app/main.py b/app/main.py
index 1234567..89abcde 100644
--- a/app/main.py
+++ b/app/main.py
@@ -1,3 +1,4 @@
 import os
+import sys

 def main():
`

func TestParse_SimpleEdit(t *testing.T) {
	changes, err := Parse(simpleEdit)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	fc := changes[0]
	assert.Equal(t, "app/main.py", fc.Path)
	assert.Equal(t, model.ChangeKindEdit, fc.Kind)
	require.Len(t, fc.Sections, 1)

	s := fc.Sections[0]
	assert.Equal(t, 1, s.BaseStart)
	assert.Equal(t, 3, s.BaseCount)
	assert.Equal(t, 4, s.TargetCount)
	assert.Equal(t, 1, s.ChangedLineCount())
	require.Len(t, s.Lines, 4)
	assert.Equal(t, model.LineAdd, s.Lines[1].Kind)
	assert.Equal(t, "import sys", s.Lines[1].Text)
}

func TestParse_AddAndDelete(t *testing.T) {
	text := `--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+one
+two
--- a/old.txt
+++ /dev/null
@@ -1,1 +0,0 @@
-gone
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, "new.txt", changes[0].Path)
	assert.Equal(t, model.ChangeKindAdd, changes[0].Kind)
	assert.Equal(t, "old.txt", changes[1].Path)
	assert.Equal(t, model.ChangeKindDelete, changes[1].Kind)
}

func TestParse_Rename(t *testing.T) {
	text := `--- a/pkg/before.go
+++ b/pkg/after.go
@@ -1,1 +1,1 @@
-x
+y
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ChangeKindRename, changes[0].Kind)
	assert.Equal(t, "pkg/after.go", changes[0].Path)
	assert.Equal(t, "pkg/before.go", changes[0].OldPath)
}

// A block with no hunks (binary change, pure rename) must not swallow the
// file that follows it.
func TestParse_HunklessBlocks(t *testing.T) {
	text := `diff --git a/app/a.py b/app/a.py
--- a/app/a.py
+++ b/app/a.py
@@ -1,1 +1,1 @@
-x
+y
diff --git a/img/logo.png b/img/logo.png
index 1234567..89abcde 100644
Binary files a/img/logo.png and b/img/logo.png differ
diff --git a/pkg/old.go b/pkg/new.go
similarity index 100%
rename from pkg/old.go
rename to pkg/new.go
diff --git a/app/b.py b/app/b.py
--- a/app/b.py
+++ b/app/b.py
@@ -1,1 +1,1 @@
-p
+q
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 4)

	assert.Equal(t, "app/a.py", changes[0].Path)
	require.Len(t, changes[0].Sections, 1)

	assert.Equal(t, "img/logo.png", changes[1].Path)
	assert.Equal(t, model.ChangeKindEdit, changes[1].Kind)
	assert.Empty(t, changes[1].Sections)

	assert.Equal(t, "pkg/new.go", changes[2].Path)
	assert.Equal(t, "pkg/old.go", changes[2].OldPath)
	assert.Equal(t, model.ChangeKindRename, changes[2].Kind)
	assert.Empty(t, changes[2].Sections)

	assert.Equal(t, "app/b.py", changes[3].Path)
	require.Len(t, changes[3].Sections, 1)
	assert.Equal(t, 2, changes[3].Sections[0].ChangedLineCount())
}

func TestParse_TrailingBinaryBlock(t *testing.T) {
	text := `diff --git a/app/a.py b/app/a.py
--- a/app/a.py
+++ b/app/a.py
@@ -1,1 +1,1 @@
-x
+y
diff --git a/img/logo.png b/img/logo.png
Binary files a/img/logo.png and b/img/logo.png differ
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "img/logo.png", changes[1].Path)
	assert.Empty(t, changes[1].Sections)
}

func TestParse_CRLFNormalized(t *testing.T) {
	crlf := strings.ReplaceAll(simpleEdit, "\n", "\r\n")
	changes, err := Parse(crlf)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "import sys", changes[0].Sections[0].Lines[1].Text)
}

func TestParse_EmptyInput(t *testing.T) {
	changes, err := Parse("")
	require.NoError(t, err)
	assert.Nil(t, changes)
}

// A hunk header that claims five additions while the body carries four must
// not abort the parse: the fallback keeps the four real lines.
func TestParse_CountMismatchFallsBack(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,1 +1,6 @@
 ctx
+a
+b
+c
+d
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	s := changes[0].Sections[0]
	assert.Equal(t, 4, s.ChangedLineCount())
	assert.Len(t, s.Lines, 5)
}

func TestParse_LenientSkipsTraversalPaths(t *testing.T) {
	text := `--- a/../../etc/passwd
+++ b/../../etc/passwd
@@ -1,1 +1,1 @@
-x
+y
--- a/ok.txt
+++ b/ok.txt
@@ bad header @@
+added
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "ok.txt", changes[0].Path)
	require.Len(t, changes[0].Sections, 1)
	assert.Equal(t, 1, changes[0].Sections[0].ChangedLineCount())
}

func TestParse_LeadingSlashStripped(t *testing.T) {
	text := `--- /src/app.py
+++ /src/app.py
@@ -1,1 +1,1 @@
-a
+b
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "src/app.py", changes[0].Path)
}

func TestParse_NoNewlineMarker(t *testing.T) {
	text := `--- a/f.txt
+++ b/f.txt
@@ -1,1 +1,1 @@
-old
+new
\ No newline at end of file
`
	changes, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Len(t, changes[0].Sections[0].Lines, 2)
}

func TestCleanDiffPath(t *testing.T) {
	assert.Equal(t, "src/x.go", cleanDiffPath("a/src/x.go"))
	assert.Equal(t, "src/x.go", cleanDiffPath("b/src/x.go"))
	assert.Equal(t, "", cleanDiffPath("/dev/null"))
	assert.Equal(t, "src/x.go", cleanDiffPath("/src/x.go"))
	assert.Equal(t, "f.txt", cleanDiffPath("a/f.txt\t2026-01-01 00:00:00"))
}

func TestSynthesize_Add(t *testing.T) {
	fc := Synthesize("new.py", model.ChangeKindAdd, "", "a\nb\nc\n")
	require.Len(t, fc.Sections, 1)
	assert.Equal(t, 3, fc.Sections[0].TargetCount)
	for _, l := range fc.Sections[0].Lines {
		assert.Equal(t, model.LineAdd, l.Kind)
	}
	assert.Contains(t, fc.RawDiff, "+++ b/new.py")
	assert.Contains(t, fc.RawDiff, "--- /dev/null")
}

func TestSynthesize_Delete(t *testing.T) {
	fc := Synthesize("gone.py", model.ChangeKindDelete, "x\ny\n", "")
	require.Len(t, fc.Sections, 1)
	assert.Equal(t, 2, fc.Sections[0].BaseCount)
	for _, l := range fc.Sections[0].Lines {
		assert.Equal(t, model.LineRemove, l.Kind)
	}
}

func TestSynthesize_Edit(t *testing.T) {
	before := "one\ntwo\nthree\nfour\nfive\n"
	after := "one\ntwo\nTHREE\nfour\nfive\n"
	fc := Synthesize("f.txt", model.ChangeKindEdit, before, after)
	require.Len(t, fc.Sections, 1)

	s := fc.Sections[0]
	assert.Equal(t, 2, s.ChangedLineCount())

	var adds, removes []string
	for _, l := range s.Lines {
		switch l.Kind {
		case model.LineAdd:
			adds = append(adds, l.Text)
		case model.LineRemove:
			removes = append(removes, l.Text)
		}
	}
	assert.Equal(t, []string{"THREE"}, adds)
	assert.Equal(t, []string{"three"}, removes)

	// Synthesized output must parse back through the strict path
	reparsed, err := Parse(fc.RawDiff)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	assert.Equal(t, 2, reparsed[0].Sections[0].ChangedLineCount())
}

func TestSynthesize_MultiHunkAnchors(t *testing.T) {
	var before, after strings.Builder
	for i := 1; i <= 20; i++ {
		line := fmt.Sprintf("line%02d", i)
		before.WriteString(line + "\n")
		if i == 2 || i == 15 {
			line = strings.ToUpper(line)
		}
		after.WriteString(line + "\n")
	}

	fc := Synthesize("f.txt", model.ChangeKindEdit, before.String(), after.String())
	require.Len(t, fc.Sections, 2)

	first, second := fc.Sections[0], fc.Sections[1]
	assert.Equal(t, 1, first.BaseStart)
	assert.Equal(t, 1, first.TargetStart)
	assert.Equal(t, 5, first.BaseCount)
	assert.Equal(t, 5, first.TargetCount)

	// edit at line 15 with 3 lines of leading context anchors at 12
	assert.Equal(t, 12, second.BaseStart)
	assert.Equal(t, 12, second.TargetStart)
	assert.Equal(t, 7, second.BaseCount)
	assert.Equal(t, 7, second.TargetCount)

	// each hunk body must begin at the line its header claims
	require.NotEmpty(t, second.Lines)
	assert.Equal(t, "line12", second.Lines[0].Text)

	// and the whole thing must survive a strict reparse
	reparsed, err := Parse(fc.RawDiff)
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
	require.Len(t, reparsed[0].Sections, 2)
	assert.Equal(t, 12, reparsed[0].Sections[1].BaseStart)
}

func TestSynthesize_EditSplitsDistantChanges(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("line\n")
	}
	before := "FIRST\n" + b.String() + "LAST\n"
	after := "first\n" + b.String() + "last\n"

	fc := Synthesize("f.txt", model.ChangeKindEdit, before, after)
	assert.Len(t, fc.Sections, 2)
}
