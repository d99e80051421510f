// Package prompt builds the review prompts sent to the model. Every
// user-controlled string passes through Sanitize before interpolation.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/pkg/logger"
)

var (
	tripleNewline    = regexp.MustCompile(`\n{3,}`)
	injectionMarker  = regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`)
	leadingRoleLabel = regexp.MustCompile(`(?im)^\s*(system|assistant)\s*:\s*`)
)

// Sanitize neutralizes user-controlled text for prompt interpolation.
// Null bytes are rejected outright; everything else is normalized in place.
// Sanitize(Sanitize(s)) == Sanitize(s) for all accepted inputs.
func Sanitize(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("input contains null byte")
	}

	s = stripControl(s)

	// Marker removal loops because deleting one occurrence can splice a new
	// one together from the surrounding text.
	for {
		next := injectionMarker.ReplaceAllString(s, "")
		next = leadingRoleLabel.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}

	s = strings.ReplaceAll(s, "`", "'")
	s = tripleNewline.ReplaceAllString(s, "\n\n")
	return s, nil
}

// SanitizeField sanitizes and truncates one field. Inputs with null bytes
// degrade to the empty string with a warning instead of failing the prompt.
func SanitizeField(s string, maxLen int) string {
	clean, err := Sanitize(s)
	if err != nil {
		logger.Warn("dropping unsanitizable field", zap.Error(err))
		return ""
	}
	if maxLen > 0 && len(clean) > maxLen {
		clean = clean[:maxLen]
	}
	return clean
}

// stripControl removes control characters except tab, carriage return, newline
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\r' || r == '\n' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
