package parse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinNameLen = 3
	MaxNameLen = 30
)

var spaceRe = regexp.MustCompile(`\s+`)

// NormalizeName canonicalises a device or snack name: surrounding space is
// trimmed, inner runs of whitespace collapse to one space and letters are
// lower-cased. The result must be MinNameLen..MaxNameLen characters long.
func NormalizeName(raw string) (string, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	s = strings.ToLower(s)

	n := utf8.RuneCountInString(s)
	if n < MinNameLen {
		return "", fmt.Errorf("name %q is shorter than %d characters", raw, MinNameLen)
	}
	if n > MaxNameLen {
		return "", fmt.Errorf("name %q is longer than %d characters", raw, MaxNameLen)
	}
	return s, nil
}

// NormalizeLabel trims and collapses whitespace without changing case. Used
// for free-text fields such as a device category.
func NormalizeLabel(raw string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
}
