package claim

import (
	"strings"
	"unicode/utf8"
)

const (
	maxGuestNameLength = 100
	maxMessageLength   = 500
)

// cleanText trims s and cuts it to limit runes. Blank input yields nil.
func cleanText(s string, limit int) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return &s
}
