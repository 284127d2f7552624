package ingest

import (
	"strings"
	"unicode/utf8"
)

// staleMaxRunes bounds the length of a repealed-article stub. Longer texts
// mention repeal in passing and are kept.
const staleMaxRunes = 150

var staleMarkers = []string{
	"исключена",
	"утратила силу",
	"норма исключена",
}

// IsStale reports whether text is a short placeholder for an article that
// was repealed or excluded from the code.
func IsStale(text string) bool {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) >= staleMaxRunes {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range staleMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
