package session

import "strings"

// Slug names a new session after the first three words of its opening
// question, with "/" replaced by "_" so the name is a valid file name.
func Slug(text string) string {
	words := strings.Fields(text)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.ReplaceAll(strings.Join(words, "-"), "/", "_")
}
