// Package article implements the identifier scheme used to key indexed legal
// articles. An identifier such as "art_42" carries the article's position in
// document order, which retrieval uses to reason about positional neighbors.
package article

import (
	"strconv"
	"strings"
)

const (
	// Separator splits the prefix from the position.
	Separator = "_"
	// DefaultPrefix is the prefix assigned at ingestion.
	DefaultPrefix = "art"
)

// Key is the decoded form of an identifier.
type Key struct {
	// Raw is the identifier exactly as it was decoded.
	Raw string
	// Prefix is meaningful only when HasPrefix is true.
	Prefix    string
	HasPrefix bool
	// Position is the document-order position. Zero for unparseable ids.
	Position int
	// Valid reports whether a position was actually parsed from Raw.
	Valid bool
}

// Decode parses id into its prefix and position. It never fails: an
// identifier whose position cannot be parsed decodes to position 0 with no
// prefix and Valid=false.
func Decode(id string) Key {
	if i := strings.LastIndex(id, Separator); i >= 0 {
		pos, ok := parsePosition(id[i+len(Separator):])
		if !ok {
			return Key{Raw: id}
		}
		return Key{Raw: id, Prefix: id[:i], HasPrefix: true, Position: pos, Valid: true}
	}
	pos, ok := parsePosition(id)
	if !ok {
		return Key{Raw: id}
	}
	return Key{Raw: id, Position: pos, Valid: true}
}

// Encode builds the identifier for prefix and position.
func Encode(prefix string, position int) string {
	return prefix + Separator + strconv.Itoa(position)
}

// At returns the identifier for another position sharing k's prefix.
func (k Key) At(position int) string {
	if k.HasPrefix {
		return Encode(k.Prefix, position)
	}
	return strconv.Itoa(position)
}

// String returns the normalized identifier. Unparseable keys return Raw.
func (k Key) String() string {
	if !k.Valid {
		return k.Raw
	}
	return k.At(k.Position)
}

// Less orders keys by position, then by raw identifier.
func (k Key) Less(other Key) bool {
	if k.Position != other.Position {
		return k.Position < other.Position
	}
	return k.Raw < other.Raw
}

// parsePosition accepts only plain decimal digits, so signs, spaces and
// empty strings are rejected.
func parsePosition(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Range returns the identifiers for positions [from, to).
func Range(prefix string, from, to int) []string {
	if to <= from {
		return nil
	}
	ids := make([]string, 0, to-from)
	for p := from; p < to; p++ {
		ids = append(ids, Encode(prefix, p))
	}
	return ids
}
