package retrieval

import (
	"math"
	"slices"

	"github.com/efebarandurmaz/lexrag/internal/article"
)

// IDSet is an unordered set of article identifiers.
type IDSet map[string]struct{}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Sorted returns the members in document order.
func (s IDSet) Sorted() []string {
	keys := make([]article.Key, 0, len(s))
	for id := range s {
		keys = append(keys, article.Decode(id))
	}
	slices.SortFunc(keys, compareKeys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Raw
	}
	return out
}

func compareKeys(a, b article.Key) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// Expand returns every match together with the positions up to radius on
// either side of it, clamped at zero. Identifiers are normalized through
// decode and encode. An identifier with no parseable position has no
// neighbors and is kept verbatim. A negative radius is treated as zero.
func Expand(matches []string, radius int) IDSet {
	radius = max(radius, 0)
	out := make(IDSet, sizeHint(len(matches), radius))
	for _, id := range matches {
		k := article.Decode(id)
		if !k.Valid {
			out.Add(id)
			continue
		}
		lo := max(0, k.Position-radius)
		hi := k.Position + radius
		if radius > math.MaxInt-k.Position {
			hi = math.MaxInt
		}
		for p := lo; ; p++ {
			out.Add(k.At(p))
			if p == hi {
				break
			}
		}
	}
	return out
}

// maxSizeHint caps the preallocation so a large radius cannot reserve
// memory before any id exists.
const maxSizeHint = 1 << 12

func sizeHint(matches, radius int) int {
	if matches == 0 {
		return 0
	}
	if radius >= maxSizeHint {
		return maxSizeHint
	}
	return min(matches*(2*radius+1), maxSizeHint)
}
