package retrieval

import (
	"context"
	"slices"

	"github.com/efebarandurmaz/lexrag/internal/article"
	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// DefaultSource labels fragments whose record carries no source.
const DefaultSource = "Документ"

// Fragment is one article prepared for the prompt.
type Fragment struct {
	ID     string
	Source string
	Text   string
}

// String renders the fragment as "[<source>, ID: <id>] <text>".
func (f Fragment) String() string {
	return "[" + f.Source + ", ID: " + f.ID + "] " + f.Text
}

// Strings renders each fragment.
func Strings(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.String()
	}
	return out
}

// Fetcher loads metadata for a batch of identifiers. Unknown ids are left
// out of the result.
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) (map[string]vector.Metadata, error)
}

// AssembleOptions tunes fragment rendering.
type AssembleOptions struct {
	// DefaultSource replaces a missing source. Empty means DefaultSource.
	DefaultSource string
}

// Assemble fetches ids in a single call and returns fragments in document
// order. Missing records and empty texts are skipped. When two records share
// the exact same text, only the one earliest in the document is kept.
func Assemble(ctx context.Context, f Fetcher, ids IDSet, opts AssembleOptions) ([]Fragment, error) {
	if ids.Len() == 0 {
		return []Fragment{}, nil
	}
	def := opts.DefaultSource
	if def == "" {
		def = DefaultSource
	}

	metas, err := f.Fetch(ctx, ids.Sorted())
	if err != nil {
		return nil, err
	}

	type entry struct {
		key  article.Key
		meta vector.Metadata
	}
	entries := make([]entry, 0, len(metas))
	for id, m := range metas {
		if !ids.Has(id) || m.Text == "" {
			continue
		}
		entries = append(entries, entry{key: article.Decode(id), meta: m})
	}
	slices.SortFunc(entries, func(a, b entry) int { return compareKeys(a.key, b.key) })

	seen := make(map[string]struct{}, len(entries))
	out := make([]Fragment, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.meta.Text]; dup {
			continue
		}
		seen[e.meta.Text] = struct{}{}
		out = append(out, Fragment{
			ID:     e.key.Raw,
			Source: e.meta.SourceOr(def),
			Text:   e.meta.Text,
		})
	}
	return out, nil
}
