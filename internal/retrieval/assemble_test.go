package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// memIndex is an in-memory Searcher that records calls.
type memIndex struct {
	records map[string]vector.Metadata
	matches []vector.Match

	queryErr error
	fetchErr error

	queries    int
	fetchCalls [][]string
}

func (m *memIndex) Query(context.Context, []float32, int) ([]vector.Match, error) {
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.matches, nil
}

func (m *memIndex) Fetch(_ context.Context, ids []string) (map[string]vector.Metadata, error) {
	m.fetchCalls = append(m.fetchCalls, ids)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := map[string]vector.Metadata{}
	for _, id := range ids {
		if md, ok := m.records[id]; ok {
			out[id] = md
		}
	}
	return out, nil
}

func ids(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.ID
	}
	return out
}

func set(ids ...string) IDSet {
	s := IDSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func TestFragment_String(t *testing.T) {
	f := Fragment{ID: "art_3", Source: "Кодекс", Text: "Статья 3. Текст"}
	assert.Equal(t, "[Кодекс, ID: art_3] Статья 3. Текст", f.String())
}

func TestAssemble_OrdersByPositionNotLexically(t *testing.T) {
	idx := &memIndex{records: map[string]vector.Metadata{
		"art_50": {Text: "fifty"},
		"art_3":  {Text: "three"},
		"art_27": {Text: "twenty-seven"},
	}}
	frags, err := Assemble(context.Background(), idx, set("art_50", "art_3", "art_27"), AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"art_3", "art_27", "art_50"}, ids(frags))
	assert.Len(t, idx.fetchCalls, 1)
}

func TestAssemble_DuplicateTextKeepsLowestPosition(t *testing.T) {
	idx := &memIndex{records: map[string]vector.Metadata{
		"art_8": {Text: "Статья исключена", Source: "B"},
		"art_2": {Text: "Статья исключена", Source: "A"},
		"art_5": {Text: "other"},
	}}
	frags, err := Assemble(context.Background(), idx, set("art_8", "art_2", "art_5"), AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"art_2", "art_5"}, ids(frags))
	assert.Equal(t, "A", frags[0].Source)
}

func TestAssemble_SkipsMissingAndEmpty(t *testing.T) {
	idx := &memIndex{records: map[string]vector.Metadata{
		"art_10": {Text: "ten"},
		"art_11": {Text: "eleven"},
		"art_12": {Text: ""},
	}}
	frags, err := Assemble(context.Background(), idx, set("art_9", "art_10", "art_11", "art_12"), AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"art_10", "art_11"}, ids(frags))
}

func TestAssemble_DefaultSource(t *testing.T) {
	idx := &memIndex{records: map[string]vector.Metadata{"art_1": {Text: "x"}}}

	frags, err := Assemble(context.Background(), idx, set("art_1"), AssembleOptions{})
	require.NoError(t, err)
	assert.Equal(t, "[Документ, ID: art_1] x", frags[0].String())

	frags, err = Assemble(context.Background(), idx, set("art_1"), AssembleOptions{DefaultSource: "Закон"})
	require.NoError(t, err)
	assert.Equal(t, "Закон", frags[0].Source)
}

func TestAssemble_TiesBrokenByIdentifier(t *testing.T) {
	idx := &memIndex{records: map[string]vector.Metadata{
		"b_1":     {Text: "b"},
		"a_1":     {Text: "a"},
		"garbage": {Text: "g"},
	}}
	frags, err := Assemble(context.Background(), idx, set("b_1", "a_1", "garbage"), AssembleOptions{})
	require.NoError(t, err)
	// garbage decodes to position 0 and sorts first.
	assert.Equal(t, []string{"garbage", "a_1", "b_1"}, ids(frags))
}

func TestAssemble_EmptySetDoesNotFetch(t *testing.T) {
	idx := &memIndex{}
	frags, err := Assemble(context.Background(), idx, IDSet{}, AssembleOptions{})
	require.NoError(t, err)
	assert.NotNil(t, frags)
	assert.Empty(t, frags)
	assert.Empty(t, idx.fetchCalls)
}

func TestAssemble_FetchError(t *testing.T) {
	boom := errors.New("unavailable")
	_, err := Assemble(context.Background(), &memIndex{fetchErr: boom}, set("art_1"), AssembleOptions{})
	assert.ErrorIs(t, err, boom)
}
