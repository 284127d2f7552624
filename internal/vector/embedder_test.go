package vector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/lexrag/internal/llm"
)

type fakeProvider struct {
	dims int
	err  error

	mu    sync.Mutex
	calls [][]string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(context.Context, *llm.Prompt, *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Stream(context.Context, *llm.Prompt, *llm.RequestOptions) (llm.Deltas, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dims)
		if f.dims > 0 {
			v[0] = float32(len(t))
		}
		out[i] = v
	}
	return out, nil
}

func TestProviderEmbedder_Embed(t *testing.T) {
	p := &fakeProvider{dims: 4}
	e := NewProviderEmbedder(p, "mistral-embed", 4)

	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0, 0, 0}, vec)
	assert.Equal(t, 4, e.Dimensions())
	assert.Equal(t, "mistral-embed", e.ModelName())
}

func TestProviderEmbedder_DimensionMismatch(t *testing.T) {
	e := NewProviderEmbedder(&fakeProvider{dims: 3}, "m", 4)

	_, err := e.Embed(context.Background(), "abc")
	require.ErrorIs(t, err, ErrDimensionMismatch)

	var de *DimensionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 4, de.Expected)
	assert.Equal(t, 3, de.Got)
}

func TestProviderEmbedder_ProviderError(t *testing.T) {
	boom := errors.New("401 Unauthorized")
	e := NewProviderEmbedder(&fakeProvider{err: boom}, "m", 4)

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDimensionMismatch)
}

func TestProviderEmbedder_EmptyBatch(t *testing.T) {
	p := &fakeProvider{dims: 2}
	vecs, err := NewProviderEmbedder(p, "m", 2).EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Empty(t, p.calls)
}

func TestCachedEmbedder_HitsSkipProvider(t *testing.T) {
	p := &fakeProvider{dims: 2}
	c := NewCachedEmbedder(NewProviderEmbedder(p, "m", 2), 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "question")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "question")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, p.calls, 1)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	p := &fakeProvider{dims: 2}
	c := NewCachedEmbedder(NewProviderEmbedder(p, "m", 2), 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "bb")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])

	require.Len(t, p.calls, 2)
	assert.Equal(t, []string{"a", "ccc"}, p.calls[1])
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	p := &fakeProvider{dims: 2, err: errors.New("timeout")}
	c := NewCachedEmbedder(NewProviderEmbedder(p, "m", 2), 0)

	_, err := c.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	a := NewCachedEmbedder(NewProviderEmbedder(&fakeProvider{}, "model-a", 0), 1)
	b := NewCachedEmbedder(NewProviderEmbedder(&fakeProvider{}, "model-b", 0), 1)
	assert.NotEqual(t, a.cacheKey("q"), b.cacheKey("q"))
}
