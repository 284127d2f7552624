package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// Searcher is the part of vector.Index the pipeline uses.
type Searcher interface {
	Fetcher
	Query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error)
}

// QueryEmbedder maps the query text to a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DefaultMaxNeighbors bounds the radius a caller may request.
const DefaultMaxNeighbors = 20

// Options configures a Retriever. All fields are optional.
type Options struct {
	DefaultSource string
	// MaxNeighbors is the largest radius Retrieve accepts. Zero or negative
	// means DefaultMaxNeighbors.
	MaxNeighbors int
	Logger       *slog.Logger
	Metrics      *observability.RAGMetrics
}

// Retriever runs the query pipeline. It holds no per-request state and is
// safe for concurrent use when its collaborators are.
type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	source   string
	maxR     int
	log      *slog.Logger
	metrics  *observability.RAGMetrics
}

func NewRetriever(embedder QueryEmbedder, index Searcher, opts Options) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		source:   opts.DefaultSource,
		maxR:     cmp.Or(max(opts.MaxNeighbors, 0), DefaultMaxNeighbors),
		log:      observability.OrDefault(opts.Logger),
		metrics:  opts.Metrics,
	}
}

// Retrieve returns the context fragments for query. An empty result with a
// nil error means nothing relevant was found. Collaborator failures are
// returned as *CollaboratorError and are not retried.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK, radius int) (frags []Fragment, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}
	if radius < 0 {
		return nil, fmt.Errorf("%w: neighbors must not be negative, got %d", ErrInvalidArgument, radius)
	}
	if radius > r.maxR {
		return nil, fmt.Errorf("%w: neighbors %d exceeds the limit of %d", ErrInvalidArgument, radius, r.maxR)
	}

	start := time.Now()
	ctx, span := observability.StartRetrieveSpan(ctx, topK, radius)
	defer func() {
		observability.RecordError(span, err)
		span.End()
		r.metrics.RecordRetrieval(time.Since(start), len(frags), err)
	}()

	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := r.query(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		r.log.Info("retrieval found no matches", "top_k", topK)
		observability.RecordRetrieveResult(span, 0, 0, 0)
		return []Fragment{}, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	expanded := Expand(ids, radius)

	frags, err = r.assemble(ctx, expanded)
	if err != nil {
		return nil, err
	}

	observability.RecordRetrieveResult(span, len(matches), expanded.Len(), len(frags))
	r.log.Debug("retrieval complete",
		"matches", len(matches),
		"expanded", expanded.Len(),
		"fragments", len(frags),
		"elapsed", time.Since(start),
	)
	return frags, nil
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float32, error) {
	var model string
	if m, ok := r.embedder.(interface{ ModelName() string }); ok {
		model = m.ModelName()
	}
	ctx, span := observability.StartEmbedSpan(ctx, model, 1)
	defer span.End()
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, collaboratorErr("embed", err)
	}
	return vec, nil
}

func (r *Retriever) query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	ctx, span := observability.StartIndexSpan(ctx, "query", topK)
	defer span.End()
	matches, err := r.index.Query(ctx, vec, topK)
	if err != nil {
		observability.RecordError(span, err)
		return nil, collaboratorErr("query", err)
	}
	return matches, nil
}

func (r *Retriever) assemble(ctx context.Context, ids IDSet) ([]Fragment, error) {
	ctx, span := observability.StartIndexSpan(ctx, "fetch", ids.Len())
	defer span.End()
	frags, err := Assemble(ctx, r.index, ids, AssembleOptions{DefaultSource: r.source})
	if err != nil {
		observability.RecordError(span, err)
		return nil, collaboratorErr("fetch", err)
	}
	return frags, nil
}
