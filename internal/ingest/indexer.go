package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/lexrag/internal/article"
	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// DefaultBatchSize is the number of articles embedded and upserted together.
const DefaultBatchSize = 100

// BatchEmbedder embeds many texts in one call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Indexer embeds articles and upserts them under ids prefix_0, prefix_1, ...
// in document order, which is what neighbor expansion relies on.
type Indexer struct {
	Embedder  BatchEmbedder
	Index     vector.Index
	Prefix    string
	Source    string
	BatchSize int
	Logger    *slog.Logger
	Metrics   *observability.RAGMetrics
}

func (ix *Indexer) prefix() string {
	if ix.Prefix == "" {
		return article.DefaultPrefix
	}
	return ix.Prefix
}

func (ix *Indexer) batchSize() int {
	if ix.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return ix.BatchSize
}

// Prepare creates the backing collection when the index supports it.
func (ix *Indexer) Prepare(ctx context.Context) error {
	p, ok := ix.Index.(vector.Provisioner)
	if !ok {
		return nil
	}
	dims := ix.Embedder.Dimensions()
	if dims <= 0 {
		return errors.New("ingest: embedding dimensions must be configured to create the collection")
	}
	if err := p.EnsureCollection(ctx, dims); err != nil {
		return fmt.Errorf("ingest: ensure collection: %w", err)
	}
	return nil
}

// IndexAll prepares the collection and indexes all articles. It returns the
// number of records upserted.
func (ix *Indexer) IndexAll(ctx context.Context, articles []string) (int, error) {
	if err := ix.Prepare(ctx); err != nil {
		return 0, err
	}
	log := observability.OrDefault(ix.Logger)
	size := ix.batchSize()
	total := 0
	for start := 0; start < len(articles); start += size {
		end := min(start+size, len(articles))
		n, err := ix.IndexBatch(ctx, start, articles[start:end])
		if err != nil {
			return total, err
		}
		total += n
		log.Info("indexed batch", "loaded", end, "total", len(articles))
	}
	return total, nil
}

// IndexBatch embeds and upserts articles whose first element sits at
// position offset in the document.
func (ix *Indexer) IndexBatch(ctx context.Context, offset int, articles []string) (n int, err error) {
	if len(articles) == 0 {
		return 0, nil
	}
	ctx, span := observability.StartIngestSpan(ctx, "index", len(articles))
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	vecs, err := ix.Embedder.EmbedBatch(ctx, articles)
	if err != nil {
		return 0, fmt.Errorf("ingest: embed batch at %d: %w", offset, err)
	}
	if len(vecs) != len(articles) {
		return 0, fmt.Errorf("ingest: embed batch at %d: got %d vectors for %d articles", offset, len(vecs), len(articles))
	}

	records := make([]vector.Record, len(articles))
	for i, text := range articles {
		records[i] = vector.Record{
			ID:       article.Encode(ix.prefix(), offset+i),
			Vector:   vecs[i],
			Metadata: vector.Metadata{Text: text, Source: ix.Source},
		}
	}
	if err := ix.Index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("ingest: upsert batch at %d: %w", offset, err)
	}
	ix.Metrics.RecordIngest(len(records), 0)
	return len(records), nil
}
