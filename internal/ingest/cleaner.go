package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/lexrag/internal/article"
	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// DefaultMaxArticles bounds the id range scanned by cleanup.
const DefaultMaxArticles = 1500

// CleanupReport summarizes a cleanup pass.
type CleanupReport struct {
	Scanned int      `json:"scanned"`
	Stale   []string `json:"stale"`
	Deleted int      `json:"deleted"`
	DryRun  bool     `json:"dry_run"`
}

// Cleaner removes repealed-article stubs (see IsStale) from the index.
type Cleaner struct {
	Index       vector.Index
	Prefix      string
	MaxArticles int
	BatchSize   int
	DryRun      bool
	Logger      *slog.Logger
	Metrics     *observability.RAGMetrics
}

func (c *Cleaner) settings() (prefix string, maxArticles, batch int) {
	prefix, maxArticles, batch = c.Prefix, c.MaxArticles, c.BatchSize
	if prefix == "" {
		prefix = article.DefaultPrefix
	}
	if maxArticles <= 0 {
		maxArticles = DefaultMaxArticles
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return prefix, maxArticles, batch
}

// Scan fetches ids prefix_0 .. prefix_{MaxArticles-1} batch by batch and
// returns the stale ones in id order along with the number of records found.
func (c *Cleaner) Scan(ctx context.Context) (stale []string, scanned int, err error) {
	prefix, maxArticles, batch := c.settings()
	log := observability.OrDefault(c.Logger)

	for start := 0; start < maxArticles; start += batch {
		ids := article.Range(prefix, start, min(start+batch, maxArticles))
		metas, err := c.Index.Fetch(ctx, ids)
		if err != nil {
			return nil, scanned, fmt.Errorf("cleanup: fetch %s..%s: %w", ids[0], ids[len(ids)-1], err)
		}
		scanned += len(metas)
		for _, id := range ids {
			m, ok := metas[id]
			if !ok || !IsStale(m.Text) {
				continue
			}
			log.Info("stale article", "id", id, "text", preview(m.Text, 60))
			stale = append(stale, id)
		}
	}
	return stale, scanned, nil
}

// Delete removes ids in batches.
func (c *Cleaner) Delete(ctx context.Context, ids []string) (int, error) {
	_, _, batch := c.settings()
	log := observability.OrDefault(c.Logger)
	deleted := 0
	for start := 0; start < len(ids); start += batch {
		chunk := ids[start:min(start+batch, len(ids))]
		if err := c.Index.Delete(ctx, chunk); err != nil {
			return deleted, fmt.Errorf("cleanup: delete: %w", err)
		}
		deleted += len(chunk)
		log.Info("deleted stale articles", "count", len(chunk))
	}
	c.Metrics.RecordIngest(0, deleted)
	return deleted, nil
}

// Run scans and, unless DryRun is set, deletes what it found.
func (c *Cleaner) Run(ctx context.Context) (rep CleanupReport, err error) {
	ctx, span := observability.StartIngestSpan(ctx, "cleanup", c.MaxArticles)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	rep.DryRun = c.DryRun
	rep.Stale, rep.Scanned, err = c.Scan(ctx)
	if err != nil {
		return rep, err
	}
	if len(rep.Stale) == 0 {
		observability.OrDefault(c.Logger).Info("no stale articles found", "scanned", rep.Scanned)
		return rep, nil
	}
	if c.DryRun {
		return rep, nil
	}
	rep.Deleted, err = c.Delete(ctx, rep.Stale)
	return rep, err
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
