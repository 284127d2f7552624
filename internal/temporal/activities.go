package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.temporal.io/sdk/temporal"

	"github.com/efebarandurmaz/lexrag/internal/ingest"
)

const (
	defaultBatchSize = ingest.DefaultBatchSize
	// errTypeConfig marks failures that retrying cannot fix.
	errTypeConfig = "ConfigError"
)

// ExtractResult points at the spooled articles.
type ExtractResult struct {
	SpoolPath string
	Articles  int
}

// BatchInput selects articles [Offset, Offset+Size) of the spool.
type BatchInput struct {
	SpoolPath string
	Offset    int
	Size      int
}

// CleanupResult is the serializable form of ingest.CleanupReport.
type CleanupResult struct {
	Scanned int
	Stale   []string
	Deleted int
}

// Dependencies holds shared resources injected into activities.
type Dependencies struct {
	Indexer *ingest.Indexer
	Cleaner *ingest.Cleaner
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

func requireDeps() error {
	if deps == nil || deps.Indexer == nil {
		return temporal.NewNonRetryableApplicationError("activity dependencies not set", errTypeConfig, nil)
	}
	return nil
}

// ExtractActivity reads the PDF, splits it into articles and writes them to
// the spool file.
func ExtractActivity(ctx context.Context, input IngestInput) (ExtractResult, error) {
	text, err := ingest.ExtractPDF(input.PDFPath, input.StartPage)
	if err != nil {
		return ExtractResult{}, temporal.NewNonRetryableApplicationError("extract pdf", errTypeConfig, err)
	}
	articles := ingest.SplitArticles(text)

	data, err := json.Marshal(articles)
	if err != nil {
		return ExtractResult{}, fmt.Errorf("marshal articles: %w", err)
	}
	path := input.spoolPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ExtractResult{}, fmt.Errorf("write spool: %w", err)
	}
	return ExtractResult{SpoolPath: path, Articles: len(articles)}, nil
}

// PrepareIndexActivity creates the collection if the index supports it.
func PrepareIndexActivity(ctx context.Context) error {
	if err := requireDeps(); err != nil {
		return err
	}
	return deps.Indexer.Prepare(ctx)
}

// IndexBatchActivity embeds and upserts one batch from the spool.
func IndexBatchActivity(ctx context.Context, input BatchInput) (int, error) {
	if err := requireDeps(); err != nil {
		return 0, err
	}
	articles, err := readSpool(input.SpoolPath)
	if err != nil {
		return 0, err
	}
	if input.Offset < 0 || input.Offset > len(articles) {
		return 0, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("offset %d outside spool of %d articles", input.Offset, len(articles)), errTypeConfig, nil)
	}
	end := min(input.Offset+input.Size, len(articles))
	return deps.Indexer.IndexBatch(ctx, input.Offset, articles[input.Offset:end])
}

// CleanupActivity removes stale records, or only reports them when dryRun
// is set.
func CleanupActivity(ctx context.Context, dryRun bool) (CleanupResult, error) {
	if deps == nil || deps.Cleaner == nil {
		return CleanupResult{}, temporal.NewNonRetryableApplicationError("cleaner not configured", errTypeConfig, nil)
	}
	c := *deps.Cleaner
	c.DryRun = dryRun
	rep, err := c.Run(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	return CleanupResult{Scanned: rep.Scanned, Stale: rep.Stale, Deleted: rep.Deleted}, nil
}

func readSpool(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, temporal.NewNonRetryableApplicationError("spool missing: "+path, errTypeConfig, err)
	}
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	var articles []string
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("decode spool", errTypeConfig, err)
	}
	return articles, nil
}
