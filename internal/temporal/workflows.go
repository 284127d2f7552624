package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestInput holds the workflow parameters.
type IngestInput struct {
	PDFPath   string
	StartPage int
	// SpoolPath is where extracted articles are written for the batch
	// activities. Defaults to PDFPath + ".articles.json".
	SpoolPath string
	BatchSize int

	Cleanup bool // Run stale-article cleanup after indexing
	DryRun  bool // Report stale articles without deleting them
}

// IngestOutput holds the workflow result.
type IngestOutput struct {
	Articles int
	Indexed  int
	Stale    []string
	Deleted  int
}

func (in IngestInput) spoolPath() string {
	if in.SpoolPath != "" {
		return in.SpoolPath
	}
	return in.PDFPath + ".articles.json"
}

// IngestWorkflow extracts articles from a PDF, indexes them one batch per
// activity and optionally removes stale records.
func IngestWorkflow(ctx workflow.Context, input IngestInput) (*IngestOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeConfig},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	log := workflow.GetLogger(ctx)

	if input.SpoolPath == "" {
		input.SpoolPath = input.spoolPath()
	}

	// Step 1: PDF to articles
	var extracted ExtractResult
	if err := workflow.ExecuteActivity(ctx, ExtractActivity, input).Get(ctx, &extracted); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	out := &IngestOutput{Articles: extracted.Articles}

	// Step 2: collection
	if err := workflow.ExecuteActivity(ctx, PrepareIndexActivity).Get(ctx, nil); err != nil {
		return nil, fmt.Errorf("prepare index: %w", err)
	}

	// Step 3: one activity per batch so a failure resumes at that batch
	size := input.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	for offset := 0; offset < extracted.Articles; offset += size {
		batch := BatchInput{SpoolPath: extracted.SpoolPath, Offset: offset, Size: size}
		var n int
		if err := workflow.ExecuteActivity(ctx, IndexBatchActivity, batch).Get(ctx, &n); err != nil {
			return nil, fmt.Errorf("index batch at %d: %w", offset, err)
		}
		out.Indexed += n
		log.Info("indexed batch", "loaded", min(offset+size, extracted.Articles), "total", extracted.Articles)
	}

	// Step 4: cleanup
	if input.Cleanup {
		var rep CleanupResult
		if err := workflow.ExecuteActivity(ctx, CleanupActivity, input.DryRun).Get(ctx, &rep); err != nil {
			return nil, fmt.Errorf("cleanup: %w", err)
		}
		out.Stale = rep.Stale
		out.Deleted = rep.Deleted
	}

	return out, nil
}
