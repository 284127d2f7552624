package temporal

import (
	"context"
	"fmt"
	"path/filepath"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is used when no queue is configured.
const DefaultTaskQueue = "lexrag-ingest"

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string) (worker.Worker, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})

	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterActivity(ExtractActivity)
	w.RegisterActivity(PrepareIndexActivity)
	w.RegisterActivity(IndexBatchActivity)
	w.RegisterActivity(CleanupActivity)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}

// SubmitIngest starts IngestWorkflow on taskQueue and returns the run.
func SubmitIngest(ctx context.Context, c client.Client, taskQueue string, input IngestInput) (client.WorkflowRun, error) {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "ingest-" + filepath.Base(input.PDFPath),
		TaskQueue: taskQueue,
	}, IngestWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("starting ingest workflow: %w", err)
	}
	return run, nil
}
