package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/lexrag/internal/app"
	"github.com/efebarandurmaz/lexrag/internal/ingest"
	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/server"
	temporalmod "github.com/efebarandurmaz/lexrag/internal/temporal"
)

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		pdfPath   string
		startPage int
		workflow  bool
		cleanup   bool
		dryRun    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract articles from a PDF and index them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := app.LoadConfig(ctx, *configPath)
			if err != nil {
				return err
			}
			if pdfPath == "" {
				pdfPath = cfg.Ingest.PDFPath
			}
			if pdfPath == "" {
				return errors.New("no PDF given: use --pdf or set ingest.pdf_path")
			}
			if !cmd.Flags().Changed("start-page") {
				startPage = cfg.Ingest.StartPage
			}

			if workflow {
				c, err := temporalclient.Dial(temporalclient.Options{
					HostPort:  cfg.Temporal.Host,
					Namespace: cfg.Temporal.Namespace,
				})
				if err != nil {
					return fmt.Errorf("temporal client: %w", err)
				}
				defer c.Close()

				run, err := temporalmod.SubmitIngest(ctx, c, cfg.Temporal.TaskQueue, temporalmod.IngestInput{
					PDFPath:   pdfPath,
					StartPage: startPage,
					BatchSize: cfg.Ingest.BatchSize,
					Cleanup:   cleanup,
					DryRun:    dryRun,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "workflow %s started (run %s)\n", run.GetID(), run.GetRunID())
				var out temporalmod.IngestOutput
				if err := run.Get(ctx, &out); err != nil {
					return fmt.Errorf("ingest workflow: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			a, err := app.New(ctx, cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			text, err := ingest.ExtractPDF(pdfPath, startPage)
			if err != nil {
				return err
			}
			articles := ingest.SplitArticles(text)
			a.Logger.Info("articles extracted", "count", len(articles), "pdf", pdfPath)

			n, err := a.Indexer().IndexAll(ctx, articles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d articles.\n", n)

			if cleanup {
				rep, err := a.Cleaner(dryRun).Run(ctx)
				if err != nil {
					return err
				}
				printCleanup(cmd.OutOrStdout(), rep)
			}
			return a.Persist()
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF to ingest (default: ingest.pdf_path)")
	cmd.Flags().IntVar(&startPage, "start-page", ingest.DefaultStartPage, "First page of the body (1-based)")
	cmd.Flags().BoolVar(&workflow, "workflow", false, "Run as a durable Temporal workflow")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "Remove stale articles after indexing")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "With --cleanup, only report stale articles")
	return cmd
}

func newCleanupCmd(configPath *string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete repealed-article stubs from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			rep, err := a.Cleaner(dryRun).Run(ctx)
			if err != nil {
				return err
			}
			printCleanup(cmd.OutOrStdout(), rep)
			return a.Persist()
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report stale articles")
	return cmd
}

func printCleanup(w io.Writer, rep ingest.CleanupReport) {
	fmt.Fprintf(w, "Scanned %d records, %d stale.\n", rep.Scanned, len(rep.Stale))
	for _, id := range rep.Stale {
		fmt.Fprintf(w, "  %s\n", id)
	}
	if rep.DryRun {
		fmt.Fprintln(w, "Dry run: nothing deleted.")
		return
	}
	fmt.Fprintf(w, "Deleted %d records.\n", rep.Deleted)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath, true)
			if err != nil {
				return err
			}
			cfg := a.Config
			if err := a.CheckDimensions(ctx); err != nil {
				a.Close(ctx)
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			health := server.NewHealthServer(version)
			health.RegisterCheck("index", server.IndexHealthChecker(cfg.Vector.Backend, cfg.Embedding.Dimensions, a.Index.Dimensions))
			health.RegisterCheck("llm", server.LLMHealthChecker(a.Chat.Name(), nil))

			shutdown := server.NewShutdownHandler(cfg.Server.ShutdownTimeout, a.Logger)
			shutdown.RegisterHook("tracing", server.PriorityTracing, a.Tracing.Shutdown)
			shutdown.Close("index", server.PriorityStorage, func() error {
				return errors.Join(a.Persist(), a.Index.Close())
			})

			api := server.NewAPI(server.APIConfig{
				Retriever:      a.Retriever,
				Assistant:      a.Assistant,
				Sessions:       a.Sessions,
				Health:         health,
				Metrics:        a.Metrics,
				Logger:         a.Logger,
				TopK:           cfg.Retrieval.TopK,
				Neighbors:      cfg.Retrieval.Neighbors,
				RequestTimeout: cfg.Server.RequestTimeout,
			})
			a.Logger.Info("serving", "addr", addr, "index", cfg.Vector.Backend, "llm", a.Chat.Name())
			return server.Serve(ctx, addr, api.Handler(), health, shutdown)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			slices.Sort(names)

			fmt.Fprintln(w, "Available LLM providers:")
			fmt.Fprintln(w)
			for _, name := range names {
				fmt.Fprintf(w, "  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Fprintln(w, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Configure in lexrag.yaml or via environment:")
			fmt.Fprintln(w, "  LEXRAG_LLM_PROVIDER=mistral")
			fmt.Fprintln(w, "  LEXRAG_LLM_API_KEY=...")
			fmt.Fprintln(w, "  LEXRAG_EMBEDDING_MODEL=mistral-embed")
		},
	}
}

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"
