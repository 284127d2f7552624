// Package app assembles lexrag components from configuration. Both binaries
// build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/lexrag/internal/assistant"
	"github.com/efebarandurmaz/lexrag/internal/config"
	"github.com/efebarandurmaz/lexrag/internal/ingest"
	"github.com/efebarandurmaz/lexrag/internal/llm"
	"github.com/efebarandurmaz/lexrag/internal/llmutil"
	"github.com/efebarandurmaz/lexrag/internal/observability"
	"github.com/efebarandurmaz/lexrag/internal/retrieval"
	"github.com/efebarandurmaz/lexrag/internal/secrets"
	"github.com/efebarandurmaz/lexrag/internal/session"
	"github.com/efebarandurmaz/lexrag/internal/vector"
	"github.com/efebarandurmaz/lexrag/internal/vector/hnsw"
	"github.com/efebarandurmaz/lexrag/internal/vector/qdrant"
)

// LoadConfig reads the config file and fills API keys from the secrets
// backend.
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	m, err := secrets.NewManager(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	secrets.Resolve(ctx, m, cfg)
	return cfg, nil
}

// Options selects the optional parts of an App.
type Options struct {
	// Chat builds the chat provider and the assistant.
	Chat bool
	// Logger overrides the logger built from cfg.Log.
	Logger *slog.Logger
}

// App holds the wired components. Fields for parts not requested in Options
// are nil.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.RAGMetrics
	Tracing *observability.TracerProvider

	Index     vector.Index
	Embedder  *vector.ProviderEmbedder
	Queries   *vector.CachedEmbedder
	Retriever *retrieval.Retriever
	Sessions  *session.Store

	Chat      llm.Provider
	Assistant *assistant.Assistant

	persist func() error
}

// New wires an App. Call Close when done.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{
		Config:  cfg,
		Logger:  opts.Logger,
		Metrics: observability.NewRAGMetrics(),
	}
	if a.Logger == nil {
		a.Logger = observability.NewLogger(cfg.Log.Observability())
	}
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	if a.Tracing, err = observability.InitTracing(ctx, cfg.Tracing.Observability()); err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	embedProvider, err := factory.Create(cfg.Embedding.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if embedProvider == nil {
		return nil, errors.New("embedding provider is required")
	}
	a.Embedder = vector.NewProviderEmbedder(embedProvider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	a.Queries = vector.NewCachedEmbedder(a.Embedder, cfg.Embedding.CacheSize)

	if a.Index, a.persist, err = openIndex(ctx, cfg); err != nil {
		return nil, err
	}

	a.Retriever = retrieval.NewRetriever(a.Queries, a.Index, retrieval.Options{
		DefaultSource: cfg.Retrieval.DefaultSource,
		MaxNeighbors:  cfg.Retrieval.MaxNeighbors,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
	})

	if a.Sessions, err = session.NewStore(cfg.Sessions.Dir); err != nil {
		return nil, err
	}

	if opts.Chat {
		if a.Chat, err = factory.Create(cfg.LLM.ProviderConfig()); err != nil {
			return nil, fmt.Errorf("chat provider: %w", err)
		}
		if a.Chat == nil {
			return nil, errors.New("chat provider is required (llm.provider is empty or none)")
		}
		a.Assistant = assistant.New(a.Retriever, a.Chat, a.Sessions, assistant.Options{
			TopK:      cfg.Retrieval.TopK,
			Neighbors: cfg.Retrieval.Neighbors,
			Request:   cfg.LLM.RequestOptions(),
			Logger:    a.Logger,
			Metrics:   a.Metrics,
		})
	}

	return a, nil
}

func openIndex(ctx context.Context, cfg *config.Config) (vector.Index, func() error, error) {
	switch cfg.Vector.Backend {
	case "qdrant", "":
		repo, err := qdrant.New(ctx, qdrant.Options{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			Collection: cfg.Vector.Collection,
			APIKey:     cfg.Vector.APIKey,
			UseTLS:     cfg.Vector.UseTLS,
			FetchBatch: cfg.Vector.FetchBatch,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant: %w", err)
		}
		return repo, func() error { return nil }, nil
	case "hnsw":
		idx, err := hnsw.Open(cfg.Vector.Path, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("hnsw: %w", err)
		}
		return idx, func() error { return idx.Save(cfg.Vector.Path) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}

// Indexer returns an ingestion indexer over the App's index.
func (a *App) Indexer() *ingest.Indexer {
	return &ingest.Indexer{
		Embedder:  a.Embedder,
		Index:     a.Index,
		Prefix:    a.Config.Retrieval.IDPrefix,
		Source:    a.Config.Ingest.Source,
		BatchSize: a.Config.Ingest.BatchSize,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	}
}

// Cleaner returns a stale-record cleaner over the App's index.
func (a *App) Cleaner(dryRun bool) *ingest.Cleaner {
	return &ingest.Cleaner{
		Index:       a.Index,
		Prefix:      a.Config.Retrieval.IDPrefix,
		MaxArticles: a.Config.Ingest.MaxArticles,
		BatchSize:   a.Config.Vector.FetchBatch,
		DryRun:      dryRun,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
	}
}

// CheckDimensions fails with *vector.DimensionError when the index was built
// for a different vector size than the embedding model produces. An index
// that cannot report its size yet, such as a Qdrant collection before the
// first ingest, passes with a warning.
func (a *App) CheckDimensions(ctx context.Context) error {
	want := a.Config.Embedding.Dimensions
	if want <= 0 {
		return nil
	}
	got, err := a.Index.Dimensions(ctx)
	if err != nil {
		a.Logger.Warn("index dimensions unavailable", "backend", a.Config.Vector.Backend, "error", err)
		return nil
	}
	if got > 0 && got != want {
		return &vector.DimensionError{Expected: got, Got: want}
	}
	return nil
}

// Persist flushes local index state to disk. Remote indexes need nothing.
func (a *App) Persist() error {
	if a.persist == nil {
		return nil
	}
	return a.persist()
}

// Close releases the index and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
