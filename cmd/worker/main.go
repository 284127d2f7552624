package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/lexrag/internal/app"
	"github.com/efebarandurmaz/lexrag/internal/server"
	temporalmod "github.com/efebarandurmaz/lexrag/internal/temporal"
)

func main() {
	configPath := "configs/lexrag.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Indexer: a.Indexer(),
		Cleaner: a.Cleaner(false),
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	shutdown := server.NewShutdownHandler(cfg.Server.ShutdownTimeout, a.Logger)
	shutdown.Close("temporal-worker", server.PriorityWorker, func() error {
		w.Stop()
		c.Close()
		return nil
	})
	shutdown.RegisterHook("tracing", server.PriorityTracing, a.Tracing.Shutdown)
	shutdown.Close("index", server.PriorityStorage, func() error {
		if err := a.Persist(); err != nil {
			return err
		}
		return a.Index.Close()
	})

	shutdown.Wait(ctx)
	fmt.Println("Worker stopped")
}
