package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "lexrag",
		Short:         "Grounded legal assistant over an indexed code of law",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/lexrag.yaml", "Config file path")

	rootCmd.AddCommand(
		newRetrieveCmd(&configPath),
		newAskCmd(&configPath),
		newChatCmd(&configPath),
		newSessionsCmd(&configPath),
		newIngestCmd(&configPath),
		newCleanupCmd(&configPath),
		newServeCmd(&configPath),
		newProvidersCmd(),
	)
	return rootCmd
}
