package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/lexrag/internal/app"
	"github.com/efebarandurmaz/lexrag/internal/assistant"
	"github.com/efebarandurmaz/lexrag/internal/retrieval"
	"github.com/efebarandurmaz/lexrag/internal/session"
)

func openApp(ctx context.Context, configPath string, chat bool) (*app.App, error) {
	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{Chat: chat})
}

func newRetrieveCmd(configPath *string) *cobra.Command {
	var (
		topK      int
		neighbors int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Print the context fragments retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if !cmd.Flags().Changed("top-k") {
				topK = a.Config.Retrieval.TopK
			}
			if !cmd.Flags().Changed("neighbors") {
				neighbors = a.Config.Retrieval.Neighbors
			}
			frags, err := a.Retriever.Retrieve(ctx, strings.Join(args, " "), topK, neighbors)
			if err != nil {
				return err
			}
			return printFragments(cmd.OutOrStdout(), frags, asJSON)
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 10, "Number of nearest matches")
	cmd.Flags().IntVar(&neighbors, "neighbors", 0, "Positional neighbors added around each match")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output fragments as JSON")
	return cmd
}

func printFragments(w io.Writer, frags []retrieval.Fragment, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"fragments": retrieval.Strings(frags),
			"grounded":  len(frags) > 0,
		})
	}
	if len(frags) == 0 {
		fmt.Fprintln(w, "No relevant articles found.")
		return nil
	}
	for i, f := range frags {
		if i > 0 {
			fmt.Fprintln(w, "\n---")
		}
		fmt.Fprintln(w, f.String())
	}
	return nil
}

func newAskCmd(configPath *string) *cobra.Command {
	var sessionName string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			ans, err := ask(ctx, cmd.OutOrStdout(), a.Assistant, sessionName, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", ans.Session)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "Session to continue (default: named after the question)")
	return cmd
}

func ask(ctx context.Context, w io.Writer, a *assistant.Assistant, sessionName, question string) (*assistant.Answer, error) {
	ans, err := a.Ask(ctx, sessionName, question, func(delta string) {
		fmt.Fprint(w, delta)
	})
	fmt.Fprintln(w)
	return ans, err
}

func newChatCmd(configPath *string) *cobra.Command {
	var sessionName string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat; an empty line or EOF exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.Assistant, sessionName)
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "Session to continue")
	return cmd
}

// chatLoop keeps one session for the whole conversation. Turn failures are
// reported and the loop continues.
func chatLoop(ctx context.Context, in io.Reader, out, errOut io.Writer, a *assistant.Assistant, sessionName string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}
		if sessionName == "" {
			sessionName = session.Slug(question)
			fmt.Fprintf(errOut, "session: %s\n", sessionName)
		}
		if _, err := ask(ctx, out, a, sessionName, question); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(errOut, "Error:", err)
		}
	}
}

func newSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect saved chat sessions",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List session names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	var withContext bool
	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			turns, err := store.Load(args[0])
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), turns, withContext)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&withContext, "context", false, "Include retrieved context under each answer")

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func openStore(ctx context.Context, configPath string) (*session.Store, error) {
	cfg, err := app.LoadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.Sessions.Dir)
}

func printTranscript(w io.Writer, turns []session.Turn, withContext bool) {
	for _, t := range turns {
		marker := ""
		if t.Incomplete {
			marker = " (incomplete)"
		}
		fmt.Fprintf(w, "[%s]%s\n%s\n", t.Role, marker, t.Content)
		if withContext {
			for i, c := range t.RetrievedContext {
				fmt.Fprintf(w, "  chunk %d: %s\n", i+1, c)
			}
		}
		fmt.Fprintln(w)
	}
}
